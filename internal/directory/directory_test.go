package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

func backend(t *testing.T) (*httptest.Server, *lineup.Lineup) {
	t.Helper()
	submitted := &lineup.Lineup{}

	r := chi.NewRouter()
	r.Get("/api/v1/teams", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"KC","name":"Chiefs","market":"Kansas City","alias":"KC"}]`))
	})
	r.Get("/api/v1/teams/{id}/players", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "XXX" {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"p1","name":"Patrick","position":"QB","team":{"id":"KC","name":"Chiefs"},"jersey":15},
			{"id":42,"name":"Travis","position":"TE","team_id":"KC"},
			{"id":"p3","name":"Isiah","position":"RB","team":"KC"}
		]`))
	})
	r.Get("/api/v1/players/{id}/predictions", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "ghost" {
			http.Error(w, `{"detail":"No predictions found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"player_id":"p1","player_name":"Patrick","position":"QB","overall_confidence":1.3,
			"predictions":{"passing_yards":{"predicted_value":288,"confidence":0.9,"probability_over":0.61}}}`))
	})
	r.Post("/api/lineups/evaluate", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(submitted); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"win_probability":58.4,"home":{"expected_points":22.1,"expected_yards":310,"avg_confidence":76.5},"away":{"expected_points":19,"expected_yards":280,"avg_confidence":71}}`))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, submitted
}

func TestHTTPClientReads(t *testing.T) {
	srv, _ := backend(t)
	c := NewHTTPClient(srv.URL+"/", 2*time.Second, zap.NewNop())
	ctx := context.Background()

	teams, err := c.Teams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "Kansas City", teams[0].Market)

	players, err := c.TeamPlayers(ctx, "KC")
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, Player{ID: "p1", Name: "Patrick", Position: "QB", TeamID: "KC", Jersey: "15"}, players[0])
	assert.Equal(t, "42", players[1].ID)
	assert.Equal(t, "KC", players[2].TeamID)

	rec, err := c.PlayerForecast(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.OverallConfidence, "confidence is clamped")
	assert.InDelta(t, 288.0, rec.Predicted(types.StatPassingYards), 1e-9)
}

func TestHTTPClientErrors(t *testing.T) {
	srv, _ := backend(t)
	c := NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())
	ctx := context.Background()

	_, err := c.TeamPlayers(ctx, "XXX")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, Retryable(err))

	_, err = c.PlayerForecast(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, Retryable(err))

	down := NewHTTPClient("http://127.0.0.1:1", 200*time.Millisecond, zap.NewNop())
	_, err = down.Teams(ctx)
	require.Error(t, err)
	assert.True(t, Retryable(err), "transport failures are retryable")
}

func TestHTTPClientEvaluateLineup(t *testing.T) {
	srv, submitted := backend(t)
	c := NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())

	home, _ := lineup.NewRoster().Assign(lineup.PosQB, "p1")
	away, _ := lineup.NewRoster().Assign(lineup.PosTE, "p9")

	res, err := c.EvaluateLineup(context.Background(), home, away)
	require.NoError(t, err)
	assert.InDelta(t, 58.4, res.WinProbability, 1e-9)
	assert.Equal(t, 310, res.Home.ExpectedYards)

	assert.Equal(t, "p1", submitted.Home[lineup.PosQB])
	assert.Equal(t, "", submitted.Home[lineup.PosFLEX])
	assert.Equal(t, "p9", submitted.Away[lineup.PosTE])
}

func TestHTTPClientEvaluateLineupRejectsMissingProbability(t *testing.T) {
	for _, body := range []string{`{}`, `{"winProbability":63.0}`, `{"win_probability":null}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())

		_, err := c.EvaluateLineup(context.Background(), lineup.NewRoster(), lineup.NewRoster())
		assert.ErrorIs(t, err, lineup.ErrInvalidResult, "body %s", body)
		srv.Close()
	}
}

func TestHTTPClientEvaluateLineupKeepsReportedZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"win_probability":0}`))
	}))
	t.Cleanup(srv.Close)
	c := NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())

	res, err := c.EvaluateLineup(context.Background(), lineup.NewRoster(), lineup.NewRoster())
	require.NoError(t, err)
	assert.Zero(t, res.WinProbability)
}

func TestFoldPredictionsKeepsNewestPerStat(t *testing.T) {
	over := 0.7
	rows := []predictionRow{
		{ID: 9, StatType: types.StatRushingYards, PredictedValue: 64, Confidence: 0.6, ProbabilityOver: &over},
		{ID: 8, StatType: types.StatTouchdowns, PredictedValue: 0.8, Confidence: 0.8},
		{ID: 3, StatType: types.StatRushingYards, PredictedValue: 40, Confidence: 0.2},
	}

	rec := foldPredictions("p3", rows)
	assert.Equal(t, "p3", rec.PlayerID)
	assert.Len(t, rec.Predictions, 2)
	assert.InDelta(t, 64.0, rec.Predicted(types.StatRushingYards), 1e-9)
	assert.InDelta(t, 0.7, rec.Predictions[types.StatRushingYards].ProbabilityOver, 1e-9)
	assert.InDelta(t, 0.7, rec.OverallConfidence, 1e-9)
}

func TestTeamsFromIDs(t *testing.T) {
	teams := teamsFromIDs([]string{"PHI", "KC", "", "PHI", "BUF"})
	ids := make([]string, 0, len(teams))
	for _, tm := range teams {
		ids = append(ids, tm.ID)
	}
	assert.Equal(t, []string{"BUF", "KC", "PHI"}, ids)
}

type stubStore struct {
	teams []Team
	rec   types.ForecastRecord
	err   error
}

func (s stubStore) Teams(context.Context) ([]Team, error) { return s.teams, s.err }

func (s stubStore) PlayerForecast(context.Context, string) (types.ForecastRecord, error) {
	return s.rec, s.err
}

func TestCatalogPrefersStore(t *testing.T) {
	srv, _ := backend(t)
	api := NewHTTPClient(srv.URL, 2*time.Second, zap.NewNop())

	t.Run("store answers", func(t *testing.T) {
		c := NewCatalog(api, stubStore{teams: []Team{{ID: "DB"}}, rec: types.ForecastRecord{PlayerID: "db-p1"}}, zap.NewNop())
		teams, err := c.Teams(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "DB", teams[0].ID)

		rec, err := c.PlayerForecast(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, "db-p1", rec.PlayerID)
	})

	t.Run("store failure falls back to api", func(t *testing.T) {
		c := NewCatalog(api, stubStore{err: errors.New("db down")}, zap.NewNop())
		teams, err := c.Teams(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "KC", teams[0].ID)

		rec, err := c.PlayerForecast(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, "Patrick", rec.PlayerName)
	})

	t.Run("no store", func(t *testing.T) {
		c := NewCatalog(api, nil, zap.NewNop())
		players, err := c.TeamPlayers(context.Background(), "KC")
		require.NoError(t, err)
		assert.Len(t, players, 3)
	})
}
