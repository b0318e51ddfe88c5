package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/internal/stream"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

type pipeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	written   []map[string]any
}

func (p *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, errors.New("closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Write(_ context.Context, data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, m)
	return nil
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) Written() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.written...)
}

type pipeDialer struct{ conn *pipeConn }

func (d pipeDialer) Dial(context.Context, string) (stream.Conn, error) { return d.conn, nil }

func newConnectedDashboard(t *testing.T) (*Dashboard, *pipeConn) {
	t.Helper()
	conn := &pipeConn{in: make(chan []byte, 16), closed: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := New(ctx, "ABC123", Deps{StreamURL: "ws://test/ws", Dialer: pipeDialer{conn: conn}}, zap.NewNop())
	t.Cleanup(d.Close)

	require.NoError(t, d.Connect(context.Background()))
	require.Eventually(t, func() bool { return currentView(t, d).State.Status == string(stream.StatusConnected) }, time.Second, 5*time.Millisecond)
	return d, conn
}

func currentView(t *testing.T, d *Dashboard) session.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := d.Session.View(ctx)
	require.NoError(t, err)
	return v
}

const initJSON = `{"type":"game_initialized","game_state":{"game_id":"g1","home_team":"KC","away_team":"BUF","quarter":1,"time_remaining":"15:00","home_score":0,"away_score":0},
"initial_predictions":[{"prediction":{"player_id":"p1","player_name":"Patrick","position":"QB","overall_confidence":0.8,
"predictions":{"passing_yards":{"predicted_value":250,"confidence":0.8,"probability_over":0.5},"touchdowns":{"predicted_value":2,"confidence":0.7,"probability_over":0.4}}}}]}`

const liveJSON = `{"type":"live_update","game_state":{"game_id":"g1","home_team":"KC","away_team":"BUF","quarter":1,"time_remaining":"11:02","home_score":7,"away_score":0},
"event":{"id":"event_1_0","type":"touchdown","description":"TD pass","quarter":1,"timestamp":"11:02"},
"updated_prediction":{"player_id":"p1","player_name":"Patrick","position":"QB","overall_confidence":0.85,
"predictions":{"passing_yards":{"predicted_value":290,"confidence":0.85,"probability_over":0.6}}}}`

func TestDashboardReconcilesStream(t *testing.T) {
	d, conn := newConnectedDashboard(t)

	conn.in <- []byte(initJSON)
	conn.in <- []byte(liveJSON)

	require.Eventually(t, func() bool { return len(currentView(t, d).State.LiveEvents) == 1 }, time.Second, 5*time.Millisecond)

	v := currentView(t, d)
	require.Len(t, v.State.Forecasts, 1)
	assert.InDelta(t, 290.0, v.State.Forecasts[0].Predicted(types.StatPassingYards), 1e-9)
	assert.Equal(t, 7, v.State.Game.HomeScore)
}

func TestDashboardControllersSendThroughStream(t *testing.T) {
	d, conn := newConnectedDashboard(t)
	conn.in <- []byte(initJSON)
	require.Eventually(t, func() bool { return len(currentView(t, d).State.Forecasts) == 1 }, time.Second, 5*time.Millisecond)

	_, err := d.Scenarios.Trigger(context.Background(), "weather")
	require.NoError(t, err)

	pc, err := d.Assistant.Ask(context.Background(), "Over 275 passing yards?")
	require.NoError(t, err)
	assert.Equal(t, "p1", pc.PlayerID)
	assert.True(t, currentView(t, d).State.Composing)

	written := conn.Written()
	require.Len(t, written, 2)
	assert.Equal(t, "scenario_change", written[0]["type"])
	assert.Equal(t, "cedar_question", written[1]["type"])
	assert.Equal(t, "p1", written[1]["player_id"])

	conn.in <- []byte(`{"type":"cedar_answer","question":"Over 275 passing yards?","answer":"Likely, given the pace.","player_id":"p1"}`)
	require.Eventually(t, func() bool { return !currentView(t, d).State.Composing }, time.Second, 5*time.Millisecond)

	v := currentView(t, d)
	last := v.State.Conversation[len(v.State.Conversation)-1]
	assert.Equal(t, "Patrick", last.PlayerName)
}

func TestDashboardEvaluateUsesSessionForecasts(t *testing.T) {
	d, conn := newConnectedDashboard(t)
	conn.in <- []byte(initJSON)
	require.Eventually(t, func() bool { return len(currentView(t, d).State.Forecasts) == 1 }, time.Second, 5*time.Millisecond)

	reply := make(chan error, 1)
	d.Session.Post(session.AssignPlayer{Side: lineup.SideHome, Position: lineup.PosQB, PlayerID: "p1", Reply: reply})
	require.NoError(t, <-reply)

	res, err := d.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lineup.SourceHeuristic, res.Source)
	assert.Equal(t, 250, res.Home.ExpectedYards)
	assert.InDelta(t, 17.0, res.Home.ExpectedPoints, 1e-9)

	require.Eventually(t, func() bool { return currentView(t, d).Lineup.Result != nil }, time.Second, 5*time.Millisecond)
}

func TestDashboardWithoutTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := New(ctx, "NOPE01", Deps{}, zap.NewNop())
	defer d.Close()

	require.ErrorIs(t, d.Connect(context.Background()), stream.ErrTransportUnavailable)
	assert.Equal(t, stream.StatusDisconnected, d.Stream.Status())
}

type gatedRemote struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedRemote) EvaluateLineup(ctx context.Context, _, _ lineup.Roster) (lineup.Result, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return lineup.Result{}, ctx.Err()
	}
	return lineup.Result{WinProbability: 61}, nil
}

func TestDashboardEvaluateDropsResultForEditedLineup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	remote := gatedRemote{started: make(chan struct{}), release: make(chan struct{})}
	d := New(ctx, "EDIT01", Deps{Remote: remote}, zap.NewNop())
	t.Cleanup(d.Close)

	reply := make(chan error, 1)
	d.Session.Post(session.AssignPlayer{Side: lineup.SideHome, Position: lineup.PosQB, PlayerID: "p1", Reply: reply})
	require.NoError(t, <-reply)

	type outcome struct {
		res lineup.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.Evaluate(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case <-remote.started:
	case <-time.After(time.Second):
		t.Fatal("remote evaluation never started")
	}
	d.Session.Post(session.AssignPlayer{Side: lineup.SideHome, Position: lineup.PosQB, PlayerID: "p2", Reply: reply})
	require.NoError(t, <-reply)
	close(remote.release)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(time.Second):
		t.Fatal("evaluate did not return")
	}
	require.ErrorIs(t, got.err, ErrSuperseded)
	assert.Equal(t, lineup.SourceServer, got.res.Source)

	v := currentView(t, d)
	assert.Equal(t, "p2", v.Lineup.Home[lineup.PosQB])
	assert.Nil(t, v.Lineup.Result)
}
