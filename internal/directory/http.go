package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

const maxErrorBody = 512

// HTTPClient talks to the prediction backend's REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Sugar().Named("directory"),
	}
}

func (c *HTTPClient) Teams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.getJSON(ctx, "teams", "/api/v1/teams", &teams); err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []Team{}
	}
	return teams, nil
}

func (c *HTTPClient) TeamPlayers(ctx context.Context, teamID string) ([]Player, error) {
	var players []Player
	path := "/api/v1/teams/" + url.PathEscape(teamID) + "/players"
	if err := c.getJSON(ctx, "team players", path, &players); err != nil {
		return nil, err
	}
	if players == nil {
		players = []Player{}
	}
	return players, nil
}

func (c *HTTPClient) PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error) {
	var rec types.ForecastRecord
	path := "/api/v1/players/" + url.PathEscape(playerID) + "/predictions"
	if err := c.getJSON(ctx, "player forecast", path, &rec); err != nil {
		return types.ForecastRecord{}, err
	}
	if rec.PlayerID == "" {
		rec.PlayerID = playerID
	}
	return rec.Clamped(), nil
}

type evaluateRequest struct {
	Home lineup.Roster `json:"home"`
	Away lineup.Roster `json:"away"`
}

// EvaluateLineup submits both rosters, player ids only, keyed by position.
func (c *HTTPClient) EvaluateLineup(ctx context.Context, home, away lineup.Roster) (lineup.Result, error) {
	body, err := json.Marshal(evaluateRequest{Home: home, Away: away})
	if err != nil {
		return lineup.Result{}, fmt.Errorf("failed to marshal lineup: %w", err)
	}

	var res evaluateResponse
	if err := c.doJSON(ctx, "evaluate lineup", http.MethodPost, "/api/lineups/evaluate", bytes.NewReader(body), &res); err != nil {
		return lineup.Result{}, err
	}
	if res.WinProbability == nil {
		return lineup.Result{}, fmt.Errorf("evaluate lineup: %w: missing win_probability", lineup.ErrInvalidResult)
	}
	return lineup.Result{WinProbability: *res.WinProbability, Home: res.Home, Away: res.Away}, nil
}

// evaluateResponse keeps an absent win_probability apart from a reported zero.
type evaluateResponse struct {
	WinProbability *float64           `json:"win_probability"`
	Home           lineup.SideSummary `json:"home"`
	Away           lineup.SideSummary `json:"away"`
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, out any) error {
	return c.doJSON(ctx, op, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debugw("collaborator call failed", "op", op, "status", resp.StatusCode)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
