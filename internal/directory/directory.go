package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrNotFound = errors.New("not found")

// Directory is the read API for teams, rosters and per-player forecasts.
type Directory interface {
	Teams(ctx context.Context) ([]Team, error)
	TeamPlayers(ctx context.Context, teamID string) ([]Player, error)
	PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error)
}

type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Market string `json:"market,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	TeamID   string `json:"team_id,omitempty"`
	Jersey   string `json:"jersey,omitempty"`
}

// UnmarshalJSON accepts the team either as a nested object, a bare id, or team_id.
func (p *Player) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Name     string          `json:"name"`
		Position string          `json:"position"`
		TeamID   string          `json:"team_id"`
		Team     json.RawMessage `json:"team"`
		Jersey   json.RawMessage `json:"jersey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = scalarString(raw.ID)
	p.Name = raw.Name
	p.Position = raw.Position
	p.TeamID = raw.TeamID
	p.Jersey = scalarString(raw.Jersey)

	if p.TeamID == "" && len(raw.Team) > 0 {
		var nested struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw.Team, &nested); err == nil && nested.ID != "" {
			p.TeamID = nested.ID
		} else {
			p.TeamID = scalarString(raw.Team)
		}
	}
	return nil
}

func scalarString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}

// StatusError is a non-2xx answer from a collaborator.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether repeating the same call could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Retryable reports whether err is worth surfacing with a retry action. Transport
// failures are retryable, client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotFound)
}
