package types

import (
	"github.com/DoyleJ11/seetheplay/internal/engine"
	"github.com/DoyleJ11/seetheplay/internal/lineup"
)

// ClientMessage is a command from the browser over /ws.
type ClientMessage struct {
	Type     string `json:"type" validate:"required,oneof=select_player trigger_scenario ask"`
	PlayerID string `json:"player_id,omitempty" validate:"required_if=Type select_player"`
	Scenario string `json:"scenario,omitempty" validate:"required_if=Type trigger_scenario"`
	Question string `json:"question,omitempty" validate:"required_if=Type ask"`
}

type ServerMessage struct {
	Type    string         `json:"type"` // "StateSnapshot" | "Error"
	Version int            `json:"version,omitempty"`
	State   *engine.State  `json:"state,omitempty"`
	Lineup  *lineup.Lineup `json:"lineup,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type CreateSessionResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

type SessionView struct {
	Code    string        `json:"code"`
	Version int           `json:"version"`
	Clients int           `json:"clients"`
	State   engine.State  `json:"state"`
	Lineup  lineup.Lineup `json:"lineup"`
}

type SelectPlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type ScenarioRequest struct {
	Scenario string `json:"scenario" validate:"required"`
}

type ScenarioResponse struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Severity float64 `json:"severity"`
}

type QuestionRequest struct {
	Question string `json:"question" validate:"required"`
}

type QuestionResponse struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
}

type AssignPlayerRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}
