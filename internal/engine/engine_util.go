package engine

import (
	"time"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

func NewInitialState() State {
	return State{
		Game:         types.DefaultGameState(),
		Forecasts:    []types.ForecastRecord{},
		Explanations: map[string]types.Explanation{},
		LiveEvents:   []types.LiveEvent{},
		Conversation: []ChatMessage{},
		Status:       "disconnected",
	}
}

// Reduce replays msgs in order on top of initial. Unsupported messages are skipped.
func Reduce(initial State, msgs []types.Inbound, at time.Time) State {
	s := initial
	for _, msg := range msgs {
		_, next, err := Apply(s, msg, at)
		if err != nil {
			continue
		}
		s = next
	}
	return s
}

func ContainsEffect(effects []Effect, effectType EffectType) bool {
	for _, effect := range effects {
		if effect.Type == effectType {
			return true
		}
	}
	return false
}

func FindForecast(s State, playerID string) (types.ForecastRecord, bool) {
	idx := indexOfForecast(s.Forecasts, playerID)
	if idx < 0 {
		return types.ForecastRecord{}, false
	}
	return s.Forecasts[idx], true
}

// ExplanationFor returns the attached explanation or a neutral placeholder.
func ExplanationFor(s State, playerID string) types.Explanation {
	if exp, ok := s.Explanations[playerID]; ok {
		return exp
	}
	return types.ExplanationOrPlaceholder(nil, playerID)
}

// PlayerContext is who a conversational question is about.
type PlayerContext struct {
	PlayerID   string
	PlayerName string
}

// ResolvePlayerContext prefers the selected player and falls back to the first forecast.
func ResolvePlayerContext(s State) (PlayerContext, bool) {
	if s.SelectedPlayerID != "" {
		ctx := PlayerContext{PlayerID: s.SelectedPlayerID}
		if rec, ok := FindForecast(s, s.SelectedPlayerID); ok {
			ctx.PlayerName = rec.PlayerName
		}
		return ctx, true
	}
	if len(s.Forecasts) == 0 {
		return PlayerContext{}, false
	}
	first := s.Forecasts[0]
	return PlayerContext{PlayerID: first.PlayerID, PlayerName: first.PlayerName}, true
}

func indexOfForecast(records []types.ForecastRecord, playerID string) int {
	if playerID == "" {
		return -1
	}
	for i := range records {
		if records[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}
