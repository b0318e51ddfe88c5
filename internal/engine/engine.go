package engine

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrUnsupportedMessage = errors.New("unsupported message")
var ErrStaleTimer = errors.New("stale timer")

// MaxLiveEvents is how many live events stay visible, newest first.
const MaxLiveEvents = 5

// ScenarioWindow is how long a scenario effect stays visible.
const ScenarioWindow = 5 * time.Second

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ChatMessage struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	PlayerID   string    `json:"player_id,omitempty"`
	PlayerName string    `json:"player_name,omitempty"`
	At         time.Time `json:"at"`
}

// State is the canonical per-session view. Apply never mutates a State it was given;
// anything it changes is copied first, so earlier snapshots stay valid.
type State struct {
	Game             types.GameState              `json:"game_state"`
	Forecasts        []types.ForecastRecord       `json:"forecasts"`
	Explanations     map[string]types.Explanation `json:"explanations"`
	LiveEvents       []types.LiveEvent            `json:"live_events"`
	Scenario         *types.ScenarioEffect        `json:"scenario,omitempty"`
	ScenarioGen      int                          `json:"-"`
	Conversation     []ChatMessage                `json:"conversation"`
	Composing        bool                         `json:"composing"`
	ComposingGen     int                          `json:"-"`
	SelectedPlayerID string                       `json:"selected_player_id,omitempty"`
	Status           string                       `json:"status"`
}

type EffectType string

const (
	EffSendRequest           EffectType = "SendRequest"
	EffScheduleScenarioClear EffectType = "ScheduleScenarioClear"
	EffAnswerReceived        EffectType = "AnswerReceived"
)

/*
	tick (final whistle)  -> EffSendRequest(game_reset)
	scenario_update       -> EffScheduleScenarioClear(gen, ScenarioWindow)
	cedar_answer          -> EffAnswerReceived
*/

type Effect struct {
	Type    EffectType
	Request any
	Gen     int
	After   time.Duration
}

// Apply reconciles one inbound message into the state. Messages must be applied in
// arrival order; the engine does no reordering of its own.
func Apply(s State, msg types.Inbound, at time.Time) ([]Effect, State, error) {
	next := s

	switch m := msg.(type) {
	case types.Tick:
		if m.GameState.IsFinal() {
			// Never display a finished contest: rewind locally and ask the server to do the same.
			reset := m.GameState.Reset()
			next.Game = reset
			return []Effect{{Type: EffSendRequest, Request: types.NewGameReset(reset)}}, next, nil
		}
		next.Game = m.GameState
		return nil, next, nil

	case types.GameInitialized:
		next.Game = m.GameState
		if len(m.InitialPredictions) > 0 {
			next.Forecasts, next.Explanations = forecastSet(m.InitialPredictions)
		}
		return nil, next, nil

	case types.LiveUpdate:
		next.Game = m.GameState
		next.LiveEvents = pushLiveEvent(s.LiveEvents, m.Event)

		if m.UpdatedPrediction != nil {
			rec := m.UpdatedPrediction.Clamped()
			idx := indexOfForecast(s.Forecasts, rec.PlayerID)
			if idx < 0 {
				// Unknown players are never inserted through a live update.
				return nil, next, nil
			}
			next.Forecasts = slices.Clone(s.Forecasts)
			next.Forecasts[idx] = rec
			if m.Explanation != nil {
				next.Explanations = maps.Clone(s.Explanations)
				if next.Explanations == nil {
					next.Explanations = map[string]types.Explanation{}
				}
				exp := *m.Explanation
				exp.PlayerID = rec.PlayerID
				next.Explanations[rec.PlayerID] = exp
			}
		}
		return nil, next, nil

	case types.ScenarioUpdate:
		scenario := m.Scenario
		next.Scenario = &scenario
		next.ScenarioGen = s.ScenarioGen + 1
		if m.UpdatedPredictions != nil {
			next.Forecasts, next.Explanations = forecastSet(m.UpdatedPredictions)
		}
		return []Effect{{Type: EffScheduleScenarioClear, Gen: next.ScenarioGen, After: ScenarioWindow}}, next, nil

	case types.CedarAnswer:
		name := m.PlayerName
		if name == "" && m.PlayerID != "" {
			if idx := indexOfForecast(s.Forecasts, m.PlayerID); idx >= 0 {
				name = s.Forecasts[idx].PlayerName
			}
		}
		next.Conversation = appendMessage(s.Conversation, ChatMessage{
			ID:         uuid.NewString(),
			Role:       RoleAssistant,
			Text:       m.Answer,
			PlayerID:   m.PlayerID,
			PlayerName: name,
			At:         at,
		})
		next.Composing = false
		return []Effect{{Type: EffAnswerReceived}}, next, nil

	default:
		return nil, s, ErrUnsupportedMessage
	}
}

// ClearScenario removes the scenario effect if gen still names the latest one.
func ClearScenario(s State, gen int) (State, error) {
	if gen != s.ScenarioGen {
		return s, ErrStaleTimer
	}
	next := s
	next.Scenario = nil
	return next, nil
}

// AppendQuestion logs the user's question and raises the composing flag. An empty id
// gets a fresh one.
func AppendQuestion(s State, id, question, playerID string, at time.Time) State {
	if id == "" {
		id = uuid.NewString()
	}
	next := s
	name := ""
	if idx := indexOfForecast(s.Forecasts, playerID); idx >= 0 {
		name = s.Forecasts[idx].PlayerName
	}
	next.Conversation = appendMessage(s.Conversation, ChatMessage{
		ID:         id,
		Role:       RoleUser,
		Text:       question,
		PlayerID:   playerID,
		PlayerName: name,
		At:         at,
	})
	next.Composing = true
	next.ComposingGen = s.ComposingGen + 1
	return next
}

// WithdrawQuestion removes a question that never reached the server. A composing flag
// it raised is cleared and its timer made stale.
func WithdrawQuestion(s State, id string) (State, bool) {
	idx := slices.IndexFunc(s.Conversation, func(m ChatMessage) bool {
		return m.ID == id && m.Role == RoleUser
	})
	if idx < 0 {
		return s, false
	}
	next := s
	next.Conversation = slices.Delete(slices.Clone(s.Conversation), idx, idx+1)
	if s.Composing {
		next.Composing = false
		next.ComposingGen = s.ComposingGen + 1
	}
	return next, true
}

// ExpireComposing drops a composing flag that has waited too long for its answer.
func ExpireComposing(s State, gen int, at time.Time) (State, error) {
	if gen != s.ComposingGen || !s.Composing {
		return s, ErrStaleTimer
	}
	next := s
	next.Composing = false
	next.Conversation = appendMessage(s.Conversation, ChatMessage{
		ID:   uuid.NewString(),
		Role: RoleSystem,
		Text: "The assistant did not answer in time. Ask again?",
		At:   at,
	})
	return next, nil
}

func SelectPlayer(s State, playerID string) State {
	next := s
	next.SelectedPlayerID = playerID
	return next
}

func SetStatus(s State, status string) State {
	next := s
	next.Status = status
	return next
}

func pushLiveEvent(events []types.LiveEvent, ev types.LiveEvent) []types.LiveEvent {
	if slices.ContainsFunc(events, func(e types.LiveEvent) bool { return e.ID == ev.ID }) {
		return events
	}
	out := make([]types.LiveEvent, 0, MaxLiveEvents)
	out = append(out, ev)
	for _, e := range events {
		if len(out) == MaxLiveEvents {
			break
		}
		out = append(out, e)
	}
	return out
}

func appendMessage(log []ChatMessage, msg ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(log), len(log)+1)
	copy(out, log)
	return append(out, msg)
}

// forecastSet builds a fresh forecast set. The first record wins when a player id repeats.
func forecastSet(items []types.PredictionEnvelope) ([]types.ForecastRecord, map[string]types.Explanation) {
	records := make([]types.ForecastRecord, 0, len(items))
	explanations := make(map[string]types.Explanation, len(items))
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		rec := item.Prediction.Clamped()
		if rec.PlayerID == "" || seen[rec.PlayerID] {
			continue
		}
		seen[rec.PlayerID] = true
		records = append(records, rec)
		if item.Explanation != nil {
			exp := *item.Explanation
			exp.PlayerID = rec.PlayerID
			explanations[rec.PlayerID] = exp
		}
	}
	return records, explanations
}
