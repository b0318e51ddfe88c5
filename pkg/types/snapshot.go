package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Stat categories produced by the forecast model.
const (
	StatPassingYards   = "passing_yards"
	StatRushingYards   = "rushing_yards"
	StatReceivingYards = "receiving_yards"
	StatTouchdowns     = "touchdowns"
	StatInterceptions  = "interceptions"
)

const regulationClock = "15:00"

// GameState is a wholesale snapshot of the simulated contest.
type GameState struct {
	GameID        string `json:"game_id,omitempty"`
	HomeTeam      string `json:"home_team" validate:"required"`
	AwayTeam      string `json:"away_team" validate:"required"`
	Quarter       int    `json:"quarter" validate:"min=1,max=4"`
	TimeRemaining string `json:"time_remaining"`
	HomeScore     int    `json:"home_score" validate:"min=0"`
	AwayScore     int    `json:"away_score" validate:"min=0"`
	Status        string `json:"status,omitempty"`
}

// DefaultGameState is what a session shows before the first snapshot arrives.
func DefaultGameState() GameState {
	return GameState{
		HomeTeam:      "Home",
		AwayTeam:      "Away",
		Quarter:       1,
		TimeRemaining: regulationClock,
		Status:        "scheduled",
	}
}

// IsFinal reports whether the snapshot is the last second of the fourth quarter.
func (g GameState) IsFinal() bool {
	if g.Quarter != 4 {
		return false
	}
	secs, ok := ClockSeconds(g.TimeRemaining)
	return ok && secs == 0
}

// Reset keeps the game and team identities and rewinds everything else.
func (g GameState) Reset() GameState {
	return GameState{
		GameID:        g.GameID,
		HomeTeam:      g.HomeTeam,
		AwayTeam:      g.AwayTeam,
		Quarter:       1,
		TimeRemaining: regulationClock,
		Status:        "in_progress",
	}
}

// ClockSeconds parses "M:SS" (or a bare seconds count) into seconds remaining.
func ClockSeconds(clock string) (int, bool) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return 0, false
	}
	mins, secs, found := strings.Cut(clock, ":")
	if !found {
		n, err := strconv.Atoi(mins)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	m, err := strconv.Atoi(mins)
	if err != nil || m < 0 {
		return 0, false
	}
	s, err := strconv.ParseFloat(secs, 64)
	if err != nil || s < 0 || s >= 60 {
		return 0, false
	}
	return m*60 + int(s), true
}

// StatProjection is one stat category of a player forecast.
type StatProjection struct {
	PredictedValue  float64 `json:"predicted_value"`
	Confidence      float64 `json:"confidence"`
	ProbabilityOver float64 `json:"probability_over"`
	LiveCount       *int    `json:"live_count,omitempty"`
}

// ForecastRecord is the per-player prediction, keyed by PlayerID.
type ForecastRecord struct {
	PlayerID          string                    `json:"player_id" validate:"required"`
	PlayerName        string                    `json:"player_name"`
	Position          string                    `json:"position"`
	Predictions       map[string]StatProjection `json:"predictions"`
	OverallConfidence float64                   `json:"overall_confidence"`
}

// Clamped returns a copy with every confidence and probability field in [0,1].
func (r ForecastRecord) Clamped() ForecastRecord {
	out := r
	out.OverallConfidence = Clamp01(r.OverallConfidence)
	if r.Predictions != nil {
		out.Predictions = make(map[string]StatProjection, len(r.Predictions))
		for stat, p := range r.Predictions {
			p.Confidence = Clamp01(p.Confidence)
			p.ProbabilityOver = Clamp01(p.ProbabilityOver)
			out.Predictions[stat] = p
		}
	}
	return out
}

// Predicted returns the predicted value for a stat, or 0 when the category is absent.
func (r ForecastRecord) Predicted(stat string) float64 {
	if p, ok := r.Predictions[stat]; ok {
		return p.PredictedValue
	}
	return 0
}

// Clamp01 pins v into [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Explanation is the optional narrative attached to a forecast.
type Explanation struct {
	PlayerID string   `json:"player_id,omitempty"`
	Summary  string   `json:"summary"`
	Factors  []string `json:"factors"`
}

const placeholderSummary = "No explanation available yet."

// ExplanationOrPlaceholder never fails: a missing explanation renders neutrally.
func ExplanationOrPlaceholder(e *Explanation, playerID string) Explanation {
	if e == nil {
		return Explanation{PlayerID: playerID, Summary: placeholderSummary, Factors: []string{}}
	}
	return *e
}

// UnmarshalJSON accepts both the compact {summary, factors} shape and the model's
// {overall_summary, key_factors: {stat: [[feature, weight], ...]}} shape.
func (e *Explanation) UnmarshalJSON(data []byte) error {
	var raw struct {
		PlayerID       string          `json:"player_id"`
		Summary        string          `json:"summary"`
		OverallSummary string          `json:"overall_summary"`
		Factors        []string        `json:"factors"`
		KeyFactors     json.RawMessage `json:"key_factors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.PlayerID = raw.PlayerID
	e.Summary = raw.Summary
	if e.Summary == "" {
		e.Summary = raw.OverallSummary
	}
	e.Factors = raw.Factors
	if len(e.Factors) == 0 && len(raw.KeyFactors) > 0 {
		e.Factors = flattenKeyFactors(raw.KeyFactors)
	}
	if e.Factors == nil {
		e.Factors = []string{}
	}
	return nil
}

func flattenKeyFactors(data json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return list
	}
	var byStat map[string][][]any
	if err := json.Unmarshal(data, &byStat); err != nil {
		return nil
	}
	stats := make([]string, 0, len(byStat))
	for stat := range byStat {
		stats = append(stats, stat)
	}
	slices.Sort(stats)

	var out []string
	for _, stat := range stats {
		for _, pair := range byStat[stat] {
			if len(pair) == 0 {
				continue
			}
			name := fmt.Sprint(pair[0])
			if len(pair) > 1 {
				if w, ok := pair[1].(float64); ok {
					out = append(out, fmt.Sprintf("%s: %s (%+.2f)", stat, name, w))
					continue
				}
			}
			out = append(out, fmt.Sprintf("%s: %s", stat, name))
		}
	}
	return out
}

// PredictionEnvelope is one item of initial_predictions / updated_predictions.
type PredictionEnvelope struct {
	Prediction  ForecastRecord `json:"prediction" validate:"required"`
	Explanation *Explanation   `json:"explanation,omitempty"`
}

// LiveEvent is a discrete in-game occurrence.
type LiveEvent struct {
	ID          string `json:"id" validate:"required"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Quarter     int    `json:"quarter"`
	Timestamp   string `json:"timestamp,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	PlayerName  string `json:"player_name,omitempty"`
}

// UnmarshalJSON accepts the event clock under either "timestamp" or "time".
func (e *LiveEvent) UnmarshalJSON(data []byte) error {
	type plain LiveEvent
	var raw struct {
		plain
		Time string `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = LiveEvent(raw.plain)
	if e.Timestamp == "" {
		e.Timestamp = raw.Time
	}
	return nil
}

// ScenarioEffect is a transient perturbation shown for a fixed window.
type ScenarioEffect struct {
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description" validate:"required"`
	Intensity   float64 `json:"severity,omitempty"`
}

var impactPattern = regexp.MustCompile(`impact:\s*(\d+(?:\.\d+)?)%`)

// Severity returns the explicit intensity, or the "impact: NN%" figure embedded in the
// description, as a fraction.
func (s ScenarioEffect) Severity() float64 {
	if s.Intensity > 0 {
		return s.Intensity
	}
	m := impactPattern.FindStringSubmatch(s.Description)
	if m == nil {
		return 0
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return pct / 100
}
