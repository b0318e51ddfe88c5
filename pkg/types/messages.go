package types

// Inbound message type tags (server -> dashboard).
const (
	TypeTick            = "tick"
	TypeGameInitialized = "game_initialized"
	TypeLiveUpdate      = "live_update"
	TypeScenarioUpdate  = "scenario_update"
	TypeCedarAnswer     = "cedar_answer"
)

// Outbound request type tags (dashboard -> server).
const (
	TypeGameReset      = "game_reset"
	TypeScenarioChange = "scenario_change"
	TypeCedarQuestion  = "cedar_question"
)

// Envelope is the discriminator every inbound payload carries.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound is the closed set of messages the reconciliation engine consumes.
type Inbound interface {
	InboundType() string
}

// Tick:
//
//	{ type, game_state }
type Tick struct {
	GameState GameState `json:"game_state" validate:"required"`
}

// GameInitialized:
//
//	{ type, game_state, initial_predictions? }
type GameInitialized struct {
	GameState          GameState            `json:"game_state" validate:"required"`
	InitialPredictions []PredictionEnvelope `json:"initial_predictions,omitempty" validate:"dive"`
	Message            string               `json:"message,omitempty"`
}

// LiveUpdate:
//
//	{ type, game_state, event, updated_prediction?, explanation? }
type LiveUpdate struct {
	GameState         GameState       `json:"game_state" validate:"required"`
	Event             LiveEvent       `json:"event" validate:"required"`
	UpdatedPrediction *ForecastRecord `json:"updated_prediction,omitempty"`
	Explanation       *Explanation    `json:"explanation,omitempty"`
	ImpactAnalysis    string          `json:"impact_analysis,omitempty"`
}

// ScenarioUpdate:
//
//	{ type, scenario, updated_predictions? }
//
// A nil UpdatedPredictions means the field was absent.
type ScenarioUpdate struct {
	Scenario           ScenarioEffect       `json:"scenario" validate:"required"`
	UpdatedPredictions []PredictionEnvelope `json:"updated_predictions,omitempty" validate:"omitempty,dive"`
}

// CedarAnswer:
//
//	{ type, answer, player_name?, player_id? }
type CedarAnswer struct {
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer"`
	PlayerName string `json:"player_name,omitempty"`
	PlayerID   string `json:"player_id,omitempty"`
}

func (Tick) InboundType() string            { return TypeTick }
func (GameInitialized) InboundType() string { return TypeGameInitialized }
func (LiveUpdate) InboundType() string      { return TypeLiveUpdate }
func (ScenarioUpdate) InboundType() string  { return TypeScenarioUpdate }
func (CedarAnswer) InboundType() string     { return TypeCedarAnswer }

// GameReset asks the server to restart the simulated contest.
type GameReset struct {
	Type string    `json:"type"`
	Data GameState `json:"data"`
}

func NewGameReset(g GameState) GameReset {
	return GameReset{Type: TypeGameReset, Data: g}
}

// ScenarioChangeData is the body of a what-if request.
type ScenarioChangeData struct {
	Type     string  `json:"type"`
	Severity float64 `json:"severity"`
}

type ScenarioChange struct {
	Type string             `json:"type"`
	Data ScenarioChangeData `json:"data"`
}

func NewScenarioChange(kind string, severity float64) ScenarioChange {
	return ScenarioChange{Type: TypeScenarioChange, Data: ScenarioChangeData{Type: kind, Severity: severity}}
}

// CedarQuestion is a free-text question bound to one player.
type CedarQuestion struct {
	Type     string `json:"type"`
	Question string `json:"question"`
	PlayerID string `json:"player_id"`
}

func NewCedarQuestion(question, playerID string) CedarQuestion {
	return CedarQuestion{Type: TypeCedarQuestion, Question: question, PlayerID: playerID}
}
