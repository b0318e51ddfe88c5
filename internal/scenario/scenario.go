package scenario

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrUnknownScenario = errors.New("unknown scenario")
var ErrNotSent = errors.New("scenario request not sent")

type Sender interface {
	Send(ctx context.Context, v any) bool
}

// Preset is a named what-if the dashboard can ask the server to simulate.
type Preset struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Severity float64 `json:"severity"`
}

var presets = []Preset{
	{Name: "weather", Type: "weather_change", Severity: 0.15},
	{Name: "high-scoring", Type: "high_scoring", Severity: 0.2},
}

func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// Lookup accepts "high-scoring", "high_scoring" and "High Scoring" alike.
func Lookup(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	for _, p := range presets {
		if p.Name == key {
			return p, nil
		}
	}
	return Preset{}, ErrUnknownScenario
}

// Controller only sends the request. The resulting scenario_update comes back over
// the stream like any other event.
type Controller struct {
	sender Sender
	log    *zap.SugaredLogger
}

func NewController(sender Sender, logger *zap.Logger) *Controller {
	return &Controller{sender: sender, log: logger.Sugar().Named("scenario")}
}

func (c *Controller) Trigger(ctx context.Context, name string) (Preset, error) {
	p, err := Lookup(name)
	if err != nil {
		return Preset{}, err
	}
	if !c.sender.Send(ctx, types.NewScenarioChange(p.Type, p.Severity)) {
		return p, ErrNotSent
	}
	c.log.Infow("scenario requested", "scenario", p.Name, "severity", p.Severity)
	return p, nil
}
