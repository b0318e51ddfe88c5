package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/assistant"
	"github.com/DoyleJ11/seetheplay/internal/engine"
	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/internal/scenario"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/internal/stream"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrSuperseded = errors.New("evaluation superseded by a newer request")
var ErrNoForecastSource = errors.New("no forecast source configured")

// Deps are shared by every dashboard the process creates.
type Deps struct {
	StreamURL        string
	Dialer           stream.Dialer
	WriteTimeout     time.Duration
	Clock            clockwork.Clock
	ComposingTimeout time.Duration
	Remote           lineup.Remote
	Forecasts        lineup.ForecastSource
	FetchConcurrency int
	BreakerTimeout   time.Duration
}

// Dashboard is one live session with its own stream connection.
type Dashboard struct {
	Code      string
	Session   *session.Session
	Stream    *stream.Client
	Scenarios *scenario.Controller
	Assistant *assistant.Bridge
	evaluator *lineup.Evaluator
	log       *zap.SugaredLogger
}

func New(ctx context.Context, code string, deps Deps, logger *zap.Logger) *Dashboard {
	logger = logger.With(zap.String("session", code))

	var sess *session.Session
	client := stream.NewClient(stream.Options{
		URL:          deps.StreamURL,
		Dialer:       deps.Dialer,
		WriteTimeout: deps.WriteTimeout,
		OnMessage: func(m types.Inbound) {
			sess.Post(session.FromStream{Msg: m})
		},
		OnStatus: func(st stream.Status) {
			sess.Post(session.StatusChanged{Status: string(st)})
		},
	}, logger)

	sess = session.New(ctx, session.Options{
		Sender:           client,
		Clock:            deps.Clock,
		ComposingTimeout: deps.ComposingTimeout,
	}, logger)

	evaluator := lineup.NewEvaluator(lineup.EvaluatorOptions{
		Remote:         deps.Remote,
		Forecasts:      cachedForecasts{session: sess, fallback: deps.Forecasts},
		Concurrency:    deps.FetchConcurrency,
		BreakerTimeout: deps.BreakerTimeout,
	}, logger)

	return &Dashboard{
		Code:      code,
		Session:   sess,
		Stream:    client,
		Scenarios: scenario.NewController(client, logger),
		Assistant: assistant.NewBridge(client, sess, logger),
		evaluator: evaluator,
		log:       logger.Sugar(),
	}
}

func (d *Dashboard) Connect(ctx context.Context) error {
	return d.Stream.Connect(ctx)
}

// Evaluate scores the session's current lineup and stores the result unless a newer
// evaluation overtook it or the rosters were edited meanwhile.
func (d *Dashboard) Evaluate(ctx context.Context) (lineup.Result, error) {
	v, err := d.Session.View(ctx)
	if err != nil {
		return lineup.Result{}, err
	}
	home, away := v.Lineup.Home, v.Lineup.Away
	res, current := d.evaluator.Evaluate(ctx, home, away)
	if !current {
		return res, ErrSuperseded
	}

	reply := make(chan error, 1)
	d.Session.Post(session.EvaluationDone{Home: home, Away: away, Result: res, Reply: reply})
	select {
	case err := <-reply:
		if errors.Is(err, session.ErrStaleEvaluation) {
			return res, ErrSuperseded
		}
		return res, err
	case <-d.Session.Done():
		return res, context.Canceled
	case <-ctx.Done():
		return res, ctx.Err()
	}
}

func (d *Dashboard) Close() {
	_ = d.Stream.Close()
	d.Session.Post(session.Shutdown{})
	d.log.Infow("dashboard closed")
}

// cachedForecasts serves forecasts already held by the session before asking the
// directory.
type cachedForecasts struct {
	session  *session.Session
	fallback lineup.ForecastSource
}

func (c cachedForecasts) PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error) {
	if v, err := c.session.View(ctx); err == nil {
		if rec, ok := engine.FindForecast(v.State, playerID); ok {
			return rec, nil
		}
	}
	if c.fallback == nil {
		return types.ForecastRecord{}, ErrNoForecastSource
	}
	return c.fallback.PlayerForecast(ctx, playerID)
}
