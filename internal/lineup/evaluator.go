package lineup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrForecastsUnavailable = errors.New("no player forecasts available")
var ErrInvalidResult = errors.New("invalid evaluation result")

var validate = validator.New()

// Remote submits both rosters to the server-side evaluator.
type Remote interface {
	EvaluateLineup(ctx context.Context, home, away Roster) (Result, error)
}

type ForecastSource interface {
	PlayerForecast(ctx context.Context, playerID string) (types.ForecastRecord, error)
}

type EvaluatorOptions struct {
	Remote         Remote
	Forecasts      ForecastSource
	Concurrency    int
	BreakerTimeout time.Duration
	// Jitter returns a value in [-1, 1] for the neutral fallback.
	Jitter func() float64
}

// Evaluator tries the server, then the local heuristic, then a neutral estimate.
// Only the most recently issued evaluation is reported as current.
type Evaluator struct {
	remote      Remote
	forecasts   ForecastSource
	breaker     *gobreaker.CircuitBreaker
	concurrency int
	jitter      func() float64
	seq         atomic.Uint64
	log         *zap.SugaredLogger
}

func NewEvaluator(opts EvaluatorOptions, logger *zap.Logger) *Evaluator {
	log := logger.Sugar().Named("lineup")
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Jitter == nil {
		opts.Jitter = func() float64 { return rand.Float64()*2 - 1 }
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lineup-evaluate",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Evaluator{
		remote:      opts.Remote,
		forecasts:   opts.Forecasts,
		breaker:     cb,
		concurrency: opts.Concurrency,
		jitter:      opts.Jitter,
		log:         log,
	}
}

// Evaluate always returns a result. The bool is false when a newer evaluation was
// issued while this one ran; callers should discard such a result.
func (e *Evaluator) Evaluate(ctx context.Context, home, away Roster) (Result, bool) {
	seq := e.seq.Add(1)
	res := e.evaluate(ctx, home, away)
	evaluations.WithLabelValues(string(res.Source)).Inc()

	if e.seq.Load() != seq {
		evaluationsSuperseded.Inc()
		e.log.Debugw("evaluation superseded", "seq", seq)
		return res, false
	}
	return res, true
}

func (e *Evaluator) evaluate(ctx context.Context, home, away Roster) Result {
	if e.remote != nil {
		res, err := e.evaluateRemote(ctx, home, away)
		if err == nil {
			return res
		}
		e.log.Warnw("server evaluation failed, using heuristic", "error", err)
	}

	res, err := e.evaluateLocal(ctx, home, away)
	if err == nil {
		return res
	}
	e.log.Warnw("heuristic evaluation failed, using neutral estimate", "error", err)
	return Neutral(e.jitter())
}

func (e *Evaluator) evaluateRemote(ctx context.Context, home, away Roster) (Result, error) {
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.remote.EvaluateLineup(ctx, home, away)
	})
	if err != nil {
		return Result{}, err
	}
	res := out.(Result)
	if math.IsNaN(res.WinProbability) {
		return Result{}, ErrInvalidResult
	}
	if err := validate.Struct(res); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	res.WinProbability = clampPercent(res.WinProbability)
	res.Source = SourceServer
	return res, nil
}

func (e *Evaluator) evaluateLocal(ctx context.Context, home, away Roster) (Result, error) {
	homeIDs, awayIDs := home.PlayerIDs(), away.PlayerIDs()
	if len(homeIDs)+len(awayIDs) == 0 {
		return Estimate(nil, nil), nil
	}
	if e.forecasts == nil {
		return Result{}, ErrForecastsUnavailable
	}

	homeC, awayC, fetched := e.gather(ctx, homeIDs, awayIDs)
	if fetched == 0 {
		return Result{}, ErrForecastsUnavailable
	}
	return Estimate(homeC, awayC), nil
}

// gather fetches every assigned player's forecast with bounded parallelism. Failed
// fetches leave a nil Record behind.
func (e *Evaluator) gather(ctx context.Context, homeIDs, awayIDs []string) ([]Contribution, []Contribution, int) {
	homeC := make([]Contribution, len(homeIDs))
	awayC := make([]Contribution, len(awayIDs))
	var fetched atomic.Int32

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	fetch := func(dst *Contribution, id string) {
		dst.PlayerID = id
		g.Go(func() error {
			rec, err := e.forecasts.PlayerForecast(ctx, id)
			if err != nil {
				e.log.Warnw("forecast fetch failed", "player_id", id, "error", err)
				return nil
			}
			rec = rec.Clamped()
			dst.Record = &rec
			fetched.Add(1)
			return nil
		})
	}
	for i, id := range homeIDs {
		fetch(&homeC[i], id)
	}
	for i, id := range awayIDs {
		fetch(&awayC[i], id)
	}
	_ = g.Wait()

	return homeC, awayC, int(fetched.Load())
}
