package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/engine"
	"github.com/DoyleJ11/seetheplay/internal/lineup"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

// Sender is the outbound half of the event stream.
type Sender interface {
	Send(ctx context.Context, v any) bool
}

type Msg interface{ isSessionMsg() }

type FromStream struct {
	Msg types.Inbound
}

func (FromStream) isSessionMsg() {}

type StatusChanged struct{ Status string }

func (StatusChanged) isSessionMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type SelectPlayer struct{ PlayerID string }

func (SelectPlayer) isSessionMsg() {}

// AskQuestion records a question just before it is sent upstream.
type AskQuestion struct {
	ID       string
	Question string
	PlayerID string
}

func (AskQuestion) isSessionMsg() {}

// WithdrawQuestion removes a recorded question whose send failed.
type WithdrawQuestion struct{ ID string }

func (WithdrawQuestion) isSessionMsg() {}

type AssignPlayer struct {
	Side     lineup.Side
	Position lineup.Position
	PlayerID string
	Reply    chan error
}

func (AssignPlayer) isSessionMsg() {}

type ClearLineupSlot struct {
	Side     lineup.Side
	Position lineup.Position
	Reply    chan error
}

func (ClearLineupSlot) isSessionMsg() {}

type ResetLineup struct{}

func (ResetLineup) isSessionMsg() {}

var ErrStaleEvaluation = errors.New("lineup changed during evaluation")

// EvaluationDone stores a result computed for Home and Away. It is dropped with
// ErrStaleEvaluation when the lineup no longer holds those rosters.
type EvaluationDone struct {
	Home   lineup.Roster
	Away   lineup.Roster
	Result lineup.Result
	Reply  chan error
}

func (EvaluationDone) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type scenarioExpired struct{ Gen int }

func (scenarioExpired) isSessionMsg() {}

type composingExpired struct{ Gen int }

func (composingExpired) isSessionMsg() {}

type Snapshot struct {
	Version int           `json:"version"`
	State   engine.State  `json:"state"`
	Lineup  lineup.Lineup `json:"lineup"`
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
	Lineup     lineup.Lineup
}

type Options struct {
	Sender Sender
	Clock  clockwork.Clock
	// ComposingTimeout bounds how long the composing flag waits for an answer; 0 waits forever.
	ComposingTimeout time.Duration
	Initial          *engine.State
}

// Session is the single writer of one dashboard's canonical state.
type Session struct {
	inbox            chan Msg
	state            engine.State
	lineup           lineup.Lineup
	version          int
	clients          map[string]chan Snapshot
	sender           Sender
	clock            clockwork.Clock
	composingTimeout time.Duration
	timers           []clockwork.Timer
	log              *zap.SugaredLogger
	ctx              context.Context
	cancel           context.CancelFunc
	done             chan struct{}
}

func New(parent context.Context, opts Options, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	initial := engine.NewInitialState()
	if opts.Initial != nil {
		initial = *opts.Initial
	}

	s := &Session{
		inbox:            make(chan Msg, 64),
		state:            initial,
		lineup:           lineup.NewLineup(),
		clients:          make(map[string]chan Snapshot),
		sender:           opts.Sender,
		clock:            opts.Clock,
		composingTimeout: opts.ComposingTimeout,
		log:              logger.Sugar().Named("session"),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}

	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				s.clients[msg.ClientID] = msg.Outbox
				select {
				case msg.Outbox <- s.snapshot():
				case <-s.ctx.Done():
				}

			case Leave:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case FromStream:
				effects, next, err := engine.Apply(s.state, msg.Msg, s.clock.Now())
				if err != nil {
					s.log.Debugw("stream message not applied", "type", msg.Msg.InboundType(), "error", err)
					break
				}
				s.commit(next)
				s.run(effects)

			case StatusChanged:
				s.commit(engine.SetStatus(s.state, msg.Status))

			case SelectPlayer:
				s.commit(engine.SelectPlayer(s.state, msg.PlayerID))

			case AskQuestion:
				next := engine.AppendQuestion(s.state, msg.ID, msg.Question, msg.PlayerID, s.clock.Now())
				s.commit(next)
				if s.composingTimeout > 0 {
					gen := next.ComposingGen
					s.schedule(s.composingTimeout, composingExpired{Gen: gen})
				}

			case WithdrawQuestion:
				if next, ok := engine.WithdrawQuestion(s.state, msg.ID); ok {
					s.commit(next)
				}

			case AssignPlayer:
				s.editRoster(msg.Side, msg.Reply, func(r lineup.Roster) (lineup.Roster, error) {
					return r.Assign(msg.Position, msg.PlayerID)
				})

			case ClearLineupSlot:
				s.editRoster(msg.Side, msg.Reply, func(r lineup.Roster) (lineup.Roster, error) {
					return r.Clear(msg.Position)
				})

			case ResetLineup:
				s.lineup = lineup.NewLineup()
				s.publish()

			case EvaluationDone:
				var err error
				if s.lineup.Holds(msg.Home, msg.Away) {
					res := msg.Result
					s.lineup.Result = &res
					s.publish()
				} else {
					err = ErrStaleEvaluation
					s.log.Debugw("evaluation dropped, lineup changed")
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case scenarioExpired:
				next, err := engine.ClearScenario(s.state, msg.Gen)
				if errors.Is(err, engine.ErrStaleTimer) {
					break
				}
				s.commit(next)

			case composingExpired:
				next, err := engine.ExpireComposing(s.state, msg.Gen, s.clock.Now())
				if errors.Is(err, engine.ErrStaleTimer) {
					break
				}
				s.log.Infow("composing timed out", "gen", msg.Gen)
				s.commit(next)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state,
					Lineup:     s.lineup,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) editRoster(side lineup.Side, reply chan error, edit func(lineup.Roster) (lineup.Roster, error)) {
	r, err := edit(s.lineup.Roster(side))
	if err == nil {
		s.lineup = s.lineup.WithRoster(side, r)
		s.publish()
	}
	if reply != nil {
		reply <- err
	}
}

func (s *Session) run(effects []engine.Effect) {
	for _, eff := range effects {
		switch eff.Type {
		case engine.EffSendRequest:
			if s.sender == nil {
				s.log.Warnw("no sender for outbound request")
				continue
			}
			req := eff.Request
			// Sends can block on the network; keep the loop free for inbound traffic.
			go func() {
				if !s.sender.Send(s.ctx, req) {
					s.log.Warnw("outbound request not sent", "request", req)
				}
			}()
		case engine.EffScheduleScenarioClear:
			s.schedule(eff.After, scenarioExpired{Gen: eff.Gen})
		case engine.EffAnswerReceived:
			s.log.Debugw("assistant answered")
		}
	}
}

func (s *Session) schedule(after time.Duration, msg Msg) {
	t := s.clock.AfterFunc(after, func() { s.post(msg) })
	s.timers = append(s.timers, t)
	if len(s.timers) > 32 {
		s.timers = s.timers[len(s.timers)-32:]
	}
}

func (s *Session) post(msg Msg) {
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
	}
}

func (s *Session) commit(next engine.State) {
	s.state = next
	s.publish()
}

func (s *Session) publish() {
	s.version++
	s.broadcast(s.snapshot())
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{Version: s.version, State: s.state, Lineup: s.lineup}
}

func (s *Session) shutdown() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

// Inbox exposes the session's mailbox to the stream, controllers and ws layer.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Post delivers msg unless the session has shut down.
func (s *Session) Post(msg Msg) { s.post(msg) }

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// View asks the loop for a consistent copy of the current state.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- GetState{Reply: reply}:
	case <-s.ctx.Done():
		return View{}, context.Canceled
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, context.Canceled
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
