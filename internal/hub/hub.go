package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/seetheplay/internal/dashboard"
)

// Factory builds the dashboard for a newly registered code.
type Factory func(ctx context.Context, code string) *dashboard.Dashboard

type HubMsg interface{ isHubMsg() }

var ErrCodeTaken = errors.New("session code already in use")

// CreateSession registers Code. With IfAbsent set, an existing session is not reused
// and the reply is nil.
type CreateSession struct {
	Code     string
	IfAbsent bool
	Reply    chan *dashboard.Dashboard
}

type GetSession struct {
	Code  string
	Reply chan *dashboard.Dashboard
}

type RemoveSession struct {
	Code string
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*dashboard.Dashboard
	factory  Factory
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, factory Factory) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*dashboard.Dashboard),
		factory:  factory,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if d := h.sessions[msg.Code]; d != nil {
					if msg.IfAbsent {
						d = nil
					}
					msg.Reply <- d
					break
				}
				d := h.factory(h.ctx, msg.Code)
				h.sessions[msg.Code] = d
				msg.Reply <- d

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // May be nil

			case RemoveSession:
				if d := h.sessions[msg.Code]; d != nil {
					d.Close()
					delete(h.sessions, msg.Code)
				}

			case ListSessions:
				codes := make([]string, 0, len(h.sessions))
				for code := range h.sessions {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, d := range h.sessions {
		d.Close()
	}
	clear(h.sessions)
	h.cancel()
}

// Get looks up a session without blocking past ctx.
func (h *Hub) Get(ctx context.Context, code string) (*dashboard.Dashboard, error) {
	return h.ask(ctx, GetSession{Code: code, Reply: make(chan *dashboard.Dashboard, 1)})
}

// Create registers code, reusing an existing session with the same code.
func (h *Hub) Create(ctx context.Context, code string) (*dashboard.Dashboard, error) {
	return h.ask(ctx, CreateSession{Code: code, Reply: make(chan *dashboard.Dashboard, 1)})
}

// CreateNew registers code only if no session holds it yet.
func (h *Hub) CreateNew(ctx context.Context, code string) (*dashboard.Dashboard, error) {
	d, err := h.ask(ctx, CreateSession{Code: code, IfAbsent: true, Reply: make(chan *dashboard.Dashboard, 1)})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrCodeTaken
	}
	return d, nil
}

func (h *Hub) ask(ctx context.Context, msg HubMsg) (*dashboard.Dashboard, error) {
	var reply chan *dashboard.Dashboard
	switch m := msg.(type) {
	case GetSession:
		reply = m.Reply
	case CreateSession:
		reply = m.Reply
	}

	select {
	case h.inbox <- msg:
	case <-h.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case d := <-reply:
		return d, nil
	case <-h.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
