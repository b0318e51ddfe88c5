package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrTransportUnavailable = errors.New("stream transport unavailable")

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Conn is one open connection to the event source.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type Options struct {
	URL          string
	Dialer       Dialer
	WriteTimeout time.Duration
	OnMessage    func(types.Inbound)
	OnStatus     func(Status)
}

// Client owns the single connection of a session. All outbound traffic goes through Send.
type Client struct {
	url          string
	dialer       Dialer
	writeTimeout time.Duration
	onMessage    func(types.Inbound)
	onStatus     func(Status)
	log          *zap.SugaredLogger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    Conn
	status  Status
	cancel  context.CancelFunc
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(types.Inbound) {}
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(Status) {}
	}
	return &Client{
		url:          opts.URL,
		dialer:       opts.Dialer,
		writeTimeout: opts.WriteTimeout,
		onMessage:    opts.OnMessage,
		onStatus:     opts.OnStatus,
		log:          logger.Sugar().With("stream", opts.URL),
		status:       StatusDisconnected,
	}
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the connection unless one is already open. A failed attempt leaves the
// client disconnected and can be retried by calling Connect again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	if c.dialer == nil {
		c.mu.Unlock()
		c.log.Warnw("stream transport unavailable")
		return ErrTransportUnavailable
	}
	c.status = StatusConnecting
	c.mu.Unlock()
	c.onStatus(StatusConnecting)

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.onStatus(StatusDisconnected)
		c.log.Warnw("stream connect failed", "error", err)
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.status = StatusConnected
	c.cancel = cancel
	c.mu.Unlock()

	connectedStreams.Inc()
	c.log.Infow("stream connected")
	c.onStatus(StatusConnected)

	go c.readLoop(readCtx, conn)
	return nil
}

// Send marshals v and writes it if the stream is connected. It reports whether the
// payload was written and never fails loudly.
func (c *Client) Send(ctx context.Context, v any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		sendsDropped.Inc()
		c.log.Warnw("send while disconnected, dropping", "payload", fmt.Sprintf("%T", v))
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warnw("send marshal failed", "error", err)
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	err = conn.Write(writeCtx, data)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warnw("stream write failed", "error", err)
		c.drop(conn)
		return false
	}
	return true
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.drop(conn)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Infow("stream read ended", "error", err)
			}
			c.drop(conn)
			return
		}

		msg, err := Decode(data)
		switch {
		case errors.Is(err, ErrUnknownType):
			c.log.Debugw("ignoring message", "error", err)
			continue
		case err != nil:
			decodeFailures.Inc()
			c.log.Warnw("dropping malformed message", "error", err)
			continue
		}

		messagesReceived.WithLabelValues(msg.InboundType()).Inc()
		c.onMessage(msg)
	}
}

// drop tears down conn if it is still the current connection.
func (c *Client) drop(conn Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
	connectedStreams.Dec()
	c.log.Infow("stream disconnected")
	c.onStatus(StatusDisconnected)
}
