package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/mcp-apps-go/channel"
	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"golang.org/x/time/rate"
)

// Option customizes a PostMessage transport.
type Option func(*PostMessage)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *PostMessage) {
		if l != nil {
			t.log = l
		}
	}
}

// WithRateLimit bounds the rate of envelopes accepted from the peer. Excess
// envelopes are dropped and reported through OnError as ErrRateLimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(t *PostMessage) {
		if rps > 0 && burst > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// PostMessage is a Transport over a channel.Channel. Outbound envelopes are
// stamped with the local endpoint id; inbound envelopes are accepted only
// from the peer endpoint id.
type PostMessage struct {
	ch      channel.Channel
	self    string
	peer    string
	log     *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	started bool
	closed  bool
	cb      Callbacks
	cancel  func()
}

var _ Transport = (*PostMessage)(nil)

// NewPostMessage creates a transport for the endpoint self talking to the
// endpoint peer over ch.
func NewPostMessage(ch channel.Channel, self, peer string, opts ...Option) *PostMessage {
	t := &PostMessage{
		ch:   ch,
		self: self,
		peer: peer,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(slog.String("endpoint", self))
	return t
}

// Self returns the local endpoint id.
func (t *PostMessage) Self() string { return t.self }

// Peer returns the expected peer endpoint id.
func (t *PostMessage) Peer() string { return t.peer }

// Start implements Transport.
func (t *PostMessage) Start(ctx context.Context, cb Callbacks) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.self == "" || t.peer == "" {
		return fmt.Errorf("transport: endpoint ids must be set (self=%q peer=%q)", t.self, t.peer)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return nil
	}

	cancel, err := t.ch.Listen(t.receive)
	if err != nil {
		return fmt.Errorf("failed to listen on channel: %w", err)
	}
	t.cb = cb
	t.cancel = cancel
	t.started = true
	t.log.DebugContext(ctx, "transport.start", slog.String("peer", t.peer))
	return nil
}

func (t *PostMessage) receive(env channel.Envelope) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	cb := t.cb
	t.mu.Unlock()

	if env.Source != t.peer {
		if env.Source != t.self {
			t.log.Debug("transport.drop.unexpected_source", slog.String("source", env.Source))
		}
		return
	}

	if t.limiter != nil && !t.limiter.Allow() {
		t.log.Warn("transport.drop.rate_limited", slog.String("source", env.Source))
		if cb.OnError != nil {
			cb.OnError(ErrRateLimited)
		}
		return
	}

	msg, err := jsonrpc.Decode(env.Data)
	if err != nil {
		t.log.Warn("transport.drop.invalid", slog.String("source", env.Source), slog.String("err", err.Error()))
		if cb.OnError != nil {
			cb.OnError(&ParseError{Source: env.Source, Err: err})
		}
		return
	}

	if cb.OnMessage != nil {
		cb.OnMessage(msg)
	}
}

// Send implements Transport.
func (t *PostMessage) Send(ctx context.Context, msg *jsonrpc.AnyMessage) error {
	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := t.ch.Post(ctx, channel.Envelope{Source: t.self, Data: data}); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *PostMessage) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel, onClose := t.cancel, t.cb.OnClose
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.log.Debug("transport.close")
	if onClose != nil {
		onClose()
	}
	return nil
}
