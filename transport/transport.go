// Package transport carries JSON-RPC messages between exactly two endpoints
// over a shared broadcast channel.
//
// The channel is untrusted: anyone on it can post. A PostMessage transport
// only delivers envelopes whose source matches the peer it was configured
// with, and only after they pass structural JSON-RPC validation.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
)

var (
	// ErrNotStarted is returned by Send before Start.
	ErrNotStarted = errors.New("transport not started")
	// ErrClosed is returned by Start and Send after Close.
	ErrClosed = errors.New("transport closed")
	// ErrParse is matched by every ParseError.
	ErrParse = errors.New("parse error")
	// ErrRateLimited is reported through OnError when the peer exceeds the
	// configured inbound rate.
	ErrRateLimited = errors.New("inbound rate limit exceeded")
)

// Callbacks receive inbound traffic. All three are invoked from the
// transport's single delivery goroutine, in order.
type Callbacks struct {
	// OnMessage receives every validated message from the peer.
	OnMessage func(msg *jsonrpc.AnyMessage)
	// OnError receives envelopes that could not be delivered.
	OnError func(err error)
	// OnClose is invoked exactly once, when the transport closes.
	OnClose func()
}

// Transport is a point-to-point message pipe.
type Transport interface {
	// Start begins listening. Calling Start again is a no-op.
	Start(ctx context.Context, cb Callbacks) error
	// Send posts msg to the peer. Delivery is not acknowledged.
	Send(ctx context.Context, msg *jsonrpc.AnyMessage) error
	// Close stops listening and invokes OnClose. It is idempotent.
	Close() error
}

// ParseError reports an envelope from the peer that was not a valid JSON-RPC
// message.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error from %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
