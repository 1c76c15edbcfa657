// Package channel defines the broadcast medium that App and Host endpoints
// share. A Channel behaves like a window's postMessage bus: every envelope
// posted is delivered to every listener, including listeners owned by the
// poster. Endpoints tell each other apart by the Source stamped on each
// envelope; filtering is the transport's job, not the channel's.
package channel

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// ErrClosed is returned by Post and Listen after the channel is closed.
var ErrClosed = errors.New("channel closed")

// Envelope is one posted frame. Data holds a single JSON-RPC message.
type Envelope struct {
	// Source identifies the endpoint that posted the envelope.
	Source string `json:"source"`
	// Data is the serialized message.
	Data json.RawMessage `json:"data"`
}

// Listener receives envelopes. A listener is always invoked from a single
// goroutine, in the order envelopes were observed by the channel.
type Listener func(Envelope)

// Channel is a broadcast medium.
type Channel interface {
	// Post broadcasts env to all current listeners.
	Post(ctx context.Context, env Envelope) error

	// Listen registers fn. After the returned cancel func returns no new
	// delivery to fn starts; a delivery already in progress runs to
	// completion. cancel is safe to call more than once, including from fn.
	Listen(fn Listener) (cancel func(), err error)
}

// NewEndpointID returns a fresh random endpoint identifier suitable for use
// as an Envelope Source.
func NewEndpointID() string {
	return uuid.NewString()
}
