// Package memory provides an in-process implementation of channel.Channel.
// It is the analogue of a browser window's postMessage bus and is suitable
// for embedding an App and its Host in the same process, and for tests.
package memory

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/ggoodman/mcp-apps-go/channel"
)

// Channel is an in-memory broadcast channel.
type Channel struct {
	fanout channel.Fanout
	closed atomic.Bool
}

var _ channel.Channel = (*Channel)(nil)

// New creates an empty in-memory channel.
func New() *Channel {
	return &Channel{}
}

// Post implements channel.Channel.
func (c *Channel) Post(ctx context.Context, env channel.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return channel.ErrClosed
	}
	// Receivers must not observe later mutation of the caller's buffer.
	env.Data = slices.Clone(env.Data)
	c.fanout.Deliver(env)
	return nil
}

// Listen implements channel.Channel.
func (c *Channel) Listen(fn channel.Listener) (func(), error) {
	return c.fanout.Add(fn)
}

// Listeners reports how many listeners are currently registered.
func (c *Channel) Listeners() int {
	return c.fanout.Len()
}

// Close drops every listener. Subsequent Post and Listen calls fail with
// channel.ErrClosed.
func (c *Channel) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.fanout.Close()
	}
	return nil
}
