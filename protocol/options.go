package protocol

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes a Protocol.
type Option func(*Protocol)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRole names the local role in logs and metrics ("app" or "host").
func WithRole(role string) Option {
	return func(p *Protocol) { p.role = role }
}

// WithCapabilities installs the capability checks for the role.
func WithCapabilities(c Capabilities) Option {
	return func(p *Protocol) {
		if c != nil {
			p.caps = c
		}
	}
}

// WithHandshakeMethods sets the predicate for methods that may be exchanged
// before SetReady. ping is always allowed.
func WithHandshakeMethods(fn func(method string) bool) Option {
	return func(p *Protocol) { p.handshake = fn }
}

// WithReadyOn marks the Protocol ready as soon as a notification named method
// arrives after SetSession, before its handler is queued. Requests that
// follow it on the wire are never refused as premature.
func WithReadyOn(method string) Option {
	return func(p *Protocol) { p.readyOn = method }
}

// WithDefaultTimeout bounds every Request that does not set its own timeout.
// Zero means requests wait until their context ends.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Protocol) { p.defaultTimeout = d }
}

// WithRegisterer registers the protocol's metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(p *Protocol) { p.registerer = r }
}

// RequestOption customizes a single Request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout fails the request with ErrTimeout if no response arrives
// within d.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}
