package appbridge

import (
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes a Bridge.
type Option func(*Bridge)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithHostCapabilities sets capabilities advertised in addition to those
// derived from the Backend and from the installed callbacks.
func WithHostCapabilities(c mcpui.HostCapabilities) Option {
	return func(b *Bridge) { b.baseCaps = c }
}

// WithHostContext sets the host context sent during the handshake.
func WithHostContext(hc mcpui.HostContext) Option {
	return func(b *Bridge) { b.hostContext = hc }
}

// WithSupportedProtocolVersions sets the versions the Bridge accepts, newest
// first.
func WithSupportedProtocolVersions(versions ...string) Option {
	return func(b *Bridge) {
		if len(versions) > 0 {
			b.supported = versions
		}
	}
}

// WithRequestTimeout bounds every request the Bridge sends to the App.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithRegisterer registers protocol metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(b *Bridge) { b.registerer = r }
}
