package app

import (
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes an App.
type Option func(*App)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithCapabilities sets the capabilities the App advertises.
func WithCapabilities(c mcpui.AppCapabilities) Option {
	return func(a *App) { a.caps = c }
}

// WithProtocolVersion sets the version requested during the handshake.
func WithProtocolVersion(v string) Option {
	return func(a *App) {
		if v != "" {
			a.version = v
		}
	}
}

// WithAutoResize controls whether size changes are reported automatically
// once connected. It defaults to true and has no effect without a Surface.
func WithAutoResize(enabled bool) Option {
	return func(a *App) { a.autoResize = enabled }
}

// WithSurface sets the surface whose size is reported to the Host.
func WithSurface(s Surface) Option {
	return func(a *App) { a.surface = s }
}

// WithFrameScheduler overrides how size reports are aligned to frames.
func WithFrameScheduler(s FrameScheduler) Option {
	return func(a *App) {
		if s != nil {
			a.scheduler = s
		}
	}
}

// WithRequestTimeout bounds every request the App sends unless overridden
// per call with protocol.WithTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *App) { a.timeout = d }
}

// WithRegisterer registers protocol metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(a *App) { a.registerer = r }
}
