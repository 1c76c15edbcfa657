package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
	"github.com/ggoodman/mcp-apps-go/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// App is the client end of a UI connection. An App connects once; create a
// new App to reconnect.
type App struct {
	info       mcp.ImplementationInfo
	caps       mcpui.AppCapabilities
	version    string
	log        *slog.Logger
	timeout    time.Duration
	registerer prometheus.Registerer

	autoResize bool
	surface    Surface
	scheduler  FrameScheduler
	reporter   *sizeReporter

	proto *protocol.Protocol
	state atomic.Int32

	mu          sync.Mutex
	hostCaps    *mcpui.HostCapabilities
	hostInfo    *mcp.ImplementationInfo
	hostContext mcpui.HostContext
	negotiated  string
	handlers    handlers
}

// New creates an App identified by info.
func New(info mcp.ImplementationInfo, opts ...Option) *App {
	a := &App{
		info:       info,
		version:    mcpui.LatestProtocolVersion,
		log:        slog.Default(),
		autoResize: true,
		scheduler:  TimerScheduler{},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.proto = protocol.New(
		protocol.WithRole("app"),
		protocol.WithLogger(a.log),
		protocol.WithCapabilities(capabilities{a: a}),
		protocol.WithHandshakeMethods(mcpui.IsHandshakeMethod),
		protocol.WithDefaultTimeout(a.timeout),
		protocol.WithRegisterer(a.registerer),
	)
	a.proto.OnClose(a.onClose)
	a.installHandlers()
	return a
}

// Protocol exposes the underlying engine for methods outside the UI
// vocabulary.
func (a *App) Protocol() *protocol.Protocol { return a.proto }

// State reports the current lifecycle state.
func (a *App) State() State { return State(a.state.Load()) }

// HostCapabilities returns the Host's capabilities, or nil before the
// handshake.
func (a *App) HostCapabilities() *mcpui.HostCapabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostCaps
}

// HostInfo returns the Host's identity, or nil before the handshake.
func (a *App) HostInfo() *mcp.ImplementationInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostInfo
}

// HostContext returns the current host context with every update applied.
func (a *App) HostContext() mcpui.HostContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostContext
}

// ProtocolVersion returns the version the Host chose, or "" before the
// handshake.
func (a *App) ProtocolVersion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.negotiated
}

// Connect performs the handshake over t. On any failure the transport is
// closed and a *protocol.HandshakeError is returned.
func (a *App) Connect(ctx context.Context, t transport.Transport) error {
	if !a.state.CompareAndSwap(int32(StateUnconnected), int32(StateAwaitingInitializeResult)) {
		return protocol.ErrAlreadyConnected
	}
	start := time.Now()

	if err := a.proto.Connect(ctx, t); err != nil {
		_ = t.Close()
		return a.failHandshake(ctx, err)
	}

	res, err := protocol.Call[mcpui.InitializeResult](ctx, a.proto, string(mcpui.InitializeMethod), mcpui.InitializeRequest{
		ProtocolVersion: a.version,
		AppInfo:         a.info,
		AppCapabilities: a.caps,
	})
	if err != nil {
		return a.failHandshake(ctx, err)
	}
	if res.ProtocolVersion == "" {
		return a.failHandshake(ctx, errors.New("host returned no protocol version"))
	}

	a.mu.Lock()
	a.hostCaps = &res.HostCapabilities
	a.hostInfo = &res.HostInfo
	a.hostContext = res.HostContext
	a.negotiated = res.ProtocolVersion
	a.mu.Unlock()

	if err := a.proto.SetSession(protocol.Session{
		ProtocolVersion:  res.ProtocolVersion,
		PeerInfo:         res.HostInfo,
		PeerCapabilities: res.HostCapabilities,
	}); err != nil {
		return a.failHandshake(ctx, err)
	}
	a.state.Store(int32(StateAwaitingInitializedSent))

	// Host traffic may follow initialized immediately.
	a.proto.SetReady()
	if err := a.proto.Notify(ctx, string(mcpui.InitializedNotificationMethod), mcpui.InitializedNotification{}); err != nil {
		return a.failHandshake(ctx, err)
	}
	if !a.state.CompareAndSwap(int32(StateAwaitingInitializedSent), int32(StateReady)) {
		return a.failHandshake(ctx, protocol.ErrClosed)
	}

	a.log.InfoContext(ctx, "app.connect.ok",
		slog.String("protocol_version", res.ProtocolVersion),
		slog.String("host", res.HostInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)

	if a.autoResize && a.surface != nil {
		a.mu.Lock()
		a.reporter = newSizeReporter(a.surface, a.scheduler, a.reportSize)
		r := a.reporter
		a.mu.Unlock()
		r.start()
	}
	return nil
}

func (a *App) failHandshake(ctx context.Context, err error) error {
	_ = a.proto.Close()
	a.state.Store(int32(StateClosed))
	a.log.WarnContext(ctx, "app.connect.fail", slog.String("err", err.Error()))
	return &protocol.HandshakeError{Err: err}
}

// Close tears down the connection. It is idempotent.
func (a *App) Close() error {
	return a.proto.Close()
}

func (a *App) onClose() {
	a.state.Store(int32(StateClosed))
	a.mu.Lock()
	r := a.reporter
	a.reporter = nil
	a.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

func (a *App) reportSize(s Size) {
	ctx := context.Background()
	if err := a.SendSizeChanged(ctx, s.Width, s.Height); err != nil {
		a.log.DebugContext(ctx, "app.size_change.fail", slog.String("err", err.Error()))
	}
}

func (a *App) checkReady(method string) error {
	switch a.State() {
	case StateReady:
		return nil
	case StateClosed:
		return protocol.ErrClosed
	case StateUnconnected:
		return protocol.ErrNotConnected
	}
	return fmt.Errorf("%s: %w", method, protocol.ErrNotReady)
}
