package appbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-apps-go/internal/logctx"
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
	"github.com/ggoodman/mcp-apps-go/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// Bridge is the Host end of a UI connection. A Bridge connects once.
type Bridge struct {
	backend    Backend
	info       mcp.ImplementationInfo
	baseCaps   mcpui.HostCapabilities
	supported  []string
	log        *slog.Logger
	timeout    time.Duration
	registerer prometheus.Registerer

	proto *protocol.Protocol

	mu          sync.Mutex
	connected   bool
	backendCaps *mcp.ServerCapabilities
	routes      proxyRoute
	appCaps     *mcpui.AppCapabilities
	appInfo     *mcp.ImplementationInfo
	negotiated  string
	advertised  *mcpui.HostCapabilities
	hostContext mcpui.HostContext
	handlers    handlers
}

// New creates a Bridge that relays to backend and identifies itself as info.
func New(backend Backend, info mcp.ImplementationInfo, opts ...Option) *Bridge {
	b := &Bridge{
		backend:   backend,
		info:      info,
		supported: mcpui.SupportedProtocolVersions,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.proto = protocol.New(
		protocol.WithRole("host"),
		protocol.WithLogger(b.log),
		protocol.WithCapabilities(capabilities{b: b}),
		protocol.WithHandshakeMethods(mcpui.IsHandshakeMethod),
		protocol.WithReadyOn(string(mcpui.InitializedNotificationMethod)),
		protocol.WithDefaultTimeout(b.timeout),
		protocol.WithRegisterer(b.registerer),
	)
	b.proto.OnClose(b.onClose)
	b.installHandlers()
	return b
}

// Protocol exposes the underlying engine.
func (b *Bridge) Protocol() *protocol.Protocol { return b.proto }

// Connect binds the Bridge to t. It reads the Backend's capabilities first
// and fails with ErrBackendCapabilities, closing t, if they are unavailable.
func (b *Bridge) Connect(ctx context.Context, t transport.Transport) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return protocol.ErrAlreadyConnected
	}
	b.connected = true
	b.mu.Unlock()

	caps, err := b.backend.ServerCapabilities()
	if err != nil || caps == nil {
		if err == nil {
			err = errors.New("backend reported no capabilities")
		}
		_ = t.Close()
		_ = b.proto.Close()
		b.log.ErrorContext(ctx, "appbridge.connect.fail", slog.String("err", err.Error()))
		return fmt.Errorf("%w: %w", ErrBackendCapabilities, err)
	}

	routes := proxyRoutes(caps)
	b.mu.Lock()
	b.backendCaps = caps
	b.routes = routes
	b.mu.Unlock()
	b.installProxies(routes)

	if err := b.proto.Connect(ctx, t); err != nil {
		_ = t.Close()
		b.uninstallProxies(routes)
		_ = b.proto.Close()
		return err
	}
	b.log.InfoContext(ctx, "appbridge.connect.ok", slog.Int("proxied_methods", len(routes.requests)))
	return nil
}

// Close tears down the connection. It is idempotent.
func (b *Bridge) Close() error {
	return b.proto.Close()
}

func (b *Bridge) onClose() {
	b.mu.Lock()
	routes := b.routes
	b.routes = proxyRoute{}
	b.mu.Unlock()
	b.uninstallProxies(routes)
}

func (b *Bridge) installProxies(r proxyRoute) {
	for _, method := range r.requests {
		b.proto.SetRequestHandler(string(method), b.forward(method))
	}
	for _, method := range r.notifications {
		b.backend.SetNotificationHandler(method, b.relayNotification(method))
	}
}

func (b *Bridge) uninstallProxies(r proxyRoute) {
	for _, method := range r.notifications {
		b.backend.SetNotificationHandler(method, nil)
	}
}

// forward relays an App request to the Backend. The handler context ends
// when the App cancels or the connection closes, which abandons the Backend
// call.
func (b *Bridge) forward(method mcp.Method) protocol.RequestHandler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		ctx = logctx.WithBackendCall(ctx, &logctx.BackendCall{Method: string(method)})
		start := time.Now()
		res, err := b.backend.Call(ctx, method, params)
		if err != nil {
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", protocol.ErrCancelled, err)
			}
			b.log.InfoContext(ctx, "appbridge.forward.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return nil, err
		}
		b.log.DebugContext(ctx, "appbridge.forward.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		if len(res) == 0 {
			return mcp.EmptyResult{}, nil
		}
		return res, nil
	}
}

func (b *Bridge) relayNotification(method mcp.Method) func(context.Context, json.RawMessage) {
	return func(ctx context.Context, params json.RawMessage) {
		if !b.proto.Ready() {
			return
		}
		var p any
		if len(params) > 0 {
			p = params
		}
		if err := b.proto.Notify(ctx, string(method), p); err != nil {
			b.log.DebugContext(ctx, "appbridge.relay_notification.fail", slog.String("method", string(method)), slog.String("err", err.Error()))
		}
	}
}

// BackendCapabilities returns the capabilities captured at Connect.
func (b *Bridge) BackendCapabilities() *mcp.ServerCapabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backendCaps
}

// AppCapabilities returns what the App advertised, or nil before initialize.
func (b *Bridge) AppCapabilities() *mcpui.AppCapabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appCaps
}

// AppInfo returns the App's identity, or nil before initialize.
func (b *Bridge) AppInfo() *mcp.ImplementationInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appInfo
}

// ProtocolVersion returns the negotiated version, or "" before initialize.
func (b *Bridge) ProtocolVersion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.negotiated
}

// HostContext returns the host context as last set.
func (b *Bridge) HostContext() mcpui.HostContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hostContext
}

// HostCapabilities returns the capabilities the Bridge advertises: the
// configured base, the relayed Backend capabilities, and a capability for
// each App request that has a callback installed.
func (b *Bridge) HostCapabilities() mcpui.HostCapabilities {
	b.mu.Lock()
	defer b.mu.Unlock()

	hc := b.baseCaps
	if bc := b.backendCaps; bc != nil {
		if bc.Tools != nil {
			hc.ServerTools = &mcp.ListChangedCapability{ListChanged: bc.Tools.ListChanged}
		}
		if bc.Resources != nil {
			hc.ServerResources = &mcp.ListChangedCapability{ListChanged: bc.Resources.ListChanged}
		}
		if bc.Prompts != nil {
			hc.ServerPrompts = &mcp.ListChangedCapability{ListChanged: bc.Prompts.ListChanged}
		}
	}
	if b.handlers.openLink != nil && hc.OpenLinks == nil {
		hc.OpenLinks = &struct{}{}
	}
	if b.handlers.message != nil && hc.Message == nil {
		hc.Message = &struct{}{}
	}
	if b.handlers.loggingMessage != nil && hc.Logging == nil {
		hc.Logging = &struct{}{}
	}
	if b.handlers.updateModelContext != nil && hc.UpdateModelContext == nil {
		hc.UpdateModelContext = &struct{}{}
	}
	return hc
}

// advertisedCapabilities returns the capabilities sent in the initialize
// result, or the current ones before the handshake.
func (b *Bridge) advertisedCapabilities() mcpui.HostCapabilities {
	b.mu.Lock()
	hc := b.advertised
	b.mu.Unlock()
	if hc != nil {
		return *hc
	}
	return b.HostCapabilities()
}

func (b *Bridge) handleInitialize(ctx context.Context, req *mcpui.InitializeRequest) (*mcpui.InitializeResult, error) {
	start := time.Now()
	version := mcpui.NegotiateVersion(req.ProtocolVersion, b.supported)
	hostCaps := b.HostCapabilities()

	if err := b.proto.SetSession(protocol.Session{
		ProtocolVersion:  version,
		PeerInfo:         req.AppInfo,
		PeerCapabilities: req.AppCapabilities,
	}); err != nil {
		b.log.InfoContext(ctx, "appbridge.initialize.invalid", slog.String("err", err.Error()))
		return nil, &protocol.RemoteError{Code: jsonrpc.ErrorCodeInvalidRequest, Message: "already initialized"}
	}

	b.mu.Lock()
	appCaps, appInfo := req.AppCapabilities, req.AppInfo
	b.appCaps = &appCaps
	b.appInfo = &appInfo
	b.negotiated = version
	b.advertised = &hostCaps
	hostContext := b.hostContext
	b.mu.Unlock()

	b.log.InfoContext(ctx, "appbridge.initialize.ok",
		slog.String("requested_version", req.ProtocolVersion),
		slog.String("protocol_version", version),
		slog.String("app", req.AppInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return &mcpui.InitializeResult{
		ProtocolVersion:  version,
		HostInfo:         b.info,
		HostCapabilities: hostCaps,
		HostContext:      hostContext,
	}, nil
}

func (b *Bridge) handleInitialized(ctx context.Context, _ *mcpui.InitializedNotification) error {
	if _, ok := b.proto.Session(); !ok {
		return errors.New("initialized before initialize")
	}
	b.proto.SetReady()
	if fn := b.slots().initialized; fn != nil {
		return fn(ctx)
	}
	return nil
}
