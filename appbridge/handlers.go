package appbridge

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

// Each event has a single replaceable slot; setting nil clears it.
type handlers struct {
	initialized        func(context.Context) error
	message            func(context.Context, *mcpui.MessageParams) (*mcpui.MessageResult, error)
	openLink           func(context.Context, *mcpui.OpenLinkParams) (*mcpui.OpenLinkResult, error)
	loggingMessage     func(context.Context, *mcp.LoggingMessageNotification) error
	sizeChange         func(context.Context, *mcpui.SizeChangedParams) error
	updateModelContext func(context.Context, *mcpui.UpdateModelContextParams) error
	requestDisplayMode func(context.Context, *mcpui.RequestDisplayModeParams) (*mcpui.RequestDisplayModeResult, error)
	sandboxReady       func(context.Context, *mcpui.SandboxProxyReadyParams) error
}

func (b *Bridge) slots() handlers {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers
}

func (b *Bridge) setSlot(fn func(h *handlers)) {
	b.mu.Lock()
	fn(&b.handlers)
	b.mu.Unlock()
}

// OnInitialized sets the callback run when the App completes the handshake.
func (b *Bridge) OnInitialized(fn func(ctx context.Context) error) {
	b.setSlot(func(h *handlers) { h.initialized = fn })
}

// OnMessage serves ui/message. Setting it before the handshake advertises
// the message capability.
func (b *Bridge) OnMessage(fn func(ctx context.Context, params *mcpui.MessageParams) (*mcpui.MessageResult, error)) {
	b.setSlot(func(h *handlers) { h.message = fn })
}

// OnOpenLink serves ui/open-link. Setting it before the handshake advertises
// the openLinks capability.
func (b *Bridge) OnOpenLink(fn func(ctx context.Context, params *mcpui.OpenLinkParams) (*mcpui.OpenLinkResult, error)) {
	b.setSlot(func(h *handlers) { h.openLink = fn })
}

// OnLoggingMessage receives the App's log entries. Setting it before the
// handshake advertises the logging capability.
func (b *Bridge) OnLoggingMessage(fn func(ctx context.Context, params *mcp.LoggingMessageNotification) error) {
	b.setSlot(func(h *handlers) { h.loggingMessage = fn })
}

// OnSizeChange receives the App's rendered size.
func (b *Bridge) OnSizeChange(fn func(ctx context.Context, params *mcpui.SizeChangedParams) error) {
	b.setSlot(func(h *handlers) { h.sizeChange = fn })
}

// OnUpdateModelContext serves ui/update-model-context. Setting it before the
// handshake advertises the updateModelContext capability.
func (b *Bridge) OnUpdateModelContext(fn func(ctx context.Context, params *mcpui.UpdateModelContextParams) error) {
	b.setSlot(func(h *handlers) { h.updateModelContext = fn })
}

// OnRequestDisplayMode serves ui/request-display-mode. Without a callback
// the current display mode is returned unchanged.
func (b *Bridge) OnRequestDisplayMode(fn func(ctx context.Context, params *mcpui.RequestDisplayModeParams) (*mcpui.RequestDisplayModeResult, error)) {
	b.setSlot(func(h *handlers) { h.requestDisplayMode = fn })
}

// OnSandboxReady receives the sandbox proxy's readiness signal.
func (b *Bridge) OnSandboxReady(fn func(ctx context.Context, params *mcpui.SandboxProxyReadyParams) error) {
	b.setSlot(func(h *handlers) { h.sandboxReady = fn })
}

func (b *Bridge) installHandlers() {
	p := b.proto

	protocol.HandleRequest(p, string(mcpui.InitializeMethod), b.handleInitialize)
	protocol.HandleNotification(p, string(mcpui.InitializedNotificationMethod), b.handleInitialized)

	protocol.HandleRequest(p, string(mcpui.MessageMethod), func(ctx context.Context, params *mcpui.MessageParams) (*mcpui.MessageResult, error) {
		fn := b.slots().message
		if fn == nil {
			return nil, fmt.Errorf("%s: %w", mcpui.MessageMethod, protocol.ErrMethodNotFound)
		}
		return fn(ctx, params)
	})
	protocol.HandleRequest(p, string(mcpui.OpenLinkMethod), func(ctx context.Context, params *mcpui.OpenLinkParams) (*mcpui.OpenLinkResult, error) {
		fn := b.slots().openLink
		if fn == nil {
			return nil, fmt.Errorf("%s: %w", mcpui.OpenLinkMethod, protocol.ErrMethodNotFound)
		}
		return fn(ctx, params)
	})
	protocol.HandleRequest(p, string(mcpui.UpdateModelContextMethod), func(ctx context.Context, params *mcpui.UpdateModelContextParams) (*mcp.EmptyResult, error) {
		fn := b.slots().updateModelContext
		if fn == nil {
			return nil, fmt.Errorf("%s: %w", mcpui.UpdateModelContextMethod, protocol.ErrMethodNotFound)
		}
		return &mcp.EmptyResult{}, fn(ctx, params)
	})
	protocol.HandleRequest(p, string(mcpui.RequestDisplayModeMethod), func(ctx context.Context, params *mcpui.RequestDisplayModeParams) (*mcpui.RequestDisplayModeResult, error) {
		fn := b.slots().requestDisplayMode
		if fn == nil {
			return &mcpui.RequestDisplayModeResult{Mode: b.HostContext().DisplayMode}, nil
		}
		res, err := fn(ctx, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return &mcpui.RequestDisplayModeResult{Mode: b.HostContext().DisplayMode}, nil
		}
		if res.Mode != "" {
			b.mu.Lock()
			b.hostContext.DisplayMode = res.Mode
			b.mu.Unlock()
		}
		return res, nil
	})

	protocol.HandleNotification(p, string(mcp.LoggingMessageNotificationMethod), func(ctx context.Context, params *mcp.LoggingMessageNotification) error {
		if fn := b.slots().loggingMessage; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.SizeChangedNotificationMethod), func(ctx context.Context, params *mcpui.SizeChangedParams) error {
		if fn := b.slots().sizeChange; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.SandboxProxyReadyNotificationMethod), func(ctx context.Context, params *mcpui.SandboxProxyReadyParams) error {
		if fn := b.slots().sandboxReady; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
}
