package app

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

// Each event has a single replaceable slot; setting nil clears it.
type handlers struct {
	toolInput          func(context.Context, *mcpui.ToolInputParams) error
	toolInputPartial   func(context.Context, *mcpui.ToolInputPartialParams) error
	toolResult         func(context.Context, *mcpui.ToolResultParams) error
	toolCancelled      func(context.Context, *mcpui.ToolCancelledParams) error
	hostContextChanged func(context.Context, mcpui.HostContext) error
	teardown           func(context.Context, *mcpui.ResourceTeardownParams) error
	callTool           func(context.Context, *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
	listTools          func(context.Context, *mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
}

func (a *App) slots() handlers {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers
}

// OnToolInput sets the handler for the complete tool arguments.
func (a *App) OnToolInput(fn func(ctx context.Context, params *mcpui.ToolInputParams) error) {
	a.mu.Lock()
	a.handlers.toolInput = fn
	a.mu.Unlock()
}

// OnToolInputPartial sets the handler for streamed tool arguments. The last
// argument value may be truncated.
func (a *App) OnToolInputPartial(fn func(ctx context.Context, params *mcpui.ToolInputPartialParams) error) {
	a.mu.Lock()
	a.handlers.toolInputPartial = fn
	a.mu.Unlock()
}

// OnToolResult sets the handler for the originating tool call's result.
func (a *App) OnToolResult(fn func(ctx context.Context, params *mcpui.ToolResultParams) error) {
	a.mu.Lock()
	a.handlers.toolResult = fn
	a.mu.Unlock()
}

// OnToolCancelled sets the handler invoked when the originating tool call is
// cancelled.
func (a *App) OnToolCancelled(fn func(ctx context.Context, params *mcpui.ToolCancelledParams) error) {
	a.mu.Lock()
	a.handlers.toolCancelled = fn
	a.mu.Unlock()
}

// OnHostContextChanged sets the handler for host context updates. The update
// is merged into HostContext before fn runs; fn receives only the changed
// fields.
func (a *App) OnHostContextChanged(fn func(ctx context.Context, changed mcpui.HostContext) error) {
	a.mu.Lock()
	a.handlers.hostContextChanged = fn
	a.mu.Unlock()
}

// OnTeardown sets the handler for the Host's teardown request. The Host
// waits for fn to return before removing the App. Without a handler the
// request is acknowledged immediately.
func (a *App) OnTeardown(fn func(ctx context.Context, params *mcpui.ResourceTeardownParams) error) {
	a.mu.Lock()
	a.handlers.teardown = fn
	a.mu.Unlock()
}

// OnCallTool serves tools/call from the Host. It requires the Tools
// capability.
func (a *App) OnCallTool(fn func(ctx context.Context, params *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)) {
	a.mu.Lock()
	a.handlers.callTool = fn
	a.mu.Unlock()
}

// OnListTools serves tools/list from the Host. It requires the Tools
// capability.
func (a *App) OnListTools(fn func(ctx context.Context, params *mcp.ListToolsRequest) (*mcp.ListToolsResult, error)) {
	a.mu.Lock()
	a.handlers.listTools = fn
	a.mu.Unlock()
}

func (a *App) installHandlers() {
	p := a.proto

	protocol.HandleNotification(p, string(mcpui.ToolInputNotificationMethod), func(ctx context.Context, params *mcpui.ToolInputParams) error {
		if fn := a.slots().toolInput; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.ToolInputPartialNotificationMethod), func(ctx context.Context, params *mcpui.ToolInputPartialParams) error {
		if fn := a.slots().toolInputPartial; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.ToolResultNotificationMethod), func(ctx context.Context, params *mcpui.ToolResultParams) error {
		if fn := a.slots().toolResult; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.ToolCancelledNotificationMethod), func(ctx context.Context, params *mcpui.ToolCancelledParams) error {
		if fn := a.slots().toolCancelled; fn != nil {
			return fn(ctx, params)
		}
		return nil
	})
	protocol.HandleNotification(p, string(mcpui.HostContextChangedNotificationMethod), func(ctx context.Context, params *mcpui.HostContext) error {
		a.mu.Lock()
		a.hostContext = a.hostContext.Merge(*params)
		fn := a.handlers.hostContextChanged
		a.mu.Unlock()
		if fn != nil {
			return fn(ctx, *params)
		}
		return nil
	})

	protocol.HandleRequest(p, string(mcpui.ResourceTeardownMethod), func(ctx context.Context, params *mcpui.ResourceTeardownParams) (*mcpui.ResourceTeardownResult, error) {
		if fn := a.slots().teardown; fn != nil {
			if err := fn(ctx, params); err != nil {
				return nil, err
			}
		}
		return &mcpui.ResourceTeardownResult{}, nil
	})
	protocol.HandleRequest(p, string(mcp.ToolsCallMethod), func(ctx context.Context, params *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		fn := a.slots().callTool
		if fn == nil {
			return nil, fmt.Errorf("%s: %w", mcp.ToolsCallMethod, protocol.ErrMethodNotFound)
		}
		return fn(ctx, params)
	})
	protocol.HandleRequest(p, string(mcp.ToolsListMethod), func(ctx context.Context, params *mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
		fn := a.slots().listTools
		if fn == nil {
			return nil, fmt.Errorf("%s: %w", mcp.ToolsListMethod, protocol.ErrMethodNotFound)
		}
		return fn(ctx, params)
	})
}
