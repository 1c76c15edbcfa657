package appbridge

import (
	"context"
	"log/slog"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

// SendToolInput delivers the complete arguments of the originating tool call.
func (b *Bridge) SendToolInput(ctx context.Context, params mcpui.ToolInputParams) error {
	return b.proto.Notify(ctx, string(mcpui.ToolInputNotificationMethod), params)
}

// SendToolInputPartial delivers arguments that are still streaming.
func (b *Bridge) SendToolInputPartial(ctx context.Context, params mcpui.ToolInputPartialParams) error {
	return b.proto.Notify(ctx, string(mcpui.ToolInputPartialNotificationMethod), params)
}

// SendToolResult delivers the originating tool call's result.
func (b *Bridge) SendToolResult(ctx context.Context, result mcpui.ToolResultParams) error {
	return b.proto.Notify(ctx, string(mcpui.ToolResultNotificationMethod), result)
}

// SendToolCancelled tells the App the originating tool call was cancelled.
func (b *Bridge) SendToolCancelled(ctx context.Context, reason string) error {
	return b.proto.Notify(ctx, string(mcpui.ToolCancelledNotificationMethod), mcpui.ToolCancelledParams{Reason: reason})
}

// SendSandboxResourceReady hands the App's HTML to the sandbox proxy. It may
// be sent before the handshake.
func (b *Bridge) SendSandboxResourceReady(ctx context.Context, params mcpui.SandboxResourceReadyParams) error {
	return b.proto.Notify(ctx, string(mcpui.SandboxResourceReadyNotificationMethod), params)
}

// SendResourceTeardown asks the App to prepare for removal and waits for it
// to acknowledge.
func (b *Bridge) SendResourceTeardown(ctx context.Context, opts ...protocol.RequestOption) (*mcpui.ResourceTeardownResult, error) {
	return protocol.Call[mcpui.ResourceTeardownResult](ctx, b.proto, string(mcpui.ResourceTeardownMethod), mcpui.ResourceTeardownParams{}, opts...)
}

// CallAppTool calls a tool exposed by the App. It requires the App's tools
// capability.
func (b *Bridge) CallAppTool(ctx context.Context, params mcp.CallToolRequest, opts ...protocol.RequestOption) (*mcp.CallToolResult, error) {
	return protocol.Call[mcp.CallToolResult](ctx, b.proto, string(mcp.ToolsCallMethod), params, opts...)
}

// ListAppTools lists the tools exposed by the App.
func (b *Bridge) ListAppTools(ctx context.Context, cursor string, opts ...protocol.RequestOption) (*mcp.ListToolsResult, error) {
	return protocol.Call[mcp.ListToolsResult](ctx, b.proto, string(mcp.ToolsListMethod), mcp.ListToolsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}, opts...)
}

// SetHostContext applies the fields set in hc to the host context. Once the
// App is initialized the fields that changed are sent as a
// host-context-changed notification; before that the context is simply
// included in the initialize result.
func (b *Bridge) SetHostContext(ctx context.Context, hc mcpui.HostContext) error {
	b.mu.Lock()
	diff, changed := b.hostContext.Changes(hc)
	b.hostContext = b.hostContext.Merge(hc)
	b.mu.Unlock()

	if !changed || !b.proto.Ready() {
		return nil
	}
	if err := b.proto.Notify(ctx, string(mcpui.HostContextChangedNotificationMethod), diff); err != nil {
		return err
	}
	b.log.DebugContext(ctx, "appbridge.host_context.sent")
	return nil
}

// Ping checks that the App is responsive.
func (b *Bridge) Ping(ctx context.Context, opts ...protocol.RequestOption) error {
	_, err := b.proto.Request(ctx, string(mcp.PingMethod), nil, opts...)
	if err != nil {
		b.log.DebugContext(ctx, "appbridge.ping.fail", slog.String("err", err.Error()))
	}
	return err
}
