package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

func call[R any](ctx context.Context, a *App, method string, params any, opts []protocol.RequestOption) (*R, error) {
	if err := a.checkReady(method); err != nil {
		return nil, err
	}
	return protocol.Call[R](ctx, a.proto, method, params, opts...)
}

func (a *App) notify(ctx context.Context, method string, params any) error {
	if err := a.checkReady(method); err != nil {
		return err
	}
	return a.proto.Notify(ctx, method, params)
}

// CallServerTool calls a Backend tool through the Host.
func (a *App) CallServerTool(ctx context.Context, params mcp.CallToolRequest, opts ...protocol.RequestOption) (*mcp.CallToolResult, error) {
	return call[mcp.CallToolResult](ctx, a, string(mcp.ToolsCallMethod), params, opts)
}

// ListServerTools lists Backend tools through the Host.
func (a *App) ListServerTools(ctx context.Context, cursor string, opts ...protocol.RequestOption) (*mcp.ListToolsResult, error) {
	return call[mcp.ListToolsResult](ctx, a, string(mcp.ToolsListMethod), mcp.ListToolsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}, opts)
}

// ReadServerResource reads a Backend resource through the Host.
func (a *App) ReadServerResource(ctx context.Context, uri string, opts ...protocol.RequestOption) (*mcp.ReadResourceResult, error) {
	return call[mcp.ReadResourceResult](ctx, a, string(mcp.ResourcesReadMethod), mcp.ReadResourceRequest{URI: uri}, opts)
}

// ListServerResources lists Backend resources through the Host.
func (a *App) ListServerResources(ctx context.Context, cursor string, opts ...protocol.RequestOption) (*mcp.ListResourcesResult, error) {
	return call[mcp.ListResourcesResult](ctx, a, string(mcp.ResourcesListMethod), mcp.ListResourcesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}, opts)
}

// ListServerResourceTemplates lists Backend resource templates through the Host.
func (a *App) ListServerResourceTemplates(ctx context.Context, cursor string, opts ...protocol.RequestOption) (*mcp.ListResourceTemplatesResult, error) {
	return call[mcp.ListResourceTemplatesResult](ctx, a, string(mcp.ResourcesTemplatesListMethod), mcp.ListResourceTemplatesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}, opts)
}

// ListServerPrompts lists Backend prompts through the Host.
func (a *App) ListServerPrompts(ctx context.Context, cursor string, opts ...protocol.RequestOption) (*mcp.ListPromptsResult, error) {
	return call[mcp.ListPromptsResult](ctx, a, string(mcp.PromptsListMethod), mcp.ListPromptsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}, opts)
}

// SendMessage asks the Host to add a message to the conversation. Cancel ctx
// to abandon the request.
func (a *App) SendMessage(ctx context.Context, params mcpui.MessageParams, opts ...protocol.RequestOption) (*mcpui.MessageResult, error) {
	return call[mcpui.MessageResult](ctx, a, string(mcpui.MessageMethod), params, opts)
}

// SendLog sends a log entry to the Host.
func (a *App) SendLog(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if !mcp.IsValidLoggingLevel(level) {
		level = mcp.LoggingLevelInfo
	}
	return a.notify(ctx, string(mcp.LoggingMessageNotificationMethod), mcp.LoggingMessageNotification{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

// OpenLink asks the Host to open url.
func (a *App) OpenLink(ctx context.Context, url string, opts ...protocol.RequestOption) (*mcpui.OpenLinkResult, error) {
	return call[mcpui.OpenLinkResult](ctx, a, string(mcpui.OpenLinkMethod), mcpui.OpenLinkParams{URL: url}, opts)
}

// SendSizeChanged reports the rendered size to the Host.
func (a *App) SendSizeChanged(ctx context.Context, width, height int) error {
	return a.notify(ctx, string(mcpui.SizeChangedNotificationMethod), mcpui.SizeChangedParams{Width: width, Height: height})
}

// UpdateModelContext replaces the context the App contributes to the model.
// It does nothing when the Host does not support it.
func (a *App) UpdateModelContext(ctx context.Context, params mcpui.UpdateModelContextParams, opts ...protocol.RequestOption) error {
	_, err := call[mcp.EmptyResult](ctx, a, string(mcpui.UpdateModelContextMethod), params, opts)
	if errors.Is(err, protocol.ErrCapability) {
		a.log.DebugContext(ctx, "app.update_model_context.unsupported")
		return nil
	}
	return err
}

// RequestDisplayMode asks the Host to switch display mode and reports the
// mode it granted.
func (a *App) RequestDisplayMode(ctx context.Context, mode mcpui.DisplayMode, opts ...protocol.RequestOption) (*mcpui.RequestDisplayModeResult, error) {
	res, err := call[mcpui.RequestDisplayModeResult](ctx, a, string(mcpui.RequestDisplayModeMethod), mcpui.RequestDisplayModeParams{Mode: mode}, opts)
	if err != nil {
		return nil, err
	}
	if res.Mode != "" {
		a.mu.Lock()
		a.hostContext.DisplayMode = res.Mode
		a.mu.Unlock()
	}
	a.log.DebugContext(ctx, "app.display_mode", slog.String("requested", string(mode)), slog.String("granted", string(res.Mode)))
	return res, nil
}
