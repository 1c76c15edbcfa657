package appbridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ggoodman/mcp-apps-go/mcp"
)

// ErrBackendCapabilities is returned by Connect when the Backend cannot say
// what it supports.
var ErrBackendCapabilities = errors.New("backend capabilities unavailable")

// Backend is the Host's connection to the MCP server that owns the App's
// tools and resources.
type Backend interface {
	// ServerCapabilities reports what the Backend advertised.
	ServerCapabilities() (*mcp.ServerCapabilities, error)

	// Call sends a request and returns the raw result. Return a
	// *protocol.RemoteError to relay a specific error code to the App.
	// Implementations must abandon the call when ctx ends.
	Call(ctx context.Context, method mcp.Method, params json.RawMessage) (json.RawMessage, error)

	// SetNotificationHandler routes Backend notifications for method to fn.
	// A nil fn removes the route.
	SetNotificationHandler(method mcp.Method, fn func(ctx context.Context, params json.RawMessage))
}

type proxyRoute struct {
	requests      []mcp.Method
	notifications []mcp.Method
}

// proxyRoutes lists what is relayed for each advertised Backend capability.
func proxyRoutes(caps *mcp.ServerCapabilities) proxyRoute {
	var r proxyRoute
	if caps.Tools != nil {
		r.requests = append(r.requests, mcp.ToolsCallMethod, mcp.ToolsListMethod)
		r.notifications = append(r.notifications, mcp.ToolsListChangedNotificationMethod)
	}
	if caps.Resources != nil {
		r.requests = append(r.requests, mcp.ResourcesReadMethod, mcp.ResourcesListMethod, mcp.ResourcesTemplatesListMethod)
		r.notifications = append(r.notifications, mcp.ResourcesListChangedNotificationMethod)
	}
	if caps.Prompts != nil {
		r.requests = append(r.requests, mcp.PromptsListMethod)
		r.notifications = append(r.notifications, mcp.PromptsListChangedNotificationMethod)
	}
	return r
}
