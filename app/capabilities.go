package app

import (
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

// capabilities enforces what the App may send given the Host's
// capabilities, and what it may serve given its own.
type capabilities struct {
	a *App
}

func (c capabilities) AssertCapabilityForMethod(method string) error {
	hc := c.a.HostCapabilities()
	missing := func(name string) error {
		return &protocol.CapabilityError{Method: method, Capability: name}
	}

	switch method {
	case string(mcp.ToolsCallMethod), string(mcp.ToolsListMethod):
		if hc == nil || hc.ServerTools == nil {
			return missing("serverTools")
		}
	case string(mcp.ResourcesReadMethod), string(mcp.ResourcesListMethod), string(mcp.ResourcesTemplatesListMethod):
		if hc == nil || hc.ServerResources == nil {
			return missing("serverResources")
		}
	case string(mcp.PromptsListMethod):
		if hc == nil || hc.ServerPrompts == nil {
			return missing("serverPrompts")
		}
	case string(mcpui.OpenLinkMethod):
		if hc == nil || hc.OpenLinks == nil {
			return missing("openLinks")
		}
	case string(mcpui.MessageMethod):
		if hc == nil || hc.Message == nil {
			return missing("message")
		}
	case string(mcpui.UpdateModelContextMethod):
		if hc == nil || hc.UpdateModelContext == nil {
			return missing("updateModelContext")
		}
	}
	return nil
}

func (c capabilities) AssertNotificationCapability(method string) error {
	if method == string(mcp.LoggingMessageNotificationMethod) {
		if hc := c.a.HostCapabilities(); hc == nil || hc.Logging == nil {
			return &protocol.CapabilityError{Method: method, Capability: "logging"}
		}
	}
	return nil
}

func (c capabilities) AssertRequestHandlerCapability(method string) error {
	switch method {
	case string(mcp.ToolsCallMethod), string(mcp.ToolsListMethod):
		if c.a.caps.Tools == nil {
			return &protocol.CapabilityError{Method: method, Capability: "tools"}
		}
	}
	return nil
}
