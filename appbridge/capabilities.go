package appbridge

import (
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/ggoodman/mcp-apps-go/protocol"
)

type capabilities struct {
	b *Bridge
}

// AssertCapabilityForMethod gates Host requests on what the App advertised.
func (c capabilities) AssertCapabilityForMethod(method string) error {
	switch method {
	case string(mcp.ToolsCallMethod), string(mcp.ToolsListMethod):
		if ac := c.b.AppCapabilities(); ac == nil || ac.Tools == nil {
			return &protocol.CapabilityError{Method: method, Capability: "tools"}
		}
	}
	return nil
}

func (c capabilities) AssertNotificationCapability(string) error { return nil }

// AssertRequestHandlerCapability gates App requests on what the Host
// advertised in its initialize result. Callbacks installed or cleared later
// do not change the gate.
func (c capabilities) AssertRequestHandlerCapability(method string) error {
	hc := c.b.advertisedCapabilities()
	missing := func(name string) error {
		return &protocol.CapabilityError{Method: method, Capability: name}
	}

	switch method {
	case string(mcp.ToolsCallMethod), string(mcp.ToolsListMethod):
		if hc.ServerTools == nil {
			return missing("serverTools")
		}
	case string(mcp.ResourcesReadMethod), string(mcp.ResourcesListMethod), string(mcp.ResourcesTemplatesListMethod):
		if hc.ServerResources == nil {
			return missing("serverResources")
		}
	case string(mcp.PromptsListMethod):
		if hc.ServerPrompts == nil {
			return missing("serverPrompts")
		}
	case string(mcpui.OpenLinkMethod):
		if hc.OpenLinks == nil {
			return missing("openLinks")
		}
	case string(mcpui.MessageMethod):
		if hc.Message == nil {
			return missing("message")
		}
	case string(mcpui.UpdateModelContextMethod):
		if hc.UpdateModelContext == nil {
			return missing("updateModelContext")
		}
	}
	return nil
}
