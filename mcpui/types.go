package mcpui

import "github.com/ggoodman/mcp-apps-go/mcp"

// ResourceMIMEType is the MIME type of an HTML resource that renders as an App.
const ResourceMIMEType = "text/html;profile=mcp-app"

// ResourceURIScheme prefixes every App resource URI.
const ResourceURIScheme = "ui://"

// Keys used in tool _meta to point at the App resource that renders the tool.
const (
	// MetaKeyUI holds the structured UI metadata object.
	MetaKeyUI = "ui"
	// MetaKeyResourceURI is the field inside the MetaKeyUI object.
	MetaKeyResourceURI = "resourceUri"
	// LegacyMetaKeyResourceURI is the flat key used by earlier hosts.
	LegacyMetaKeyResourceURI = "ui/resourceUri"
)

// DisplayMode describes how the Host presents an App.
type DisplayMode string

const (
	DisplayModeInline     DisplayMode = "inline"
	DisplayModeFullscreen DisplayMode = "fullscreen"
	DisplayModePIP        DisplayMode = "pip"
)

// Theme is the Host's color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Platform is the kind of device the Host runs on.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// AppCapabilities advertises what an App supports.
type AppCapabilities struct {
	Experimental map[string]any `json:"experimental,omitempty"`
	// Tools is set when the App itself exposes tools to the Host.
	Tools *mcp.ListChangedCapability `json:"tools,omitempty"`
	// AvailableDisplayModes lists the display modes the App can render in.
	AvailableDisplayModes []DisplayMode `json:"availableDisplayModes,omitempty"`
}

// SandboxCapability describes the sandbox the Host renders the App in.
type SandboxCapability struct {
	Permissions *ResourcePermissions `json:"permissions,omitempty"`
	CSP         *ResourceCSP         `json:"csp,omitempty"`
}

// HostCapabilities advertises what a Host supports. The Server* members are
// present only when the Host relays the matching Backend capability.
type HostCapabilities struct {
	Experimental       map[string]any             `json:"experimental,omitempty"`
	OpenLinks          *struct{}                  `json:"openLinks,omitempty"`
	ServerTools        *mcp.ListChangedCapability `json:"serverTools,omitempty"`
	ServerResources    *mcp.ListChangedCapability `json:"serverResources,omitempty"`
	ServerPrompts      *mcp.ListChangedCapability `json:"serverPrompts,omitempty"`
	Logging            *struct{}                  `json:"logging,omitempty"`
	UpdateModelContext *struct{}                  `json:"updateModelContext,omitempty"`
	Message            *struct{}                  `json:"message,omitempty"`
	Sandbox            *SandboxCapability         `json:"sandbox,omitempty"`
}

// InitializeRequest opens a UI session.
type InitializeRequest struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	AppInfo         mcp.ImplementationInfo `json:"appInfo"`
	AppCapabilities AppCapabilities        `json:"appCapabilities"`
}

// InitializeResult answers InitializeRequest.
type InitializeResult struct {
	ProtocolVersion  string                 `json:"protocolVersion"`
	HostInfo         mcp.ImplementationInfo `json:"hostInfo"`
	HostCapabilities HostCapabilities       `json:"hostCapabilities"`
	HostContext      HostContext            `json:"hostContext"`
	mcp.BaseMetadata
}

// InitializedNotification completes the handshake.
type InitializedNotification struct{}

// ToolInputParams carries the complete arguments of the tool call that
// produced the App.
type ToolInputParams struct {
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolInputPartialParams carries arguments while they are still streaming.
// The last value may be truncated; consumers must not assume it is complete.
type ToolInputPartialParams struct {
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResultParams is the result of the originating tool call.
type ToolResultParams = mcp.CallToolResult

// ToolCancelledParams tells the App the originating tool call was cancelled.
type ToolCancelledParams struct {
	Reason string `json:"reason,omitzero"`
}

// SizeChangedParams reports the App's rendered size in CSS pixels.
type SizeChangedParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MessageParams asks the Host to add a message to the conversation.
type MessageParams struct {
	Role    mcp.Role           `json:"role"`
	Content []mcp.ContentBlock `json:"content"`
}

// MessageResult answers MessageParams.
type MessageResult struct {
	IsError bool `json:"isError,omitzero"`
	mcp.BaseMetadata
}

// OpenLinkParams asks the Host to open a URL.
type OpenLinkParams struct {
	URL string `json:"url"`
}

// OpenLinkResult answers OpenLinkParams.
type OpenLinkResult struct {
	IsError bool `json:"isError,omitzero"`
	mcp.BaseMetadata
}

// UpdateModelContextParams replaces the App-provided model context.
type UpdateModelContextParams struct {
	Content           []mcp.ContentBlock `json:"content,omitempty"`
	StructuredContent map[string]any     `json:"structuredContent,omitempty"`
}

// RequestDisplayModeParams asks the Host to change the display mode.
type RequestDisplayModeParams struct {
	Mode DisplayMode `json:"mode"`
}

// RequestDisplayModeResult reports the mode the Host actually granted.
type RequestDisplayModeResult struct {
	Mode DisplayMode `json:"mode"`
	mcp.BaseMetadata
}

// ResourceTeardownParams tells the App it is about to be removed.
type ResourceTeardownParams struct{}

// ResourceTeardownResult acknowledges ResourceTeardownParams.
type ResourceTeardownResult struct {
	mcp.BaseMetadata
}

// ResourceCSP lists the origins an App resource may reach.
type ResourceCSP struct {
	ConnectDomains  []string `json:"connectDomains,omitempty"`
	ResourceDomains []string `json:"resourceDomains,omitempty"`
	FrameDomains    []string `json:"frameDomains,omitempty"`
	BaseURIDomains  []string `json:"baseUriDomains,omitempty"`
}

// ResourcePermissions lists the browser permissions an App resource requests.
type ResourcePermissions struct {
	Camera         *struct{} `json:"camera,omitempty"`
	Microphone     *struct{} `json:"microphone,omitempty"`
	Geolocation    *struct{} `json:"geolocation,omitempty"`
	ClipboardWrite *struct{} `json:"clipboardWrite,omitempty"`
}

// SandboxProxyReadyParams is sent by the sandbox proxy once it can accept a resource.
type SandboxProxyReadyParams struct{}

// SandboxResourceReadyParams hands the App's HTML to the sandbox proxy.
type SandboxResourceReadyParams struct {
	HTML        string               `json:"html"`
	Sandbox     string               `json:"sandbox,omitzero"`
	CSP         *ResourceCSP         `json:"csp,omitempty"`
	Permissions *ResourcePermissions `json:"permissions,omitempty"`
}
