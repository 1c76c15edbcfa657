package mcpui

// Method is a UI protocol method identifier.
type Method string

// UI protocol methods and notifications.
const (
	// Handshake
	InitializeMethod              Method = "ui/initialize"
	InitializedNotificationMethod Method = "ui/notifications/initialized"

	// Host -> App
	ToolInputNotificationMethod          Method = "ui/notifications/tool-input"
	ToolInputPartialNotificationMethod   Method = "ui/notifications/tool-input-partial"
	ToolResultNotificationMethod         Method = "ui/notifications/tool-result"
	ToolCancelledNotificationMethod      Method = "ui/notifications/tool-cancelled"
	HostContextChangedNotificationMethod Method = "ui/notifications/host-context-changed"
	ResourceTeardownMethod               Method = "ui/resource-teardown"

	// App -> Host
	MessageMethod                 Method = "ui/message"
	OpenLinkMethod                Method = "ui/open-link"
	UpdateModelContextMethod      Method = "ui/update-model-context"
	RequestDisplayModeMethod      Method = "ui/request-display-mode"
	SizeChangedNotificationMethod Method = "ui/notifications/size-change"

	// Sandbox proxy
	SandboxProxyReadyNotificationMethod    Method = "ui/notifications/sandbox-proxy-ready"
	SandboxResourceReadyNotificationMethod Method = "ui/notifications/sandbox-resource-ready"
)

// IsHandshakeMethod reports whether m may be exchanged before the handshake
// completes. The sandbox proxy notifications travel before any App exists.
func IsHandshakeMethod(m string) bool {
	switch Method(m) {
	case InitializeMethod,
		InitializedNotificationMethod,
		SandboxProxyReadyNotificationMethod,
		SandboxResourceReadyNotificationMethod:
		return true
	}
	return m == "ping"
}
