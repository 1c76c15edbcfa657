// Package mcpui contains the wire types shared by the two ends of the MCP Apps
// UI protocol: the App, a sandboxed interactive view, and the Host that
// embeds it. Methods live under the "ui/" prefix; standard MCP methods that
// the Host relays to its Backend are declared in package mcp.
//
// The package mirrors the JSON shape of each message with exported structs
// and json tags and performs no I/O. The app and appbridge packages build on
// these types.
//
// # Handshake
//
// The App opens a session with InitializeRequest. The Host answers with
// InitializeResult carrying the negotiated protocol version, its
// HostCapabilities, its identity and the initial HostContext. The App then
// sends the InitializedNotificationMethod notification. Only after that
// exchange may either side use capability-gated methods.
//
// # Host context
//
// HostContext is delivered whole during the handshake and as partial
// updates afterwards. Merge applies such an update; Changes computes one.
package mcpui
