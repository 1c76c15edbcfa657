package mcpui

import "slices"

// LatestProtocolVersion is the newest UI protocol version this module speaks.
const LatestProtocolVersion = "2026-01-26"

// SupportedProtocolVersions lists the versions a Host accepts by default,
// newest first.
var SupportedProtocolVersions = []string{LatestProtocolVersion}

// NegotiateVersion picks the version a Host answers with. The requested
// version is echoed when supported; otherwise the first (latest) supported
// version is returned. supported must not be empty.
func NegotiateVersion(requested string, supported []string) string {
	if slices.Contains(supported, requested) {
		return requested
	}
	return supported[0]
}
