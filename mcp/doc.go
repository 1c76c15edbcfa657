// Package mcp contains the subset of Model Context Protocol data types that
// an App may reach through its Host: tool calls and listings, resource reads
// and listings, prompt listings, structured log messages and the capability
// set a Backend advertises.
//
// The package is intentionally free of transport logic. The appbridge
// package relays these payloads between an App and a Backend without
// reshaping them; the app package decodes them into these types for
// callers.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod). Using the constants avoids typographical mistakes
// and keeps a single point of truth if the protocol evolves.
//
// # Metadata
//
// BaseMetadata and the Meta fields on Tool, Resource and ResourceContents
// carry implementation-defined metadata under the _meta key. The uiresource
// package uses them to link a tool to the UI resource that renders it.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
