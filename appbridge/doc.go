// Package appbridge implements the Host side of a UI connection.
//
// A Bridge answers the App's initialize request, pushes tool input and
// results to the App, serves the App's UI requests through replaceable
// callbacks, and relays a fixed subset of MCP traffic between the App and a
// Backend. Which methods are relayed is decided once, at Connect, from the
// capabilities the Backend advertises; payloads are relayed as raw JSON.
package appbridge
