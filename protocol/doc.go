// Package protocol implements the JSON-RPC engine shared by both ends of an
// App connection.
//
// A Protocol owns request id allocation, the table of pending outbound
// requests, the handler registry for inbound requests and notifications,
// capability enforcement and the pre-handshake gate. It is role-agnostic:
// package app and package appbridge configure one Protocol each and layer
// the UI handshake on top.
//
// Every outbound request ends in exactly one outcome: a result, a remote
// error, a timeout, a cancellation or closure. Responses that arrive after a
// request has already ended are dropped. Inbound requests always receive
// exactly one response.
//
// Responses and cancellations are processed on the transport's delivery
// goroutine. Notification handlers run on a per-connection queue, one at a
// time and in arrival order. Each inbound request handler runs on its own
// goroutine. No handler, however long it blocks, delays delivery of a
// response to one of its own outbound calls. A panicking request handler
// answers with an internal error; a panicking notification handler is
// logged and skipped.
package protocol
