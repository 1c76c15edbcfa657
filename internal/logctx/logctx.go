// Package logctx carries per-message logging attributes on a context and
// renders them through a slog.Handler.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler, adding the groups stored on the record's
// context.
type Handler struct {
	slog.Handler
}

// NewLogger returns a logger whose handler enriches records from context.
func NewLogger(h slog.Handler) *slog.Logger {
	if _, ok := h.(Handler); ok {
		return slog.New(h)
	}
	return slog.New(Handler{Handler: h})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("role", sd.Role),
			slog.String("protocol_version", sd.ProtocolVersion),
			slog.String("peer", sd.Peer),
		))
	}

	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	if bd, ok := ctx.Value(backendCallKey{}).(*BackendCall); ok {
		r.AddAttrs(slog.Group("backend",
			slog.String("method", bd.Method),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type rpcMsg struct{}

type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

type sessionDataKey struct{}

// SessionData describes the local end of a connection.
type SessionData struct {
	Role            string
	ProtocolVersion string
	Peer            string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type backendCallKey struct{}

// BackendCall marks a context as serving a call relayed to the Backend.
type BackendCall struct {
	Method string
}

func WithBackendCall(ctx context.Context, data *BackendCall) context.Context {
	return context.WithValue(ctx, backendCallKey{}, data)
}
