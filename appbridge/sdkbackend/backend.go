// Package sdkbackend adapts a go-sdk client session into an appbridge
// Backend, so a Host can proxy an App's server calls to a real MCP server.
//
// The go-sdk client reports list_changed notifications through its
// ClientOptions callbacks; forward them with Relay:
//
//	be := sdkbackend.New()
//	opts := &sdk.ClientOptions{
//		ToolListChangedHandler: func(ctx context.Context, ...) {
//			be.Relay(ctx, mcp.ToolsListChangedNotificationMethod, nil)
//		},
//	}
//	cs, err := sdk.NewClient(impl, opts).Connect(ctx, transport, nil)
//	be.Attach(cs)
//
// The go-sdk session exposes only typed calls, so results pass through the
// SDK's types and fields they do not model are not forwarded to the App.
// JSON-RPC errors returned by the server keep their code, message and data.
package sdkbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/protocol"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrNotAttached is returned before Attach has been called.
var ErrNotAttached = errors.New("sdkbackend: no client session attached")

// Session is the part of *sdk.ClientSession the Backend uses.
type Session interface {
	InitializeResult() *sdk.InitializeResult
	CallTool(ctx context.Context, params *sdk.CallToolParams) (*sdk.CallToolResult, error)
	ListTools(ctx context.Context, params *sdk.ListToolsParams) (*sdk.ListToolsResult, error)
	ReadResource(ctx context.Context, params *sdk.ReadResourceParams) (*sdk.ReadResourceResult, error)
	ListResources(ctx context.Context, params *sdk.ListResourcesParams) (*sdk.ListResourcesResult, error)
	ListResourceTemplates(ctx context.Context, params *sdk.ListResourceTemplatesParams) (*sdk.ListResourceTemplatesResult, error)
	ListPrompts(ctx context.Context, params *sdk.ListPromptsParams) (*sdk.ListPromptsResult, error)
}

var _ Session = (*sdk.ClientSession)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// Backend implements appbridge.Backend on top of a go-sdk session.
type Backend struct {
	log *slog.Logger

	mu     sync.RWMutex
	cs     Session
	routes map[mcp.Method]func(context.Context, json.RawMessage)
}

// New creates an unattached Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		log:    slog.Default(),
		routes: make(map[mcp.Method]func(context.Context, json.RawMessage)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach binds the Backend to an initialized session.
func (b *Backend) Attach(cs Session) {
	b.mu.Lock()
	b.cs = cs
	b.mu.Unlock()
}

func (b *Backend) session() (Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cs == nil {
		return nil, ErrNotAttached
	}
	return b.cs, nil
}

// ServerCapabilities converts the capabilities the server advertised at
// initialization.
func (b *Backend) ServerCapabilities() (*mcp.ServerCapabilities, error) {
	cs, err := b.session()
	if err != nil {
		return nil, err
	}
	res := cs.InitializeResult()
	if res == nil || res.Capabilities == nil {
		return nil, errors.New("sdkbackend: session is not initialized")
	}
	return convertCapabilities(res.Capabilities), nil
}

func convertCapabilities(in *sdk.ServerCapabilities) *mcp.ServerCapabilities {
	out := &mcp.ServerCapabilities{}
	if in.Tools != nil {
		out.Tools = &mcp.ListChangedCapability{ListChanged: in.Tools.ListChanged}
	}
	if in.Resources != nil {
		out.Resources = &mcp.ResourcesCapability{ListChanged: in.Resources.ListChanged, Subscribe: in.Resources.Subscribe}
	}
	if in.Prompts != nil {
		out.Prompts = &mcp.ListChangedCapability{ListChanged: in.Prompts.ListChanged}
	}
	if in.Logging != nil {
		out.Logging = &struct{}{}
	}
	return out
}

// Call decodes params into the SDK's request type, invokes the matching
// session method and re-encodes its result.
func (b *Backend) Call(ctx context.Context, method mcp.Method, params json.RawMessage) (json.RawMessage, error) {
	cs, err := b.session()
	if err != nil {
		return nil, err
	}

	var res any
	switch method {
	case mcp.ToolsCallMethod:
		res, err = invoke(ctx, params, cs.CallTool)
	case mcp.ToolsListMethod:
		res, err = invoke(ctx, params, cs.ListTools)
	case mcp.ResourcesReadMethod:
		res, err = invoke(ctx, params, cs.ReadResource)
	case mcp.ResourcesListMethod:
		res, err = invoke(ctx, params, cs.ListResources)
	case mcp.ResourcesTemplatesListMethod:
		res, err = invoke(ctx, params, cs.ListResourceTemplates)
	case mcp.PromptsListMethod:
		res, err = invoke(ctx, params, cs.ListPrompts)
	default:
		return nil, fmt.Errorf("%s: %w", method, protocol.ErrMethodNotFound)
	}
	if err != nil {
		b.log.DebugContext(ctx, "sdkbackend.call.fail", slog.String("method", string(method)), slog.String("err", err.Error()))
		if re := wireError(err); re != nil {
			return nil, re
		}
		return nil, err
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s result: %w", method, err)
	}
	return raw, nil
}

// wireError recovers the JSON-RPC error the server sent from an SDK error
// chain. The SDK's error type is internal but encodes as a wire error object.
func wireError(err error) *protocol.RemoteError {
	var re *protocol.RemoteError
	if errors.As(err, &re) {
		return re
	}
	for ; err != nil; err = errors.Unwrap(err) {
		b, mErr := json.Marshal(err)
		if mErr != nil {
			continue
		}
		var we struct {
			Code    *int64          `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		}
		if json.Unmarshal(b, &we) != nil || we.Code == nil || *we.Code == 0 {
			continue
		}
		return &protocol.RemoteError{Code: jsonrpc.ErrorCode(*we.Code), Message: we.Message, Data: we.Data}
	}
	return nil
}

func invoke[P, R any](ctx context.Context, raw json.RawMessage, fn func(context.Context, *P) (*R, error)) (*R, error) {
	params := new(P)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, params); err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrInvalidParams, err)
		}
	}
	return fn(ctx, params)
}

// SetNotificationHandler routes notifications passed to Relay. A nil fn
// removes the route.
func (b *Backend) SetNotificationHandler(method mcp.Method, fn func(ctx context.Context, params json.RawMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.routes, method)
		return
	}
	b.routes[method] = fn
}

// Relay hands a server notification to its route. It reports whether a
// route was installed.
func (b *Backend) Relay(ctx context.Context, method mcp.Method, params any) bool {
	b.mu.RLock()
	fn := b.routes[method]
	b.mu.RUnlock()
	if fn == nil {
		return false
	}

	var raw json.RawMessage
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			b.log.DebugContext(ctx, "sdkbackend.relay.encode_fail", slog.String("method", string(method)), slog.String("err", err.Error()))
			return false
		}
	}
	fn(ctx, raw)
	return true
}
