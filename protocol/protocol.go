package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-apps-go/internal/logctx"
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestHandler serves an inbound request. The returned value is marshaled
// as the result; a json.RawMessage is sent verbatim. ctx ends when the peer
// cancels the request or the connection closes.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler serves an inbound notification. Handlers run one at a
// time in arrival order and may block, including on a Request to the peer.
// Errors and panics are logged.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Session records what was negotiated during the handshake.
type Session struct {
	ProtocolVersion  string
	PeerInfo         any
	PeerCapabilities any
}

type outcome struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	method string
	id     *jsonrpc.RequestID
	done   chan outcome
}

// Protocol is one end of a JSON-RPC connection.
type Protocol struct {
	log            *slog.Logger
	role           string
	caps           Capabilities
	handshake      func(string) bool
	readyOn        string
	defaultTimeout time.Duration
	registerer     prometheus.Registerer
	metrics        *metrics

	nextID atomic.Int64
	ready  atomic.Bool

	mu                   sync.Mutex
	transport            transport.Transport
	peer                 string
	closed               bool
	ctx                  context.Context
	cancel               context.CancelFunc
	pending              map[string]*pendingRequest
	inflight             map[string]context.CancelFunc
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	session              *Session
	onClose              []func()

	// Notification handlers run one at a time, in arrival order, on a
	// goroutine separate from the one delivering responses.
	notifyQueue []func()
	notifyWake  chan struct{}
}

// New creates an unconnected Protocol with the built-in ping handler.
func New(opts ...Option) *Protocol {
	p := &Protocol{
		log:                  slog.Default(),
		role:                 "endpoint",
		caps:                 AllowAll{},
		pending:              make(map[string]*pendingRequest),
		inflight:             make(map[string]context.CancelFunc),
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		notifyWake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newMetrics(p.registerer)
	p.requestHandlers[string(mcp.PingMethod)] = func(context.Context, json.RawMessage) (any, error) {
		return mcp.EmptyResult{}, nil
	}
	return p
}

// Connect binds the Protocol to t and starts it. A Protocol connects at most
// once.
func (p *Protocol) Connect(ctx context.Context, t transport.Transport) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.transport != nil {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.transport = t
	if pe, ok := t.(interface{ Peer() string }); ok {
		p.peer = pe.Peer()
	}
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := p.ctx
	p.mu.Unlock()

	go p.runNotifications(runCtx)

	err := t.Start(ctx, transport.Callbacks{
		OnMessage: p.dispatch,
		OnError:   p.onTransportError,
		OnClose:   p.onTransportClose,
	})
	if err != nil {
		p.mu.Lock()
		p.transport = nil
		p.cancel()
		p.mu.Unlock()
		return fmt.Errorf("failed to start transport: %w", err)
	}
	p.log.DebugContext(p.logContext(ctx), "protocol.connect")
	return nil
}

// Close rejects every pending request with ErrClosed, cancels in-flight
// handlers and closes the transport. It is idempotent.
func (p *Protocol) Close() error {
	t := p.shutdown()
	if t != nil {
		return t.Close()
	}
	return nil
}

func (p *Protocol) onTransportClose() {
	p.shutdown()
}

// shutdown performs the local half of Close once and returns the transport
// that still needs closing, if any.
func (p *Protocol) shutdown() transport.Transport {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	t := p.transport
	pending := p.pending
	p.pending = make(map[string]*pendingRequest)
	inflight := p.inflight
	p.inflight = make(map[string]context.CancelFunc)
	p.session = nil
	p.notifyQueue = nil
	onClose := p.onClose
	p.onClose = nil
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.ready.Store(false)
	for _, pr := range pending {
		pr.done <- outcome{err: ErrClosed}
	}
	for _, cancel := range inflight {
		cancel()
	}
	p.log.Debug("protocol.close", slog.String("role", p.role), slog.Int("pending", len(pending)))
	for _, fn := range onClose {
		fn()
	}
	return t
}

// OnClose registers fn to run once when the connection closes, whether
// closed locally or by the transport.
func (p *Protocol) OnClose(fn func()) {
	p.mu.Lock()
	if !p.closed {
		p.onClose = append(p.onClose, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

// Closed reports whether Close has run.
func (p *Protocol) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetReady opens the gate for non-handshake traffic.
func (p *Protocol) SetReady() { p.ready.Store(true) }

// Ready reports whether the handshake has completed.
func (p *Protocol) Ready() bool { return p.ready.Load() }

// SetSession records the negotiated session. It may be set once.
func (p *Protocol) SetSession(s Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.session != nil {
		return errors.New("session already established")
	}
	p.session = &s
	return nil
}

// Session returns the negotiated session, if any.
func (p *Protocol) Session() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return Session{}, false
	}
	return *p.session, true
}

// SetRequestHandler installs h for method, replacing any previous handler.
func (p *Protocol) SetRequestHandler(method string, h RequestHandler) {
	if method == "" {
		panic("protocol: empty method")
	}
	if h == nil {
		panic("protocol: nil request handler for " + method)
	}
	p.mu.Lock()
	p.requestHandlers[method] = h
	p.mu.Unlock()
}

// RemoveRequestHandler uninstalls the handler for method.
func (p *Protocol) RemoveRequestHandler(method string) {
	p.mu.Lock()
	delete(p.requestHandlers, method)
	p.mu.Unlock()
}

// SetNotificationHandler installs h for method, replacing any previous handler.
func (p *Protocol) SetNotificationHandler(method string, h NotificationHandler) {
	if method == "" {
		panic("protocol: empty method")
	}
	if h == nil {
		panic("protocol: nil notification handler for " + method)
	}
	p.mu.Lock()
	p.notificationHandlers[method] = h
	p.mu.Unlock()
}

// RemoveNotificationHandler uninstalls the handler for method.
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.mu.Lock()
	delete(p.notificationHandlers, method)
	p.mu.Unlock()
}

func (p *Protocol) isHandshake(method string) bool {
	if method == string(mcp.PingMethod) {
		return true
	}
	return p.handshake != nil && p.handshake(method)
}

// checkSend validates lifecycle state before an outbound message.
func (p *Protocol) checkSend(method string) (transport.Transport, error) {
	p.mu.Lock()
	t, closed := p.transport, p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if t == nil {
		return nil, ErrNotConnected
	}
	if !p.ready.Load() && !p.isHandshake(method) {
		return nil, fmt.Errorf("%s: %w", method, ErrNotReady)
	}
	return t, nil
}

// Request sends method with params and waits for the outcome. The request
// ends early with ErrCancelled when ctx ends, or ErrTimeout when the
// configured timeout elapses; either way the peer is sent a best-effort
// notifications/cancelled.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts ...RequestOption) (json.RawMessage, error) {
	ro := requestOptions{timeout: p.defaultTimeout}
	for _, opt := range opts {
		opt(&ro)
	}

	t, err := p.checkSend(method)
	if err != nil {
		return nil, err
	}
	if err := p.caps.AssertCapabilityForMethod(method); err != nil {
		return nil, err
	}

	id := jsonrpc.NewRequestID(p.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	key := id.Key()
	pr := &pendingRequest{method: method, id: id, done: make(chan outcome, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.pending[key] = pr
	p.mu.Unlock()

	start := time.Now()
	log := p.log.With(slog.String("method", method), slog.String("id", key))
	ctx = p.logContext(ctx)

	if err := t.Send(ctx, req.Message()); err != nil {
		p.take(key)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	var timeoutC <-chan time.Time
	if ro.timeout > 0 {
		timer := time.NewTimer(ro.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var out outcome
	select {
	case out = <-pr.done:
	case <-timeoutC:
		out = p.abandon(pr, "timeout", fmt.Errorf("%s after %s: %w", method, ro.timeout, ErrTimeout))
	case <-ctx.Done():
		out = p.abandon(pr, "cancelled", fmt.Errorf("%s: %w: %w", method, ErrCancelled, ctx.Err()))
	}

	dur := time.Since(start)
	p.metrics.outbound.WithLabelValues(p.role, method, outcomeOf(out.err)).Inc()
	p.metrics.duration.WithLabelValues(p.role, method).Observe(dur.Seconds())
	if out.err != nil {
		log.DebugContext(ctx, "protocol.request.fail", slog.String("err", out.err.Error()), slog.Int64("dur_ms", dur.Milliseconds()))
	} else {
		log.DebugContext(ctx, "protocol.request.ok", slog.Int64("dur_ms", dur.Milliseconds()))
	}
	return out.result, out.err
}

// abandon settles pr locally unless a response won the race, and tells the
// peer to stop working on it.
func (p *Protocol) abandon(pr *pendingRequest, reason string, err error) outcome {
	if !p.take(pr.id.Key()) {
		return <-pr.done
	}
	p.sendCancelled(pr.id, reason)
	return outcome{err: err}
}

// take removes a pending request. Only the caller that removes it may
// settle it.
func (p *Protocol) take(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[key]; !ok {
		return false
	}
	delete(p.pending, key)
	return true
}

func (p *Protocol) sendCancelled(id *jsonrpc.RequestID, reason string) {
	p.mu.Lock()
	t, closed := p.transport, p.closed
	p.mu.Unlock()
	if t == nil || closed {
		return
	}
	rawID, _ := json.Marshal(id)
	n, err := jsonrpc.NewNotification(string(mcp.CancelledNotificationMethod), mcp.CancelledNotification{RequestID: rawID, Reason: reason})
	if err != nil {
		return
	}
	if err := t.Send(context.Background(), n.Message()); err != nil {
		p.log.Debug("protocol.cancel.send_fail", slog.String("id", id.Key()), slog.String("err", err.Error()))
	}
}

// Notify sends a notification. It does not wait for delivery.
func (p *Protocol) Notify(ctx context.Context, method string, params any) error {
	t, err := p.checkSend(method)
	if err != nil {
		return err
	}
	if err := p.caps.AssertNotificationCapability(method); err != nil {
		return err
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	if err := t.Send(ctx, n.Message()); err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	return nil
}

func (p *Protocol) onTransportError(err error) {
	reason := "error"
	switch {
	case errors.Is(err, transport.ErrParse):
		reason = "parse"
	case errors.Is(err, transport.ErrRateLimited):
		reason = "rate_limited"
	}
	p.metrics.dropped.WithLabelValues(p.role, reason).Inc()
	p.log.Warn("protocol.transport.error", slog.String("role", p.role), slog.String("err", err.Error()))
}

// dispatch routes one inbound message. It runs on the transport's delivery
// goroutine.
func (p *Protocol) dispatch(msg *jsonrpc.AnyMessage) {
	switch msg.Type() {
	case jsonrpc.KindResponse:
		p.handleResponse(msg.AsResponse())
	case jsonrpc.KindRequest:
		p.handleRequest(msg.AsRequest())
	case jsonrpc.KindNotification:
		p.handleNotification(msg.AsRequest())
	}
}

func (p *Protocol) handleResponse(resp *jsonrpc.Response) {
	if resp.ID.IsNil() {
		// An error response without an id answers a request we could not
		// parse; nothing is waiting for it.
		if resp.Error != nil {
			p.log.Warn("protocol.response.unsolicited_error", slog.Int("code", int(resp.Error.Code)), slog.String("message", resp.Error.Message))
		}
		return
	}
	key := resp.ID.Key()

	p.mu.Lock()
	pr, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		p.metrics.late.WithLabelValues(p.role).Inc()
		p.log.Debug("protocol.response.late", slog.String("id", key))
		return
	}
	if resp.Error != nil {
		pr.done <- outcome{err: fmt.Errorf("%s: %w", pr.method, remoteErrorFrom(resp.Error))}
		return
	}
	pr.done <- outcome{result: resp.Result}
}

func (p *Protocol) handleRequest(req *jsonrpc.Request) {
	key := req.ID.Key()
	ctx := logctx.WithRPCMessage(p.logContext(p.ctx), &logctx.RPCMessage{Method: req.Method, ID: key, Type: string(jsonrpc.KindRequest)})

	if !p.ready.Load() && !p.isHandshake(req.Method) {
		p.metrics.dropped.WithLabelValues(p.role, "not_ready").Inc()
		p.log.InfoContext(ctx, "protocol.handle_request.not_ready")
		p.respond(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeNotInitialized, "handshake not complete", nil))
		return
	}

	p.mu.Lock()
	h, ok := p.requestHandlers[req.Method]
	p.mu.Unlock()
	if !ok {
		p.metrics.inbound.WithLabelValues(p.role, req.Method, "not_found").Inc()
		p.log.InfoContext(ctx, "protocol.handle_request.unsupported")
		p.respond(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", map[string]string{"method": req.Method}))
		return
	}

	if err := p.caps.AssertRequestHandlerCapability(req.Method); err != nil {
		p.metrics.inbound.WithLabelValues(p.role, req.Method, "capability").Inc()
		p.log.InfoContext(ctx, "protocol.handle_request.capability", slog.String("err", err.Error()))
		p.respond(ctx, errorResponse(req.ID, err))
		return
	}

	hctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return
	}
	p.inflight[key] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, key)
			p.mu.Unlock()
			cancel()
		}()

		start := time.Now()
		result, err := p.callRequestHandler(hctx, h, req.Params)

		var resp *jsonrpc.Response
		if err == nil {
			resp, err = jsonrpc.NewResultResponse(req.ID, result)
		}
		if err != nil {
			if hctx.Err() != nil && !errors.Is(err, ErrCancelled) {
				err = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			p.metrics.inbound.WithLabelValues(p.role, req.Method, outcomeOf(err)).Inc()
			p.log.InfoContext(ctx, "protocol.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			p.respond(ctx, errorResponse(req.ID, err))
			return
		}
		p.metrics.inbound.WithLabelValues(p.role, req.Method, "ok").Inc()
		p.log.InfoContext(ctx, "protocol.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		p.respond(ctx, resp)
	}()
}

func (p *Protocol) respond(ctx context.Context, resp *jsonrpc.Response) {
	p.mu.Lock()
	t, closed := p.transport, p.closed
	p.mu.Unlock()
	if closed || t == nil {
		return
	}
	if err := t.Send(ctx, resp.Message()); err != nil {
		p.log.ErrorContext(ctx, "protocol.respond.fail", slog.String("err", err.Error()))
	}
}

func (p *Protocol) handleNotification(n *jsonrpc.Request) {
	ctx := logctx.WithRPCMessage(p.logContext(p.ctx), &logctx.RPCMessage{Method: n.Method, Type: string(jsonrpc.KindNotification)})

	if n.Method == string(mcp.CancelledNotificationMethod) {
		p.handleCancelled(ctx, n.Params)
		return
	}

	if p.readyOn != "" && n.Method == p.readyOn && !p.ready.Load() {
		if _, ok := p.Session(); ok {
			p.ready.Store(true)
		}
	}

	if !p.ready.Load() && !p.isHandshake(n.Method) {
		p.metrics.dropped.WithLabelValues(p.role, "not_ready").Inc()
		p.log.DebugContext(ctx, "protocol.handle_notification.not_ready")
		return
	}

	p.mu.Lock()
	h, ok := p.notificationHandlers[n.Method]
	p.mu.Unlock()
	if !ok {
		p.log.DebugContext(ctx, "protocol.handle_notification.unhandled")
		return
	}
	p.enqueueNotification(func() {
		if err := p.callNotificationHandler(ctx, h, n.Params); err != nil {
			p.log.WarnContext(ctx, "protocol.handle_notification.fail", slog.String("err", err.Error()))
		}
	})
}

func (p *Protocol) enqueueNotification(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.notifyQueue = append(p.notifyQueue, fn)
	p.mu.Unlock()

	select {
	case p.notifyWake <- struct{}{}:
	default:
	}
}

// runNotifications drains the notification queue until ctx ends.
func (p *Protocol) runNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notifyWake:
		}
		for {
			p.mu.Lock()
			if p.closed || len(p.notifyQueue) == 0 {
				p.mu.Unlock()
				break
			}
			fn := p.notifyQueue[0]
			p.notifyQueue[0] = nil
			p.notifyQueue = p.notifyQueue[1:]
			p.mu.Unlock()

			fn()
		}
	}
}

func (p *Protocol) callRequestHandler(ctx context.Context, h RequestHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.panics.WithLabelValues(p.role).Inc()
			p.log.ErrorContext(ctx, "protocol.handle_request.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			result, err = nil, &RemoteError{Code: jsonrpc.ErrorCodeInternalError, Message: "internal error"}
		}
	}()
	return h(ctx, params)
}

func (p *Protocol) callNotificationHandler(ctx context.Context, h NotificationHandler, params json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.panics.WithLabelValues(p.role).Inc()
			p.log.ErrorContext(ctx, "protocol.handle_notification.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = nil
		}
	}()
	return h(ctx, params)
}

func (p *Protocol) handleCancelled(ctx context.Context, params json.RawMessage) {
	var cn mcp.CancelledNotification
	if err := json.Unmarshal(params, &cn); err != nil {
		p.log.DebugContext(ctx, "protocol.cancelled.invalid", slog.String("err", err.Error()))
		return
	}
	var id jsonrpc.RequestID
	if err := json.Unmarshal(cn.RequestID, &id); err != nil {
		p.log.DebugContext(ctx, "protocol.cancelled.invalid", slog.String("err", err.Error()))
		return
	}

	p.mu.Lock()
	cancel, ok := p.inflight[id.Key()]
	p.mu.Unlock()
	if ok {
		p.log.InfoContext(ctx, "protocol.cancelled", slog.String("id", id.Key()), slog.String("reason", cn.Reason))
		cancel()
	}
}

func (p *Protocol) logContext(ctx context.Context) context.Context {
	sd := &logctx.SessionData{Role: p.role, Peer: p.peer}
	p.mu.Lock()
	if p.session != nil {
		sd.ProtocolVersion = p.session.ProtocolVersion
	}
	p.mu.Unlock()
	return logctx.WithSessionData(ctx, sd)
}
