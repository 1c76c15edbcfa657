package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-apps-go/channel/memory"
	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-apps-go/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// rawPeer is the far end of a connection driven by hand.
type rawPeer struct {
	t  *testing.T
	tr *transport.PostMessage

	mu   sync.Mutex
	msgs []*jsonrpc.AnyMessage
}

func (r *rawPeer) send(msg *jsonrpc.AnyMessage) {
	r.t.Helper()
	if err := r.tr.Send(context.Background(), msg); err != nil {
		r.t.Fatalf("raw send: %v", err)
	}
}

func (r *rawPeer) received() []*jsonrpc.AnyMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*jsonrpc.AnyMessage(nil), r.msgs...)
}

func (r *rawPeer) waitFor(pred func(*jsonrpc.AnyMessage) bool) *jsonrpc.AnyMessage {
	r.t.Helper()
	var found *jsonrpc.AnyMessage
	waitFor(r.t, func() bool {
		for _, m := range r.received() {
			if pred(m) {
				found = m
				return true
			}
		}
		return false
	})
	return found
}

func newRawPair(t *testing.T, opts ...Option) (*Protocol, *rawPeer) {
	t.Helper()
	ch := memory.New()
	t.Cleanup(func() { _ = ch.Close() })

	peer := &rawPeer{t: t, tr: transport.NewPostMessage(ch, "raw", "proto")}
	if err := peer.tr.Start(t.Context(), transport.Callbacks{OnMessage: func(m *jsonrpc.AnyMessage) {
		peer.mu.Lock()
		peer.msgs = append(peer.msgs, m)
		peer.mu.Unlock()
	}}); err != nil {
		t.Fatalf("start raw: %v", err)
	}

	p := New(opts...)
	if err := p.Connect(t.Context(), transport.NewPostMessage(ch, "proto", "raw")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	p.SetReady()
	t.Cleanup(func() { _ = p.Close() })
	return p, peer
}

func newPair(t *testing.T) (a, b *Protocol) {
	t.Helper()
	ch := memory.New()
	t.Cleanup(func() { _ = ch.Close() })

	a, b = New(WithRole("app")), New(WithRole("host"))
	if err := a.Connect(t.Context(), transport.NewPostMessage(ch, "a", "b")); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	if err := b.Connect(t.Context(), transport.NewPostMessage(ch, "b", "a")); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	a.SetReady()
	b.SetReady()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return a, b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func isMethod(method string) func(*jsonrpc.AnyMessage) bool {
	return func(m *jsonrpc.AnyMessage) bool { return m.Method == method }
}

type weatherArgs struct {
	Location string `json:"location"`
}

type weatherResult struct {
	Forecast string `json:"forecast"`
}

func TestRequest_TypedRoundTrip(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)
	HandleRequest(b, "weather/get", func(ctx context.Context, p *weatherArgs) (*weatherResult, error) {
		return &weatherResult{Forecast: "sunny in " + p.Location}, nil
	})

	res, err := Call[weatherResult](t.Context(), a, "weather/get", weatherArgs{Location: "Tokyo"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Forecast != "sunny in Tokyo" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPing_BuiltIn(t *testing.T) {
	t.Parallel()

	a, _ := newPair(t)
	raw, err := a.Request(t.Context(), "ping", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("expected {}, got %s", raw)
	}
}

func TestRequest_MethodNotFound(t *testing.T) {
	t.Parallel()

	a, _ := newPair(t)
	_, err := a.Request(t.Context(), "resources/list", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("want ErrMethodNotFound, got %v", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("want RemoteError -32601, got %v", err)
	}
}

func TestRequest_HandlerErrorBecomesRemoteError(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)
	b.SetRequestHandler("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	HandleRequest(b, "typed", func(ctx context.Context, p *weatherArgs) (*weatherResult, error) {
		return &weatherResult{}, nil
	})

	_, err := a.Request(t.Context(), "fail", nil)
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != jsonrpc.ErrorCodeInternalError || !strings.Contains(re.Message, "boom") {
		t.Fatalf("want internal RemoteError, got %v", err)
	}

	_, err = a.Request(t.Context(), "typed", json.RawMessage(`{"location":42}`))
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("want ErrInvalidParams, got %v", err)
	}
}

func TestRequest_TimeoutSettlesOnceAndIgnoresLateResponse(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p, peer := newRawPair(t, WithRegisterer(reg), WithRole("app"))

	start := time.Now()
	_, err := p.Request(t.Context(), "tools/call", map[string]any{"name": "get-weather", "arguments": map[string]any{"location": "Tokyo"}}, WithTimeout(50*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("timed out early")
	}

	req := peer.waitFor(isMethod("tools/call"))
	cancelled := peer.waitFor(isMethod("notifications/cancelled"))
	var cn struct {
		RequestID json.RawMessage `json:"requestId"`
		Reason    string          `json:"reason"`
	}
	if err := json.Unmarshal(cancelled.Params, &cn); err != nil {
		t.Fatalf("decode cancelled: %v", err)
	}
	if string(cn.RequestID) != req.ID.String() {
		t.Fatalf("cancelled id %s does not match request id %s", cn.RequestID, req.ID)
	}

	late, _ := jsonrpc.NewResultResponse(req.ID, map[string]any{"content": []any{}})
	peer.send(late.Message())

	waitFor(t, func() bool { return counterValue(t, reg, "mcpui_protocol_late_responses_total") == 1 })

	// The connection is still usable after the late response.
	if _, err := p.Request(t.Context(), "ping", nil, WithTimeout(10*time.Millisecond)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected raw peer to leave ping unanswered, got %v", err)
	}
}

func TestRequest_ContextCancelPropagatesToPeerHandler(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)
	started := make(chan struct{})
	observed := make(chan error, 1)
	b.SetRequestHandler("slow", func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() {
		_, err := a.Request(ctx, "slow", nil)
		errc <- err
	}()

	<-started
	cancel()

	if err := <-errc; !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("want ErrCancelled, got %v", err)
	}
	select {
	case err := <-observed:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("handler saw %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("peer handler was not cancelled")
	}
}

type denyAll struct{}

func (denyAll) AssertCapabilityForMethod(m string) error {
	return &CapabilityError{Method: m, Capability: "peer"}
}
func (denyAll) AssertNotificationCapability(m string) error {
	return &CapabilityError{Method: m, Capability: "local"}
}
func (denyAll) AssertRequestHandlerCapability(m string) error {
	return &CapabilityError{Method: m, Capability: "serverResources"}
}

func TestCapabilities_OutboundFailsBeforeSend(t *testing.T) {
	t.Parallel()

	p, peer := newRawPair(t, WithCapabilities(denyAll{}))

	_, err := p.Request(t.Context(), "ui/open-link", map[string]string{"url": "https://example.com"})
	var ce *CapabilityError
	if !errors.As(err, &ce) || !errors.Is(err, ErrCapability) || ce.Method != "ui/open-link" {
		t.Fatalf("want CapabilityError, got %v", err)
	}
	if err := p.Notify(t.Context(), "ui/notifications/size-change", nil); !errors.Is(err, ErrCapability) {
		t.Fatalf("want CapabilityError for notify, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(peer.received()); n != 0 {
		t.Fatalf("expected nothing on the wire, got %d messages", n)
	}
}

func TestCapabilities_InboundRejected(t *testing.T) {
	t.Parallel()

	p, peer := newRawPair(t, WithCapabilities(denyAll{}))
	p.SetRequestHandler("resources/list", func(context.Context, json.RawMessage) (any, error) {
		t.Errorf("handler must not run")
		return nil, nil
	})

	req, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(int64(5)), "resources/list", nil)
	peer.send(req.Message())

	resp := peer.waitFor(func(m *jsonrpc.AnyMessage) bool { return m.Type() == jsonrpc.KindResponse })
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("want -32601, got %+v", resp)
	}
	if !strings.Contains(string(resp.Error.Data), "serverResources") {
		t.Fatalf("error data should name the capability: %s", resp.Error.Data)
	}
}

func TestReadyGate(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	peer := &rawPeer{t: t, tr: transport.NewPostMessage(ch, "raw", "proto")}
	_ = peer.tr.Start(t.Context(), transport.Callbacks{OnMessage: func(m *jsonrpc.AnyMessage) {
		peer.mu.Lock()
		peer.msgs = append(peer.msgs, m)
		peer.mu.Unlock()
	}})

	p := New(WithHandshakeMethods(func(m string) bool { return m == "ui/initialize" }))
	defer p.Close()
	if _, err := p.Request(t.Context(), "ping", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
	if err := p.Connect(t.Context(), transport.NewPostMessage(ch, "proto", "raw")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := p.Connect(t.Context(), transport.NewPostMessage(ch, "proto", "raw")); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("want ErrAlreadyConnected, got %v", err)
	}

	if _, err := p.Request(t.Context(), "tools/call", nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}

	var handled bool
	p.SetRequestHandler("tools/list", func(context.Context, json.RawMessage) (any, error) {
		handled = true
		return nil, nil
	})
	req, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(int64(1)), "tools/list", nil)
	peer.send(req.Message())
	resp := peer.waitFor(func(m *jsonrpc.AnyMessage) bool { return m.Type() == jsonrpc.KindResponse })
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeNotInitialized || handled {
		t.Fatalf("expected not-initialized error, got %+v", resp)
	}

	ping, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(int64(2)), "ping", nil)
	peer.send(ping.Message())
	pong := peer.waitFor(func(m *jsonrpc.AnyMessage) bool { return m.Type() == jsonrpc.KindResponse && m.ID.String() == "2" })
	if pong.Error != nil {
		t.Fatalf("ping should be answered before ready: %+v", pong.Error)
	}
}

func TestClose_RejectsPendingAndIsIdempotent(t *testing.T) {
	t.Parallel()

	p, peer := newRawPair(t)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Request(context.Background(), "tools/call", nil)
		errc <- err
	}()
	peer.waitFor(isMethod("tools/call"))

	closed := 0
	p.OnClose(func() { closed++ })
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = p.Close()

	if err := <-errc; !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if closed != 1 {
		t.Fatalf("OnClose ran %d times", closed)
	}
	if _, err := p.Request(t.Context(), "ping", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed after close, got %v", err)
	}
	if _, ok := p.Session(); ok {
		t.Fatalf("session should be cleared on close")
	}
}

func TestNotifications_InOrderAndErrorsSwallowed(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)

	var mu sync.Mutex
	var got []int
	HandleNotification(b, "count", func(ctx context.Context, p *struct{ N int }) error {
		mu.Lock()
		got = append(got, p.N)
		mu.Unlock()
		if p.N == 3 {
			return errors.New("ignored")
		}
		return nil
	})

	for i := range 10 {
		if err := a.Notify(t.Context(), "count", map[string]int{"N": i}); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	_ = a.Notify(t.Context(), "unknown/notification", nil)

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 10 })
	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		if n != i {
			t.Fatalf("notification %d out of order: %v", i, got)
		}
	}
}

func TestNotifications_HandlerMayAwaitRequest(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)

	errc := make(chan error, 1)
	b.SetNotificationHandler("tool-input", func(ctx context.Context, _ json.RawMessage) error {
		_, err := b.Request(ctx, "ping", nil, WithTimeout(time.Second))
		errc <- err
		return err
	})

	if err := a.Notify(t.Context(), "tool-input", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("request from notification handler: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification handler never completed its request")
	}
}

func TestNotifications_PanicIsContained(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)

	var mu sync.Mutex
	var got []string
	b.SetNotificationHandler("note", func(ctx context.Context, params json.RawMessage) error {
		if string(params) == `"bad"` {
			panic("handler bug")
		}
		mu.Lock()
		got = append(got, string(params))
		mu.Unlock()
		return nil
	})

	_ = a.Notify(t.Context(), "note", "bad")
	_ = a.Notify(t.Context(), "note", "good")

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 })
	if _, err := a.Request(t.Context(), "ping", nil); err != nil {
		t.Fatalf("connection should survive a panicking handler: %v", err)
	}
}

func TestRequest_PanicBecomesInternalError(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)
	b.SetRequestHandler("explode", func(context.Context, json.RawMessage) (any, error) {
		panic("handler bug")
	})

	_, err := a.Request(t.Context(), "explode", nil)
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != jsonrpc.ErrorCodeInternalError {
		t.Fatalf("want internal RemoteError, got %v", err)
	}
	if strings.Contains(re.Message, "handler bug") {
		t.Fatalf("panic value leaked to the peer: %q", re.Message)
	}
	if _, err := a.Request(t.Context(), "ping", nil); err != nil {
		t.Fatalf("connection should survive a panicking handler: %v", err)
	}
}

func TestReadyOn_OpensGateBeforeHandlerRuns(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	peer := &rawPeer{t: t, tr: transport.NewPostMessage(ch, "raw", "proto")}
	_ = peer.tr.Start(t.Context(), transport.Callbacks{OnMessage: func(m *jsonrpc.AnyMessage) {
		peer.mu.Lock()
		peer.msgs = append(peer.msgs, m)
		peer.mu.Unlock()
	}})

	p := New(
		WithHandshakeMethods(func(m string) bool { return m == "ui/notifications/initialized" }),
		WithReadyOn("ui/notifications/initialized"),
	)
	defer p.Close()
	if err := p.Connect(t.Context(), transport.NewPostMessage(ch, "proto", "raw")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := p.SetSession(Session{ProtocolVersion: "2026-01-26"}); err != nil {
		t.Fatalf("set session: %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	p.SetNotificationHandler("ui/notifications/initialized", func(ctx context.Context, _ json.RawMessage) error {
		<-release
		return nil
	})
	p.SetRequestHandler("tools/list", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"tools": []any{}}, nil
	})

	n, _ := jsonrpc.NewNotification("ui/notifications/initialized", nil)
	peer.send(n.Message())
	req, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(int64(1)), "tools/list", nil)
	peer.send(req.Message())

	resp := peer.waitFor(func(m *jsonrpc.AnyMessage) bool { return m.Type() == jsonrpc.KindResponse })
	if resp.Error != nil {
		t.Fatalf("request after the ready notification was refused: %+v", resp.Error)
	}
	if !p.Ready() {
		t.Fatalf("protocol should be ready")
	}
}

func TestSetRequestHandler_Replaces(t *testing.T) {
	t.Parallel()

	a, b := newPair(t)
	b.SetRequestHandler("v", func(context.Context, json.RawMessage) (any, error) { return 1, nil })
	b.SetRequestHandler("v", func(context.Context, json.RawMessage) (any, error) { return 2, nil })

	raw, err := a.Request(t.Context(), "v", nil)
	if err != nil || string(raw) != "2" {
		t.Fatalf("want 2, got %s (%v)", raw, err)
	}

	b.RemoveRequestHandler("v")
	if _, err := a.Request(t.Context(), "v", nil); !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("want ErrMethodNotFound after remove, got %v", err)
	}
}

func TestSetRequestHandler_PanicsOnNil(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New().SetRequestHandler("x", nil)
}

func TestSession_SetOnce(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.SetSession(Session{ProtocolVersion: "2026-01-26"}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if err := p.SetSession(Session{ProtocolVersion: "2025-06-18"}); err == nil {
		t.Fatalf("expected second SetSession to fail")
	}
	s, ok := p.Session()
	if !ok || s.ProtocolVersion != "2026-01-26" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
