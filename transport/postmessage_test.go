package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-apps-go/channel"
	"github.com/ggoodman/mcp-apps-go/channel/memory"
	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
)

type sink struct {
	mu     sync.Mutex
	msgs   []*jsonrpc.AnyMessage
	errs   []error
	closes int
}

func (s *sink) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(m *jsonrpc.AnyMessage) { s.mu.Lock(); s.msgs = append(s.msgs, m); s.mu.Unlock() },
		OnError:   func(err error) { s.mu.Lock(); s.errs = append(s.errs, err); s.mu.Unlock() },
		OnClose:   func() { s.mu.Lock(); s.closes++; s.mu.Unlock() },
	}
}

func (s *sink) counts() (msgs, errs, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs), len(s.errs), s.closes
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

func ping(id int64) *jsonrpc.AnyMessage {
	req, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(id), "ping", nil)
	return req.Message()
}

func TestPostMessage_DeliversOnlyFromPeer(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	app := NewPostMessage(ch, "app", "host")
	host := NewPostMessage(ch, "host", "app")

	var atHost sink
	if err := host.Start(t.Context(), atHost.callbacks()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	if err := app.Start(t.Context(), Callbacks{}); err != nil {
		t.Fatalf("start app: %v", err)
	}

	// An impostor posting on the same channel is ignored.
	data, _ := json.Marshal(ping(99))
	if err := ch.Post(t.Context(), channel.Envelope{Source: "impostor", Data: data}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := app.Send(t.Context(), ping(1)); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, func() bool { n, _, _ := atHost.counts(); return n == 1 })
	time.Sleep(20 * time.Millisecond)

	atHost.mu.Lock()
	defer atHost.mu.Unlock()
	if len(atHost.msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(atHost.msgs))
	}
	if got := atHost.msgs[0].ID.String(); got != "1" {
		t.Fatalf("expected id 1, got %s", got)
	}
}

func TestPostMessage_InvalidEnvelopeReportsParseError(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	host := NewPostMessage(ch, "host", "app")
	var s sink
	if err := host.Start(t.Context(), s.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_ = ch.Post(t.Context(), channel.Envelope{Source: "app", Data: json.RawMessage(`{"jsonrpc":"1.0","method":"x"}`)})
	waitFor(t, func() bool { _, n, _ := s.counts(); return n == 1 })

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) != 0 {
		t.Fatalf("invalid message was delivered")
	}
	var pe *ParseError
	if !errors.As(s.errs[0], &pe) || !errors.Is(s.errs[0], ErrParse) {
		t.Fatalf("expected ParseError, got %v", s.errs[0])
	}
}

func TestPostMessage_StartIdempotentCloseOnce(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	tr := NewPostMessage(ch, "a", "b")
	if err := tr.Send(t.Context(), ping(1)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("send before start: want ErrNotStarted, got %v", err)
	}

	var s sink
	if err := tr.Start(t.Context(), s.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Start(t.Context(), s.callbacks()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if ch.Listeners() != 1 {
		t.Fatalf("expected one channel listener, got %d", ch.Listeners())
	}

	_ = tr.Close()
	_ = tr.Close()

	if _, _, closes := s.counts(); closes != 1 {
		t.Fatalf("OnClose invoked %d times", closes)
	}
	if ch.Listeners() != 0 {
		t.Fatalf("listener not removed on close")
	}
	if err := tr.Send(t.Context(), ping(2)); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: want ErrClosed, got %v", err)
	}
	if err := tr.Start(t.Context(), s.callbacks()); !errors.Is(err, ErrClosed) {
		t.Fatalf("start after close: want ErrClosed, got %v", err)
	}
}

func TestPostMessage_RateLimit(t *testing.T) {
	t.Parallel()

	ch := memory.New()
	defer ch.Close()

	host := NewPostMessage(ch, "host", "app", WithRateLimit(0.001, 2))
	var s sink
	if err := host.Start(t.Context(), s.callbacks()); err != nil {
		t.Fatalf("start: %v", err)
	}
	data, _ := json.Marshal(ping(1))
	for range 5 {
		_ = ch.Post(t.Context(), channel.Envelope{Source: "app", Data: data})
	}

	waitFor(t, func() bool { m, e, _ := s.counts(); return m+e == 5 })
	m, e, _ := s.counts()
	if m != 2 || e != 3 {
		t.Fatalf("expected 2 delivered and 3 limited, got %d/%d", m, e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !errors.Is(s.errs[0], ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", s.errs[0])
	}
}
