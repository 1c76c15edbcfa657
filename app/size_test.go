package app

import (
	"sync"
	"testing"

	"github.com/ggoodman/mcp-apps-go/mcpui"
)

// manualFrames runs scheduled work only when Flush is called.
type manualFrames struct {
	mu      sync.Mutex
	pending []func()
}

func (m *manualFrames) RequestFrame(fn func()) func() {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	return func() {}
}

func (m *manualFrames) Flush() {
	m.mu.Lock()
	fns := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *manualFrames) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// fakeSurface is a resizable surface.
type fakeSurface struct {
	mu       sync.Mutex
	size     Size
	observer func()
}

func (s *fakeSurface) BoundingBox() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *fakeSurface) Observe(fn func()) func() {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.observer = nil
		s.mu.Unlock()
	}
}

func (s *fakeSurface) Resize(w, h int) {
	s.mu.Lock()
	s.size = Size{Width: w, Height: h}
	fn := s.observer
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func TestSizeReporter_CoalescesPerFrame(t *testing.T) {
	t.Parallel()

	frames := &manualFrames{}
	surface := &fakeSurface{size: Size{Width: 100, Height: 50}}
	var mu sync.Mutex
	var reports []Size
	r := newSizeReporter(surface, frames, func(s Size) {
		mu.Lock()
		reports = append(reports, s)
		mu.Unlock()
	})
	r.start()
	defer r.stop()
	frames.Flush()

	surface.Resize(320, 200)
	surface.Resize(320, 240)
	if n := frames.Len(); n != 1 {
		t.Fatalf("expected one scheduled frame, got %d", n)
	}
	frames.Flush()

	// Unchanged size is not resent.
	surface.Resize(320, 240)
	frames.Flush()

	mu.Lock()
	defer mu.Unlock()
	want := []Size{{100, 50}, {320, 240}}
	if len(reports) != len(want) {
		t.Fatalf("want %v, got %v", want, reports)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Fatalf("report %d: want %v, got %v", i, want[i], reports[i])
		}
	}
}

func TestAutoResize_SendsOneSizeChangePerFrame(t *testing.T) {
	t.Parallel()

	h := newFakeHost(t, mcpui.InitializeResult{ProtocolVersion: mcpui.LatestProtocolVersion})
	frames := &manualFrames{}
	surface := &fakeSurface{size: Size{Width: 300, Height: 100}}
	connectApp(t, h, WithSurface(surface), WithFrameScheduler(frames))

	frames.Flush()
	waitFor(t, func() bool { h.mu.Lock(); defer h.mu.Unlock(); return len(h.sizes) == 1 })

	surface.Resize(300, 180)
	surface.Resize(300, 260)
	frames.Flush()
	waitFor(t, func() bool { h.mu.Lock(); defer h.mu.Unlock(); return len(h.sizes) == 2 })

	countOnWire := func() int {
		n := 0
		for _, m := range h.appMessages() {
			if m.Method == string(mcpui.SizeChangedNotificationMethod) {
				n++
			}
		}
		return n
	}
	waitFor(t, func() bool { return countOnWire() == 2 })

	h.mu.Lock()
	defer h.mu.Unlock()
	if got := h.sizes[1]; got.Width != 300 || got.Height != 260 {
		t.Fatalf("expected latest measurement 300x260, got %+v", got)
	}
	if len(h.sizes) != 2 {
		t.Fatalf("expected exactly 2 size changes, got %v", h.sizes)
	}
}

func TestAutoResize_Disabled(t *testing.T) {
	t.Parallel()

	h := newFakeHost(t, mcpui.InitializeResult{ProtocolVersion: mcpui.LatestProtocolVersion})
	frames := &manualFrames{}
	surface := &fakeSurface{size: Size{Width: 1, Height: 1}}
	connectApp(t, h, WithSurface(surface), WithFrameScheduler(frames), WithAutoResize(false))

	if frames.Len() != 0 {
		t.Fatalf("no frame should be scheduled with auto resize off")
	}
	surface.mu.Lock()
	defer surface.mu.Unlock()
	if surface.observer != nil {
		t.Fatalf("surface should not be observed with auto resize off")
	}
}
