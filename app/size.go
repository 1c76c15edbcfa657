package app

import (
	"sync"
	"time"
)

// Size is a rendered size in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// Surface is the rendered area whose size is reported to the Host.
type Surface interface {
	// BoundingBox returns the current rendered size.
	BoundingBox() Size
	// Observe arranges for fn to be called whenever the layout may have
	// changed, until stop is called.
	Observe(fn func()) (stop func())
}

// FrameScheduler runs work aligned to rendering frames.
type FrameScheduler interface {
	// RequestFrame runs fn once at the next frame. cancel prevents fn from
	// running if it has not started.
	RequestFrame(fn func()) (cancel func())
}

// DefaultFrameInterval approximates a 60Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// TimerScheduler treats each Interval as a frame.
type TimerScheduler struct {
	Interval time.Duration
}

// RequestFrame implements FrameScheduler.
func (s TimerScheduler) RequestFrame(fn func()) func() {
	d := s.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// sizeReporter coalesces layout triggers into at most one report per frame
// and suppresses reports of an unchanged size.
type sizeReporter struct {
	surface   Surface
	scheduler FrameScheduler
	report    func(Size)

	mu        sync.Mutex
	scheduled bool
	cancel    func()
	last      Size
	sent      bool
	stopped   bool
	unobserve func()
}

func newSizeReporter(s Surface, fs FrameScheduler, report func(Size)) *sizeReporter {
	return &sizeReporter{surface: s, scheduler: fs, report: report}
}

func (r *sizeReporter) start() {
	unobserve := r.surface.Observe(r.trigger)
	r.mu.Lock()
	r.unobserve = unobserve
	r.mu.Unlock()
	r.trigger()
}

func (r *sizeReporter) trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.scheduled {
		return
	}
	r.scheduled = true
	r.cancel = r.scheduler.RequestFrame(r.flush)
}

func (r *sizeReporter) flush() {
	r.mu.Lock()
	r.scheduled = false
	r.cancel = nil
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	size := r.surface.BoundingBox()

	r.mu.Lock()
	if r.stopped || (r.sent && size == r.last) {
		r.mu.Unlock()
		return
	}
	r.last, r.sent = size, true
	r.mu.Unlock()

	r.report(size)
}

func (r *sizeReporter) stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel, unobserve := r.cancel, r.unobserve
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unobserve != nil {
		unobserve()
	}
}
