package channel

import (
	"sync"
)

// Fanout delivers envelopes to a dynamic set of listeners. Each listener owns
// an unbounded queue drained by its own goroutine, so a slow listener never
// blocks delivery to the others and never loses envelopes.
//
// Channel implementations embed a Fanout and call Deliver for every envelope
// they observe.
type Fanout struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	fn Listener

	mu      sync.Mutex
	queue   []Envelope
	wake    chan struct{}
	stopped bool
}

// Add registers fn and returns a func that unregisters it.
func (f *Fanout) Add(fn Listener) (func(), error) {
	sub := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.subs == nil {
		f.subs = make(map[*subscriber]struct{})
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
			sub.stop()
		})
	}, nil
}

// Deliver enqueues env on every registered listener.
func (f *Fanout) Deliver(env Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		sub.push(env)
	}
}

// Len reports the number of registered listeners.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close unregisters every listener and rejects further Add calls. Queued
// envelopes that have not started delivery are discarded.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) push(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, env)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	already := s.stopped
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()

	if !already {
		close(s.wake)
	}
}

func (s *subscriber) run() {
	for range s.wake {
		for {
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			env := s.queue[0]
			s.queue[0] = Envelope{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.fn(env)
		}
	}
}
