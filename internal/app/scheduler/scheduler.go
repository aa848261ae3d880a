// Package scheduler schedules single-shot callbacks that can be cancelled or
// rescheduled. Each Handle fires at most once.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jose-valero/slashkit/internal/app/worker"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Handle is one scheduled callback.
type Handle struct {
	s     *Scheduler
	timer *time.Timer
	due   time.Time
	state atomic.Int32
}

// Cancel prevents the callback from running. It reports false when the
// callback already started (or was cancelled before); a running callback is
// never interrupted.
func (h *Handle) Cancel() bool {
	if h == nil || !h.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.s.forget(h)
	return true
}

func (h *Handle) Fired() bool { return h != nil && h.state.Load() == stateFired }

func (h *Handle) Active() bool { return h != nil && h.state.Load() == statePending }

func (h *Handle) Due() time.Time { return h.due }

// Scheduler owns the pending handles. Callbacks run on pool when it is set,
// on the timer goroutine otherwise.
type Scheduler struct {
	pool *worker.Pool

	mu      sync.Mutex
	pending map[*Handle]struct{}
	closed  bool
}

func New(pool *worker.Pool) *Scheduler {
	return &Scheduler{pool: pool, pending: make(map[*Handle]struct{})}
}

// Schedule runs fn once after the given delay unless the handle is
// cancelled first. After Close it returns an already cancelled handle.
func (s *Scheduler) Schedule(after time.Duration, fn func()) *Handle {
	h := &Handle{s: s, due: time.Now().Add(after)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		h.state.Store(stateCancelled)
		return h
	}
	s.pending[h] = struct{}{}
	h.timer = time.AfterFunc(after, func() { s.fire(h, fn) })
	return h
}

// Reschedule cancels old (if any) before scheduling fn, so two firings never
// race for the same owner.
func (s *Scheduler) Reschedule(old *Handle, after time.Duration, fn func()) *Handle {
	old.Cancel()
	return s.Schedule(after, fn)
}

func (s *Scheduler) fire(h *Handle, fn func()) {
	if !h.state.CompareAndSwap(statePending, stateFired) {
		return
	}
	s.forget(h)
	if s.pool == nil || !s.pool.Go(fn) {
		fn()
	}
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.pending, h)
	s.mu.Unlock()
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels every pending handle. Scheduling afterwards is a no-op.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for h := range s.pending {
		if h.state.CompareAndSwap(statePending, stateCancelled) {
			h.timer.Stop()
		}
		delete(s.pending, h)
	}
}
