// Package waiter implements the event correlation registry: "run this action
// the next time an event of type T arrives that satisfies a predicate".
//
// Registrations are keyed by type. An event reaches the registrations for its
// concrete type first, then those for every interface it implements, most
// specific (most methods) first. Matched actions run on the actions pool.
package waiter

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/worker"
)

// Owner is bookkeeping only; it never takes part in matching.
type Owner struct {
	UserID  string
	GuildID string
}

type Option func(*Registration)

// WithTimeout removes the registration after d and calls onTimeout (which may
// be nil) exactly once, unless it matched or was removed before.
func WithTimeout(d time.Duration, onTimeout func()) Option {
	return func(r *Registration) {
		r.timeout = d
		r.onTimeout = onTimeout
	}
}

// StayActive keeps the registration after a match.
func StayActive() Option {
	return func(r *Registration) { r.stay = true }
}

func WithOwner(userID, guildID string) Option {
	return func(r *Registration) { r.owner = Owner{UserID: userID, GuildID: guildID} }
}

// WithID tags the registration so it can be removed, suspended or resumed in
// bulk.
func WithID(id string) Option {
	return func(r *Registration) { r.id = id }
}

// Registration is one pending interest.
type Registration struct {
	w         *Waiter
	id        string
	typ       reflect.Type
	test      func(any) bool
	run       func(any)
	stay      bool
	owner     Owner
	timeout   time.Duration
	onTimeout func()

	handle    atomic.Pointer[scheduler.Handle]
	suspended atomic.Bool
	done      atomic.Bool
}

func (r *Registration) ID() string   { return r.id }
func (r *Registration) Owner() Owner { return r.owner }

// Done reports whether the registration matched, timed out or was removed.
func (r *Registration) Done() bool { return r.done.Load() }

// Cancel removes the registration without calling the timeout callback.
func (r *Registration) Cancel() bool {
	if !r.done.CompareAndSwap(false, true) {
		return false
	}
	r.stopTimer()
	r.w.remove(r)
	return true
}

func (r *Registration) stopTimer() {
	if h := r.handle.Load(); h != nil {
		h.Cancel()
	}
}

func (r *Registration) expire() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.w.remove(r)
	log.Debug().Str("waiter", r.id).Str("type", r.typ.String()).Msg("registration timed out")
	if r.onTimeout != nil {
		r.onTimeout()
	}
}

func (r *Registration) matches(ev any) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("waiter", r.id).Str("panic", fmt.Sprint(rec)).Msg("predicate panicked")
			ok = false
		}
	}()
	return r.test(ev)
}

// Waiter is safe for concurrent use.
type Waiter struct {
	pool  *worker.Pool
	sched *scheduler.Scheduler

	mu     sync.RWMutex
	byType map[reflect.Type][]*Registration
	ifaces []reflect.Type
}

func New(pool *worker.Pool, sched *scheduler.Scheduler) *Waiter {
	return &Waiter{pool: pool, sched: sched, byType: make(map[reflect.Type][]*Registration)}
}

// WaitFor registers interest in the next T satisfying pred (nil matches every
// T). T may be a concrete type or an interface.
func WaitFor[T any](w *Waiter, pred func(T) bool, action func(T), opts ...Option) *Registration {
	r := &Registration{
		w:   w,
		typ: reflect.TypeOf((*T)(nil)).Elem(),
		test: func(ev any) bool {
			v, ok := ev.(T)
			return ok && (pred == nil || pred(v))
		},
		run: func(ev any) { action(ev.(T)) },
	}
	for _, o := range opts {
		o(r)
	}
	w.add(r)
	if r.timeout > 0 {
		r.handle.Store(w.sched.Schedule(r.timeout, r.expire))
		if r.done.Load() {
			r.stopTimer()
		}
	}
	return r
}

func (w *Waiter) add(r *Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byType[r.typ]; !ok && r.typ.Kind() == reflect.Interface {
		w.ifaces = append(w.ifaces, r.typ)
		sort.SliceStable(w.ifaces, func(i, j int) bool {
			return w.ifaces[i].NumMethod() > w.ifaces[j].NumMethod()
		})
	}
	w.byType[r.typ] = append(w.byType[r.typ], r)
}

func (w *Waiter) remove(r *Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(r)
}

func (w *Waiter) removeLocked(r *Registration) {
	list := w.byType[r.typ]
	for i, x := range list {
		if x == r {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) > 0 {
		w.byType[r.typ] = list
		return
	}
	delete(w.byType, r.typ)
	if r.typ.Kind() == reflect.Interface {
		for i, t := range w.ifaces {
			if t == r.typ {
				w.ifaces = append(w.ifaces[:i:i], w.ifaces[i+1:]...)
				break
			}
		}
	}
}

func (w *Waiter) candidates(et reflect.Type) []*Registration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := append([]*Registration(nil), w.byType[et]...)
	for _, it := range w.ifaces {
		if et.Implements(it) {
			out = append(out, w.byType[it]...)
		}
	}
	return out
}

// Dispatch offers ev to the pending registrations and returns how many
// matched. Predicates run on the caller's goroutine, actions on the pool.
func (w *Waiter) Dispatch(ev any) int {
	if ev == nil {
		return 0
	}
	n := 0
	for _, r := range w.candidates(reflect.TypeOf(ev)) {
		if r.done.Load() || r.suspended.Load() || !r.matches(ev) {
			continue
		}
		if !r.stay {
			if !r.done.CompareAndSwap(false, true) {
				continue
			}
			r.stopTimer()
			w.remove(r)
		}
		n++
		if w.pool == nil || !w.pool.Go(func() { r.run(ev) }) {
			go r.run(ev)
		}
	}
	return n
}

func (w *Waiter) each(id string, fn func(*Registration)) int {
	w.mu.RLock()
	var hits []*Registration
	for _, list := range w.byType {
		for _, r := range list {
			if r.id == id {
				hits = append(hits, r)
			}
		}
	}
	w.mu.RUnlock()
	for _, r := range hits {
		fn(r)
	}
	return len(hits)
}

// Remove cancels every registration tagged with id.
func (w *Waiter) Remove(id string) int {
	n := 0
	w.each(id, func(r *Registration) {
		if r.Cancel() {
			n++
		}
	})
	return n
}

// Suspend makes the registrations tagged with id ignore events until Resume.
// They keep their place and their timeout keeps running.
func (w *Waiter) Suspend(id string) int {
	return w.each(id, func(r *Registration) { r.suspended.Store(true) })
}

func (w *Waiter) Resume(id string) int {
	return w.each(id, func(r *Registration) { r.suspended.Store(false) })
}

func (w *Waiter) count(keep func(*Registration) bool) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, list := range w.byType {
		for _, r := range list {
			if keep(r) {
				n++
			}
		}
	}
	return n
}

func (w *Waiter) Pending() int {
	return w.count(func(*Registration) bool { return true })
}

func (w *Waiter) PendingFor(userID string) int {
	return w.count(func(r *Registration) bool { return r.owner.UserID == userID })
}

func (w *Waiter) PendingByID(id string) int {
	return w.count(func(r *Registration) bool { return r.id == id })
}
