// Package session owns the live handler instances (sessions), their
// inactivity timeouts and the observer maps that route follow-up
// interactions back to them.
package session

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/domain"
)

// Hooks selects which lifecycle callbacks a destroy runs.
type Hooks uint8

const (
	HookDestroy Hooks = 1 << iota
	HookButtonTimeout
	HookSelectTimeout
	HookModalTimeout

	HookTimeouts = HookButtonTimeout | HookSelectTimeout | HookModalTimeout
	HookAll      = HookDestroy | HookTimeouts
)

func timeoutHook(k Kind) Hooks {
	switch k {
	case KindButton:
		return HookButtonTimeout
	case KindSelect:
		return HookSelectTimeout
	case KindModal:
		return HookModalTimeout
	}
	return 0
}

type DestroyOptions struct {
	RemoveObservers bool
	CancelTimeouts  bool
	Hooks           Hooks
}

// HookErrorFunc receives errors returned (or panics raised) by lifecycle
// hooks, which have no interaction to answer.
type HookErrorFunc func(ctx context.Context, s *Session, hook string, err error)

type Stats struct {
	Sessions  int `json:"sessions"`
	Buttons   int `json:"buttons"`
	Selects   int `json:"selects"`
	Modals    int `json:"modals"`
	Scheduled int `json:"scheduled"`
}

// Registry is safe for concurrent use.
type Registry struct {
	sched  *scheduler.Scheduler
	waiter *waiter.Waiter
	obs    *Observers

	hookTimeout time.Duration
	onHookError HookErrorFunc
	newID       func() string

	// rehydrateTTL caps rehydrated sessions that wait for nothing.
	rehydrateTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	reuse    map[string]string
}

// NewRegistry builds an empty registry; w may be nil when nothing awaits
// ad-hoc events.
func NewRegistry(sched *scheduler.Scheduler, w *waiter.Waiter) *Registry {
	return &Registry{
		sched:       sched,
		waiter:      w,
		obs:         NewObservers(),
		hookTimeout:  10 * time.Second,
		rehydrateTTL: time.Minute,
		newID:        NewID,
		sessions:     make(map[string]*Session),
		reuse:        make(map[string]string),
	}
}

// NewID returns 22 URL-safe characters of a random UUID; never contains ':'.
func NewID() string {
	u := uuid.Must(uuid.NewV4())
	return base64.RawURLEncoding.EncodeToString(u.Bytes())
}

// SetHookTimeout bounds the context handed to timeout and destroy hooks.
func (r *Registry) SetHookTimeout(d time.Duration) {
	if d > 0 {
		r.hookTimeout = d
	}
}

// SetRehydrateTimeout caps the inactivity timeout of a rehydrated session
// while it has no observers nor awaited events.
func (r *Registry) SetRehydrateTimeout(d time.Duration) {
	if d > 0 {
		r.rehydrateTTL = d
	}
}

func (r *Registry) OnHookError(fn HookErrorFunc) { r.onHookError = fn }

func (r *Registry) Observers() *Observers { return r.obs }

func (r *Registry) hookFailed(ctx context.Context, s *Session, hook string, err error) {
	if r.onHookError != nil {
		r.onHookError(ctx, s, hook, err)
		return
	}
	log.Error().Err(err).Str("session", s.id).Str("command", s.ref.Name).Str("hook", hook).Msg("lifecycle hook failed")
}

func reuseKey(ref CommandRef, userID string) string {
	return ref.Name + "/" + ref.SubPath + "/" + userID
}

func (r *Registry) build(ref CommandRef, id string, f Factory, p Params, actor domain.Actor) *Session {
	s := &Session{
		id:      id,
		ref:     ref,
		owner:   actor,
		params:  p,
		created: time.Now(),
		reg:     r,
	}
	h := f()
	h.bind(s)
	s.handler = h
	return s
}

// Create registers a new session, or returns the caller's live one when
// FreshInstance is off. created is false in the latter case.
func (r *Registry) Create(ref CommandRef, f Factory, p Params, actor domain.Actor) (*Session, bool) {
	var key string
	if !p.FreshInstance && actor.UserID != "" {
		key = reuseKey(ref, actor.UserID)
		r.mu.RLock()
		s, ok := r.sessions[r.reuse[key]]
		r.mu.RUnlock()
		if ok && !s.destroyed.Load() {
			r.touch(s)
			return s, false
		}
	}

	s := r.build(ref, r.newID(), f, p, actor)
	s.reuseKey = key

	r.mu.Lock()
	r.sessions[s.id] = s
	if key != "" {
		r.reuse[key] = s.id
	}
	r.mu.Unlock()

	r.touch(s)
	log.Debug().Str("session", s.id).Str("command", ref.Name).Str("user", actor.UserID).Msg("session created")
	return s, true
}

// Rehydrate recreates a session under a known id (from a Global Interaction
// Id) unless one is already live. created reports which happened.
func (r *Registry) Rehydrate(ref CommandRef, id string, f Factory, p Params, actor domain.Actor) (*Session, bool) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		r.touch(s)
		return s, false
	}
	s := r.build(ref, id, f, p, actor)
	s.rehydrated = true
	r.sessions[id] = s
	r.mu.Unlock()

	r.touch(s)
	log.Debug().Str("session", id).Str("command", ref.Name).Msg("session rehydrated")
	return s, true
}

// Transient builds a session that is never registered nor scheduled; it
// cannot observe follow-ups.
func (r *Registry) Transient(ref CommandRef, f Factory, p Params, actor domain.Actor) *Session {
	s := r.build(ref, r.newID(), f, p, actor)
	s.transient = true
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Touch restarts the inactivity timeout of the session.
func (r *Registry) Touch(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	r.touch(s)
	return nil
}

func (r *Registry) touch(s *Session) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.destroyed.Load() {
		return
	}
	s.timer.touched = time.Now()
	s.timer.gen++
	delay := s.params.TimeoutDelay
	if delay <= 0 {
		return
	}
	if s.rehydrated && r.rehydrateTTL < delay && !r.holds(s.id) {
		delay = r.rehydrateTTL
	}
	gen := s.timer.gen
	s.timer.handle = r.sched.Reschedule(s.timer.handle, delay, func() { r.expire(s, gen) })
}

// holds reports whether something still routes to the session.
func (r *Registry) holds(id string) bool {
	if r.obs.HasSession(id) {
		return true
	}
	return r.waiter != nil && r.waiter.PendingByID(id) > 0
}

func (r *Registry) expire(s *Session, gen uint64) {
	s.tmu.Lock()
	stale := s.timer.gen != gen
	s.tmu.Unlock()
	if stale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.hookTimeout)
	defer cancel()

	hooks := HookTimeouts
	if s.params.CallOnDestroyHook {
		hooks |= HookDestroy
	}
	log.Debug().Str("session", s.id).Str("command", s.ref.Name).Msg("session timed out")
	r.Destroy(ctx, s.id, DestroyOptions{
		RemoveObservers: s.params.RemoveObserversOnDestroy,
		CancelTimeouts:  true,
		Hooks:           hooks,
	})
}

func (r *Registry) endOptions(s *Session) DestroyOptions {
	o := DestroyOptions{RemoveObservers: true, CancelTimeouts: true}
	if s.params.CallOnDestroyHook {
		o.Hooks = HookDestroy
	}
	return o
}

// End destroys the session the way a handler's End request does: observers
// go away and only OnDestroy runs, when enabled.
func (r *Registry) End(ctx context.Context, id string) bool {
	s, err := r.Get(id)
	if err != nil {
		return false
	}
	return r.Destroy(ctx, id, r.endOptions(s))
}

// Destroy removes the session; only the first call for an id does
// anything. Timeout hooks run for the non-persisted observer kinds still
// outstanding, then OnDestroy. Observer expiry of the same session waits
// for it, so a timeout hook never runs twice nor after OnDestroy.
func (r *Registry) Destroy(ctx context.Context, id string, opts DestroyOptions) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	s.life.Lock()
	defer s.life.Unlock()
	if !s.destroyed.CompareAndSwap(false, true) {
		return false
	}
	r.mu.Lock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	if s.reuseKey != "" && r.reuse[s.reuseKey] == id {
		delete(r.reuse, s.reuseKey)
	}
	r.mu.Unlock()

	s.tmu.Lock()
	s.timer.handle.Cancel()
	s.timer.gen++
	s.tmu.Unlock()

	var entries []*Entry
	if opts.RemoveObservers {
		entries = r.obs.RemoveSession(id)
	} else {
		entries = r.obs.BySession(id)
	}
	var pending Hooks
	for _, e := range entries {
		if opts.CancelTimeouts {
			e.cancelTimeout()
		}
		if !e.Persist {
			pending |= timeoutHook(e.Kind)
		}
	}
	if r.waiter != nil {
		r.waiter.Remove(id)
	}

	r.runHooks(ctx, s, opts.Hooks&(pending|HookDestroy))
	log.Debug().Str("session", id).Str("command", s.ref.Name).Msg("session destroyed")
	return true
}

func (r *Registry) runHooks(ctx context.Context, s *Session, hooks Hooks) {
	if hooks == 0 {
		return
	}
	run := func(name string, fn func(ctx context.Context, h Handler) error) {
		if err := s.call(ctx, fn); err != nil {
			r.hookFailed(ctx, s, name, err)
		}
	}
	if hooks&HookButtonTimeout != 0 {
		run("OnButtonTimeout", func(ctx context.Context, h Handler) error { return h.OnButtonTimeout(ctx) })
	}
	if hooks&HookSelectTimeout != 0 {
		run("OnSelectTimeout", func(ctx context.Context, h Handler) error { return h.OnSelectTimeout(ctx) })
	}
	if hooks&HookModalTimeout != 0 {
		run("OnModalTimeout", func(ctx context.Context, h Handler) error { return h.OnModalTimeout(ctx) })
	}
	if hooks&HookDestroy != 0 {
		run("OnDestroy", func(ctx context.Context, h Handler) error { return h.OnDestroy(ctx) })
	}
}

func (r *Registry) addEntry(s *Session, e *Entry) {
	if prev := r.obs.Put(e); prev != nil && prev != e {
		prev.cancelTimeout()
	}
	if e.ttl > 0 {
		e.timeout.Store(r.sched.Schedule(e.ttl, func() { r.expireEntry(e) }))
		if cur, ok := r.obs.Get(e.Kind, e.Key); !ok || cur != e {
			e.cancelTimeout()
		}
	}
	r.touch(s)
}

// RemoveEntry drops e after a terminal follow-up. It reports false when e
// had already been replaced or removed.
func (r *Registry) RemoveEntry(e *Entry) bool {
	if !r.obs.CompareAndRemove(e) {
		return false
	}
	e.cancelTimeout()
	return true
}

// expireEntry runs the timeout hook of the entry kind, then destroys the
// session if nothing else observes for it. When a destroy got to the entry
// first, the hook is left to it.
func (r *Registry) expireEntry(e *Entry) {
	s, err := r.Get(e.SessionID)
	if err != nil {
		r.obs.CompareAndRemove(e)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.hookTimeout)
	defer cancel()

	s.life.Lock()
	if s.destroyed.Load() || !r.obs.CompareAndRemove(e) {
		s.life.Unlock()
		return
	}
	log.Debug().Str("session", s.id).Stringer("kind", e.Kind).Str("key", e.Key).Msg("observer timed out")
	if !e.Persist {
		r.runHooks(ctx, s, timeoutHook(e.Kind))
	}
	s.life.Unlock()

	if !r.obs.HasSession(s.id) {
		r.Destroy(ctx, s.id, r.endOptions(s))
	}
}

// Close destroys every live session, running OnDestroy where enabled.
func (r *Registry) Close(ctx context.Context) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		r.Destroy(ctx, s.id, r.endOptions(s))
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Stats() Stats {
	return Stats{
		Sessions:  r.Len(),
		Buttons:   r.obs.Len(KindButton),
		Selects:   r.obs.Len(KindSelect),
		Modals:    r.obs.Len(KindModal),
		Scheduled: r.sched.Pending(),
	}
}
