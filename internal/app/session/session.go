package session

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jose-valero/slashkit/internal/app/interactionid"
	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/domain"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrDestroyed = errors.New("session destroyed")
	ErrTransient = errors.New("transient session cannot observe")
	ErrNoWaiter  = errors.New("registry has no event waiter")
)

// CommandRef identifies the command a session was created for.
type CommandRef struct {
	Name      string
	CommandID string
	SubPath   string
}

// Params are the per-command lifecycle settings.
type Params struct {
	// TimeoutDelay is the inactivity window of the session. Zero disables the
	// session timeout.
	TimeoutDelay time.Duration
	// ObserverTimeout is the default lifetime of observer entries; zero falls
	// back to TimeoutDelay.
	ObserverTimeout time.Duration
	// FreshInstance=false reuses the live session the same user already has
	// for the command.
	FreshInstance            bool
	RemoveObserversOnDestroy bool
	CallOnDestroyHook        bool
}

func DefaultParams() Params {
	return Params{
		TimeoutDelay:             15 * time.Minute,
		FreshInstance:            true,
		RemoveObserversOnDestroy: true,
		CallOnDestroyHook:        true,
	}
}

func (p Params) observerTimeout() time.Duration {
	if p.ObserverTimeout > 0 {
		return p.ObserverTimeout
	}
	return p.TimeoutDelay
}

// Session is one live handler instance.
type Session struct {
	id        string
	ref       CommandRef
	owner     domain.Actor
	handler   Handler
	params    Params
	created   time.Time
	reg       *Registry
	transient bool
	reuseKey  string

	// rehydrated sessions were rebuilt from a component id.
	rehydrated bool

	// mu serializes the callbacks of this session.
	mu sync.Mutex
	// life orders destruction against observer expiry; taken before mu.
	life sync.Mutex

	tmu   sync.Mutex
	timer timerState

	destroyed atomic.Bool
	ending    atomic.Bool
}

type timerState struct {
	gen     uint64
	touched time.Time
	handle  *scheduler.Handle
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Ref() CommandRef     { return s.ref }
func (s *Session) Owner() domain.Actor { return s.owner }
func (s *Session) Handler() Handler    { return s.handler }
func (s *Session) Params() Params      { return s.params }
func (s *Session) Created() time.Time  { return s.created }
func (s *Session) Destroyed() bool     { return s.destroyed.Load() }
func (s *Session) Transient() bool     { return s.transient }

// LastTouched is the time of the last timeout reset.
func (s *Session) LastTouched() time.Time {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return s.timer.touched
}

// End asks for the session to be destroyed once the running callback
// returns. Outside a callback it takes effect on the next one.
func (s *Session) End() { s.ending.Store(true) }

func (s *Session) Ending() bool { return s.ending.Load() }

// Call runs fn with the session lock held. Waiter registrations of the
// session are suspended meanwhile and panics come back as *PanicError. A
// session destroyed while the caller waited for the lock yields
// ErrDestroyed without running fn.
func (s *Session) Call(ctx context.Context, fn func(ctx context.Context, h Handler) error) error {
	err := s.call(ctx, func(ctx context.Context, h Handler) error {
		if s.destroyed.Load() {
			return ErrDestroyed
		}
		return fn(ctx, h)
	})
	if s.ending.Load() && !s.transient {
		s.reg.Destroy(ctx, s.id, s.reg.endOptions(s))
	}
	return err
}

func (s *Session) call(ctx context.Context, fn func(ctx context.Context, h Handler) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w := s.reg.waiter; w != nil {
		w.Suspend(s.id)
		defer w.Resume(s.id)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, s.handler)
}

// ComponentID builds the Global Interaction Id of a component of this
// session. An empty userID lets anyone trigger it.
func (s *Session) ComponentID(component, userID string) (string, error) {
	if userID == "" {
		userID = interactionid.Wildcard
	}
	return interactionid.Encode(interactionid.ID{
		CommandID:   s.ref.CommandID,
		SubPath:     s.ref.SubPath,
		SessionID:   s.id,
		UserID:      userID,
		ComponentID: component,
	})
}

// ObserveButtons routes button clicks on messageID to this session.
func (s *Session) ObserveButtons(messageID string, opts ...ObserveOption) (*Entry, error) {
	return s.observe(KindButton, messageID, opts)
}

// ObserveSelect routes select menu choices on messageID to this session.
func (s *Session) ObserveSelect(messageID string, opts ...ObserveOption) (*Entry, error) {
	return s.observe(KindSelect, messageID, opts)
}

// ObserveModal routes the next modal submitted by userID to this session.
func (s *Session) ObserveModal(userID string, opts ...ObserveOption) (*Entry, error) {
	return s.observe(KindModal, userID, opts)
}

func (s *Session) observe(kind Kind, key string, opts []ObserveOption) (*Entry, error) {
	if s.transient {
		return nil, ErrTransient
	}
	if s.destroyed.Load() {
		return nil, ErrDestroyed
	}
	e := &Entry{
		SessionID: s.id,
		Command:   s.ref.Name,
		Kind:      kind,
		Key:       key,
		Created:   time.Now(),
		ttl:       s.params.observerTimeout(),
	}
	for _, o := range opts {
		o(e)
	}
	s.reg.addEntry(s, e)
	return e, nil
}

// Await waits for the next T satisfying pred on behalf of s. The action runs
// under the session lock and touches the session; it is skipped once the
// session is gone. Destroying the session removes the registration.
func Await[T any](s *Session, pred func(T) bool, action func(ctx context.Context, ev T), opts ...waiter.Option) (*waiter.Registration, error) {
	if s.destroyed.Load() {
		return nil, ErrDestroyed
	}
	r := s.reg
	if r.waiter == nil {
		return nil, ErrNoWaiter
	}
	opts = append(opts, waiter.WithID(s.id), waiter.WithOwner(s.owner.UserID, s.owner.GuildID))
	reg := waiter.WaitFor(r.waiter, pred, func(ev T) {
		if s.destroyed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.hookTimeout)
		defer cancel()
		_ = r.Touch(s.id)
		if err := s.Call(ctx, func(ctx context.Context, _ Handler) error {
			action(ctx, ev)
			return nil
		}); err != nil {
			r.hookFailed(ctx, s, "await", err)
		}
	}, opts...)
	r.touch(s)
	return reg, nil
}
