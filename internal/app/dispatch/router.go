// Package dispatch routes slash commands and their follow-ups (buttons,
// select menus, modals, autocomplete) to sessions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
	"github.com/jose-valero/slashkit/internal/app/interactionid"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/app/worker"
	"github.com/jose-valero/slashkit/internal/domain"
)

var (
	ErrDuplicate      = errors.New("command already registered")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPath    = errors.New("invalid sub-command path")
)

// Outcome tells what the router did with an event.
type Outcome int

const (
	// NoMatch: nothing was listening, the event is dropped silently.
	NoMatch Outcome = iota
	Handled
	// Unhandled: the callback ran but returned handled=false.
	Unhandled
	Denied
	OnCooldown
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no_match"
	case Handled:
		return "handled"
	case Unhandled:
		return "unhandled"
	case Denied:
		return "denied"
	case OnCooldown:
		return "cooldown"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Defaults apply to every command that does not override them.
type Defaults struct {
	SessionTimeout  time.Duration
	ObserverTimeout time.Duration
	// HandlerTimeout bounds the context handed to each callback; zero leaves
	// the caller's deadline alone.
	HandlerTimeout time.Duration
	HistorySize    int
	// RehydrateTimeout caps the idle lifetime of sessions rebuilt from a
	// persistent component id until they observe something.
	RehydrateTimeout time.Duration
}

func DefaultDefaults() Defaults {
	return Defaults{
		SessionTimeout:   15 * time.Minute,
		HandlerTimeout:   12 * time.Second,
		HistorySize:      256,
		RehydrateTimeout: time.Minute,
	}
}

type Router struct {
	reg       *session.Registry
	cooldowns *cooldown.Tracker
	detached  *worker.Pool
	def       Defaults
	hooks     Hooks
	history   *history

	mu       sync.RWMutex
	commands map[string]*Command
	byID     map[string]*Command
}

// NewRouter wires the router to a registry. cooldowns and detached may be
// nil: cooldowns are then never enforced and bookkeeping runs inline.
func NewRouter(reg *session.Registry, cooldowns *cooldown.Tracker, detached *worker.Pool, def Defaults) *Router {
	r := &Router{
		reg:       reg,
		cooldowns: cooldowns,
		detached:  detached,
		def:       def,
		hooks:     DefaultHooks(),
		history:   newHistory(def.HistorySize),
		commands:  make(map[string]*Command),
		byID:      make(map[string]*Command),
	}
	reg.SetRehydrateTimeout(def.RehydrateTimeout)
	reg.OnHookError(func(_ context.Context, s *session.Session, hook string, err error) {
		lastResort(nil, s.Ref().Name+"."+hook, err, nil)
	})
	return r
}

// SetHooks overrides the hooks that are set in h.
func (r *Router) SetHooks(h Hooks) { r.hooks = r.hooks.merge(h) }

func (r *Router) Registry() *session.Registry { return r.reg }

func (r *Router) Register(cmds ...*Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		if _, ok := r.commands[c.name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, c.name)
		}
		for _, p := range c.Paths() {
			if !validPath(p) {
				return fmt.Errorf("%w: %s %q", ErrInvalidPath, c.name, p)
			}
		}
		r.commands[c.name] = c
	}
	return nil
}

// BindCommandID records the id the platform assigned to a command once it
// was registered remotely.
func (r *Router) BindCommandID(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	r.byID[id] = c
	return nil
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Router) command(id, name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byID[id]; ok {
		return c
	}
	return r.commands[name]
}

// Recent returns the latest routed interactions, newest first.
func (r *Router) Recent(n int) []Record { return r.history.latest(n) }

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.def.HandlerTimeout > 0 {
		return context.WithTimeout(ctx, r.def.HandlerTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Router) fail(ctx context.Context, ia *domain.Interaction, where string, err error) {
	if herr := r.hooks.OnError(ctx, ia, err); herr != nil {
		lastResort(ia, where, err, herr)
	}
}

func (r *Router) note(kind, command string, ia *domain.Interaction, out Outcome, start time.Time) {
	rec := Record{
		At:      start,
		Kind:    kind,
		Command: command,
		UserID:  ia.Actor.UserID,
		GuildID: ia.Actor.GuildID,
		Outcome: out.String(),
		Took:    time.Since(start),
	}
	write := func() {
		r.history.add(rec)
		log.Debug().
			Str("kind", rec.Kind).
			Str("command", rec.Command).
			Str("user", rec.UserID).
			Str("outcome", rec.Outcome).
			Dur("took", rec.Took).
			Msg("interaction routed")
	}
	if r.detached == nil || !r.detached.Go(write) {
		write()
	}
}

// HandleCommand runs guards and the cooldown check, creates (or reuses) the
// session for the invoked path and calls Execute.
func (r *Router) HandleCommand(ctx context.Context, inv *domain.Invocation) Outcome {
	start := time.Now()
	out := r.handleCommand(ctx, inv)
	r.note("command", inv.Name(), &inv.Interaction, out, start)
	return out
}

func (r *Router) handleCommand(ctx context.Context, inv *domain.Invocation) Outcome {
	c := r.command(inv.CommandID, inv.Name())
	if c == nil {
		log.Debug().Str("command", inv.Name()).Str("id", inv.CommandID).Msg("no such command")
		return NoMatch
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	path := inv.SubPath()
	f, ok := c.factory(path)
	if !ok {
		if c.fallback == nil {
			log.Debug().Str("command", c.name).Str("path", path).Msg("no handler for path")
			return NoMatch
		}
		if err := r.guard(ctx, c, inv); err != nil {
			return Denied
		}
		if err := callFallback(ctx, c.fallback, inv); err != nil {
			r.fail(ctx, &inv.Interaction, c.name+".fallback", err)
			return Failed
		}
		return Handled
	}

	if err := r.guard(ctx, c, inv); err != nil {
		return Denied
	}

	var key cooldown.Key
	if c.cooldown != nil && r.cooldowns != nil {
		key = cooldown.KeyFor(c.cooldown.scope, c.name, inv.Actor)
		active, remaining, err := r.cooldowns.IsActive(ctx, key, c.cooldown.window)
		if err != nil {
			// a failing backend never blocks the command
			log.Warn().Err(err).Str("key", key.String()).Msg("cooldown lookup failed")
		}
		if active {
			if herr := r.hooks.OnCooldown(ctx, inv, remaining); herr != nil {
				lastResort(&inv.Interaction, c.name+".cooldown", herr, nil)
			}
			return OnCooldown
		}
	}

	commandID := inv.CommandID
	if commandID == "" {
		commandID = r.boundID(c)
	}
	ref := session.CommandRef{Name: c.name, CommandID: commandID, SubPath: path}
	s, _ := r.reg.Create(ref, f, c.params(r.def), inv.Actor)

	err := s.Call(ctx, func(ctx context.Context, h session.Handler) error {
		return h.Execute(ctx, inv)
	})
	if errors.Is(err, session.ErrDestroyed) {
		return NoMatch
	}
	if err != nil {
		r.fail(ctx, &inv.Interaction, c.name+".execute", err)
		return Failed
	}

	if c.cooldown != nil && r.cooldowns != nil {
		if err := r.cooldowns.RecordUse(ctx, key, c.cooldown.window); err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("cooldown record failed")
		}
	}
	return Handled
}

func callFallback(ctx context.Context, fn FallbackFunc, inv *domain.Invocation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &session.PanicError{Value: rec}
		}
	}()
	return fn(ctx, inv)
}

func (r *Router) guard(ctx context.Context, c *Command, inv *domain.Invocation) error {
	for _, g := range c.guards {
		if err := g(ctx, inv); err != nil {
			log.Debug().Err(err).Str("command", c.name).Str("user", inv.Actor.UserID).Msg("guard denied")
			if herr := r.hooks.OnDenied(ctx, inv, err); herr != nil {
				lastResort(&inv.Interaction, c.name+".denied", herr, nil)
			}
			return err
		}
	}
	return nil
}

func (r *Router) boundID(c *Command) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, bc := range r.byID {
		if bc == c {
			return id
		}
	}
	return ""
}

// HandleAutoComplete hands the request to a transient instance of the
// handler registered for the path; it never creates a session.
func (r *Router) HandleAutoComplete(ctx context.Context, ev *domain.AutoCompleteEvent) Outcome {
	start := time.Now()
	out := r.handleAutoComplete(ctx, ev)
	r.note("autocomplete", ev.Name(), &ev.Interaction, out, start)
	return out
}

func (r *Router) handleAutoComplete(ctx context.Context, ev *domain.AutoCompleteEvent) Outcome {
	c := r.command(ev.CommandID, ev.Name())
	if c == nil {
		return NoMatch
	}
	path := ev.SubPath()
	f, ok := c.factory(path)
	if !ok {
		return NoMatch
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ref := session.CommandRef{Name: c.name, CommandID: ev.CommandID, SubPath: path}
	s := r.reg.Transient(ref, f, c.params(r.def), ev.Actor)
	err := s.Call(ctx, func(ctx context.Context, h session.Handler) error {
		return h.OnAutoComplete(ctx, ev.Focused, ev)
	})
	if err != nil {
		r.fail(ctx, &ev.Interaction, c.name+".autocomplete", err)
		return Failed
	}
	return Handled
}

// followUp is the kind specific part of a button, select or modal event.
type followUp struct {
	kind     session.Kind
	key      string
	customID string
	ia       *domain.Interaction
	// resolve hands the decoded component id and the observer data to the
	// event.
	resolve func(component string, data map[string]any)
	invoke  func(ctx context.Context, h session.Handler) (bool, error)
}

func (r *Router) HandleButton(ctx context.Context, ev *domain.ButtonEvent) Outcome {
	return r.follow(ctx, followUp{
		kind:     session.KindButton,
		key:      ev.MessageID,
		customID: ev.CustomID,
		ia:       &ev.Interaction,
		resolve: func(component string, data map[string]any) {
			ev.Component, ev.Data = component, data
		},
		invoke: func(ctx context.Context, h session.Handler) (bool, error) { return h.OnButton(ctx, ev) },
	})
}

func (r *Router) HandleSelect(ctx context.Context, ev *domain.SelectEvent) Outcome {
	return r.follow(ctx, followUp{
		kind:     session.KindSelect,
		key:      ev.MessageID,
		customID: ev.CustomID,
		ia:       &ev.Interaction,
		resolve: func(component string, data map[string]any) {
			ev.Component, ev.Data = component, data
		},
		invoke: func(ctx context.Context, h session.Handler) (bool, error) { return h.OnSelect(ctx, ev) },
	})
}

// HandleModal resolves submissions by the submitting user, modals have no
// message before they are sent.
func (r *Router) HandleModal(ctx context.Context, ev *domain.ModalEvent) Outcome {
	return r.follow(ctx, followUp{
		kind:     session.KindModal,
		key:      ev.Actor.UserID,
		customID: ev.CustomID,
		ia:       &ev.Interaction,
		resolve: func(component string, data map[string]any) {
			ev.Component, ev.Data = component, data
		},
		invoke: func(ctx context.Context, h session.Handler) (bool, error) { return h.OnModal(ctx, ev) },
	})
}

func (r *Router) follow(ctx context.Context, f followUp) Outcome {
	start := time.Now()
	name, out := r.resolveFollowUp(ctx, f)
	r.note(f.kind.String(), name, f.ia, out, start)
	return out
}

// resolveFollowUp finds the session for a component event. A global id of a
// persistent command rehydrates its session; any other id, global or not, is
// resolved through the observer maps, and a global id must then name the
// session that owns the entry.
func (r *Router) resolveFollowUp(ctx context.Context, f followUp) (string, Outcome) {
	user := f.ia.Actor.UserID
	component := f.customID

	gid, err := interactionid.Parse(f.customID)
	global := err == nil
	if global {
		if !gid.Allows(user) {
			log.Debug().Str("user", user).Str("custom_id", f.customID).Msg("component reserved to another user")
			return "", NoMatch
		}
		component = gid.ComponentID
	}

	var (
		s     *session.Session
		entry *session.Entry
		cmd   *Command
	)
	if global {
		if c := r.command(gid.CommandID, ""); c != nil && c.persistent {
			cmd = c
		}
	}

	if cmd != nil {
		fac, ok := cmd.factory(gid.SubPath)
		if !ok {
			return cmd.name, NoMatch
		}
		ref := session.CommandRef{Name: cmd.name, CommandID: gid.CommandID, SubPath: gid.SubPath}
		s, _ = r.reg.Rehydrate(ref, gid.SessionID, fac, cmd.params(r.def), f.ia.Actor)
		if e, ok := r.reg.Observers().Get(f.kind, f.key); ok && e.SessionID == s.ID() {
			entry = e
		}
	} else {
		e, ok := r.reg.Observers().Get(f.kind, f.key)
		if !ok {
			log.Debug().Stringer("kind", f.kind).Str("key", f.key).Msg("nothing observes this component")
			return "", NoMatch
		}
		if global && gid.SessionID != e.SessionID {
			log.Debug().Str("session", gid.SessionID).Str("observer", e.SessionID).Msg("stale component")
			return e.Command, NoMatch
		}
		if s, err = r.reg.Get(e.SessionID); err != nil {
			return e.Command, NoMatch
		}
		entry = e
	}
	name := s.Ref().Name

	var data map[string]any
	if entry != nil {
		if !entry.Allows(user) {
			log.Debug().Str("session", s.ID()).Str("user", user).Msg("follow-up from unexpected author")
			return name, NoMatch
		}
		data = entry.Data
	}
	f.resolve(component, data)
	_ = r.reg.Touch(s.ID())

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var handled bool
	err = s.Call(ctx, func(ctx context.Context, h session.Handler) error {
		var err error
		handled, err = f.invoke(ctx, h)
		return err
	})
	if errors.Is(err, session.ErrDestroyed) {
		return name, NoMatch
	}
	if err != nil {
		r.fail(ctx, f.ia, name+"."+f.kind.String(), err)
		return name, Failed
	}
	if !handled {
		return name, Unhandled
	}

	// no entry (persistent follow-up) behaves as stay-active
	if entry != nil && !entry.StayActive && r.reg.RemoveEntry(entry) {
		if !r.reg.Observers().HasSession(s.ID()) {
			r.reg.End(ctx, s.ID())
		}
	}
	return name, Handled
}
