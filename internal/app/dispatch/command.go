package dispatch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

// Guard vets an invocation before any session exists. A non-nil error
// denies it.
type Guard func(ctx context.Context, inv *domain.Invocation) error

// FallbackFunc receives invocations whose path has no handler.
type FallbackFunc func(ctx context.Context, inv *domain.Invocation) error

type cooldownRule struct {
	scope  cooldown.Scope
	window time.Duration
}

// Command is the registration of one top level slash command: its
// sub-command tree, lifecycle settings and checks. Build it with NewCommand.
type Command struct {
	name       string
	def        *discordgo.ApplicationCommand
	handlers   map[string]session.Factory
	fallback   FallbackFunc
	persistent bool
	guards     []Guard
	cooldown   *cooldownRule

	timeout         time.Duration
	observerTimeout time.Duration
	reuse           bool
	keepObservers   bool
	skipDestroyHook bool
}

func NewCommand(name string) *Command {
	return &Command{name: name, handlers: make(map[string]session.Factory)}
}

func (c *Command) Name() string { return c.name }

// Describe attaches the definition pushed to the platform on startup.
func (c *Command) Describe(def *discordgo.ApplicationCommand) *Command {
	def.Name = c.name
	c.def = def
	return c
}

func (c *Command) Definition() *discordgo.ApplicationCommand { return c.def }

// Handle sets the handler of the bare command (no sub-command).
func (c *Command) Handle(f session.Factory) *Command {
	c.handlers[""] = f
	return c
}

// Sub routes "/<name> <sub>" to f.
func (c *Command) Sub(sub string, f session.Factory) *Command {
	c.handlers[sub] = f
	return c
}

// SubIn routes "/<name> <group> <sub>" to f.
func (c *Command) SubIn(group, sub string, f session.Factory) *Command {
	c.handlers[group+"/"+sub] = f
	return c
}

func (c *Command) Fallback(fn FallbackFunc) *Command {
	c.fallback = fn
	return c
}

// Persistent makes follow-ups resolvable after a restart: the session is
// rebuilt from the Global Interaction Id when it is not in memory.
func (c *Command) Persistent() *Command {
	c.persistent = true
	return c
}

// Timeout overrides the router's session inactivity timeout.
func (c *Command) Timeout(d time.Duration) *Command {
	c.timeout = d
	return c
}

// ObserverTimeout overrides the default lifetime of observer entries.
func (c *Command) ObserverTimeout(d time.Duration) *Command {
	c.observerTimeout = d
	return c
}

// Reuse hands a user their live session instead of a fresh instance.
func (c *Command) Reuse() *Command {
	c.reuse = true
	return c
}

// KeepObservers leaves observer entries in place when the session goes away.
func (c *Command) KeepObservers() *Command {
	c.keepObservers = true
	return c
}

// SkipDestroyHook disables OnDestroy for the command's sessions.
func (c *Command) SkipDestroyHook() *Command {
	c.skipDestroyHook = true
	return c
}

func (c *Command) Cooldown(scope cooldown.Scope, window time.Duration) *Command {
	c.cooldown = &cooldownRule{scope: scope, window: window}
	return c
}

func (c *Command) Guard(g ...Guard) *Command {
	c.guards = append(c.guards, g...)
	return c
}

// Paths lists the registered sub-command paths, sorted; "" is the bare
// command.
func (c *Command) Paths() []string {
	out := make([]string, 0, len(c.handlers))
	for p := range c.handlers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *Command) factory(path string) (session.Factory, bool) {
	f, ok := c.handlers[path]
	return f, ok
}

func (c *Command) params(def Defaults) session.Params {
	p := session.DefaultParams()
	p.TimeoutDelay = def.SessionTimeout
	p.ObserverTimeout = def.ObserverTimeout
	if c.timeout > 0 {
		p.TimeoutDelay = c.timeout
	}
	if c.observerTimeout > 0 {
		p.ObserverTimeout = c.observerTimeout
	}
	p.FreshInstance = !c.reuse
	p.RemoveObserversOnDestroy = !c.keepObservers
	p.CallOnDestroyHook = !c.skipDestroyHook
	return p
}

func validPath(p string) bool {
	if p == "" {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || strings.Contains(seg, ":") {
			return false
		}
	}
	return true
}
