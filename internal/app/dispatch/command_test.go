package dispatch

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	"github.com/jose-valero/slashkit/internal/app/session"
)

func TestCommandParams(t *testing.T) {
	noop := func() session.Handler { return &tally{} }
	def := Defaults{SessionTimeout: 15 * time.Minute, ObserverTimeout: time.Minute}

	p := NewCommand("a").Handle(noop).params(def)
	assert.Equal(t, 15*time.Minute, p.TimeoutDelay)
	assert.Equal(t, time.Minute, p.ObserverTimeout)
	assert.True(t, p.FreshInstance)
	assert.True(t, p.RemoveObserversOnDestroy)
	assert.True(t, p.CallOnDestroyHook)

	p = NewCommand("b").
		Timeout(time.Hour).
		ObserverTimeout(30 * time.Second).
		Reuse().
		KeepObservers().
		SkipDestroyHook().
		params(def)
	assert.Equal(t, time.Hour, p.TimeoutDelay)
	assert.Equal(t, 30*time.Second, p.ObserverTimeout)
	assert.False(t, p.FreshInstance)
	assert.False(t, p.RemoveObserversOnDestroy)
	assert.False(t, p.CallOnDestroyHook)
}

func TestCommandPathsAndDefinition(t *testing.T) {
	noop := func() session.Handler { return &tally{} }
	c := NewCommand("config").
		Describe(&discordgo.ApplicationCommand{Description: "Config"}).
		Sub("show", noop).
		SubIn("role", "add", noop).
		Sub("set", noop)

	assert.Equal(t, []string{"role/add", "set", "show"}, c.Paths())
	assert.Equal(t, "config", c.Definition().Name)
}

func TestValidPath(t *testing.T) {
	assert.True(t, validPath(""))
	assert.True(t, validPath("role/add"))
	assert.False(t, validPath("role//add"))
	assert.False(t, validPath("a:b"))
}
