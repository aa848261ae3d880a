package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/app/worker"
	"github.com/jose-valero/slashkit/internal/domain"
)

type recorder struct {
	mu      sync.Mutex
	replies []domain.Message
	edits   []domain.Message
	modals  []domain.Modal
	choices []*discordgo.ApplicationCommandOptionChoice
}

func (r *recorder) Reply(_ context.Context, m domain.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, m)
	return "m1", nil
}

func (r *recorder) Defer(context.Context, bool) error { return nil }

func (r *recorder) Edit(_ context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, m)
	return nil
}

func (r *recorder) OpenModal(_ context.Context, m domain.Modal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modals = append(r.modals, m)
	return nil
}

func (r *recorder) Suggest(_ context.Context, c []*discordgo.ApplicationCommandOptionChoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choices = c
	return nil
}

func (r *recorder) lastReply() domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return domain.Message{}
	}
	return r.replies[len(r.replies)-1]
}

func (r *recorder) lastEdit() domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.edits) == 0 {
		return domain.Message{}
	}
	return r.edits[len(r.edits)-1]
}

type env struct {
	router   *dispatch.Router
	waiter   *waiter.Waiter
	settings *Settings
}

var commandIDs = map[string]string{"ping": "1", "confirm": "2", "counter": "3", "config": "4", "wait": "5"}

func onlyAdmins(_ context.Context, inv *domain.Invocation) error {
	if inv.Actor.UserID != "42" {
		return dispatch.ErrDenied
	}
	return nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	pools := worker.NewPools(worker.Sizes{Events: 4, Actions: 4, Detached: 2, Timers: 4})
	sched := scheduler.New(pools.Timers)
	w := waiter.New(pools.Actions, sched)
	reg := session.NewRegistry(sched, w)
	t.Cleanup(func() {
		reg.Close(context.Background())
		sched.Close()
		pools.Close()
	})

	settings := NewSettings()
	r := dispatch.NewRouter(reg, cooldown.NewTracker(cooldown.NewMemoryStore()), nil, dispatch.DefaultDefaults())
	require.NoError(t, r.Register(All(Deps{AdminGuard: onlyAdmins, Settings: settings})...))
	for name, id := range commandIDs {
		require.NoError(t, r.BindCommandID(name, id))
	}
	return &env{router: r, waiter: w, settings: settings}
}

func actor(user string) domain.Actor {
	return domain.Actor{UserID: user, ChannelID: "100", GuildID: "200"}
}

func invocation(user string, path ...string) (*domain.Invocation, *recorder) {
	rs := &recorder{}
	return &domain.Invocation{
		Interaction: domain.Interaction{ID: "i", Actor: actor(user), Respond: rs},
		CommandID:   commandIDs[path[0]],
		Path:        path,
		Options:     map[string]*discordgo.ApplicationCommandInteractionDataOption{},
	}, rs
}

func button(user, customID, content string) (*domain.ButtonEvent, *recorder) {
	rs := &recorder{}
	return &domain.ButtonEvent{
		Interaction: domain.Interaction{
			ID: "b", Actor: actor(user), Respond: rs,
			Raw: &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
				Message: &discordgo.Message{ID: "m1", Content: content},
			}},
		},
		MessageID: "m1",
		CustomID:  customID,
	}, rs
}

func customIDs(m domain.Message) []string {
	var ids []string
	for _, c := range m.Components {
		row, ok := c.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, x := range row.Components {
			if b, ok := x.(discordgo.Button); ok {
				ids = append(ids, b.CustomID)
			}
		}
	}
	return ids
}

func TestAllHaveDefinitions(t *testing.T) {
	for _, c := range All(Deps{}) {
		require.NotNil(t, c.Definition(), c.Name())
		assert.Equal(t, c.Name(), c.Definition().Name)
		assert.NotEmpty(t, c.Definition().Description)
	}
}

func TestPingCooldown(t *testing.T) {
	e := newEnv(t)

	inv, rs := invocation("42", "ping")
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	assert.Equal(t, "🏓 Pong!", rs.lastReply().Content)
	assert.Zero(t, e.router.Registry().Len())

	inv, rs = invocation("42", "ping")
	assert.Equal(t, dispatch.OnCooldown, e.router.HandleCommand(context.Background(), inv))
	assert.True(t, rs.lastReply().Ephemeral)

	// otro usuario no comparte el cooldown
	inv, _ = invocation("7", "ping")
	assert.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
}

func TestConfirmOnlyInvoker(t *testing.T) {
	e := newEnv(t)

	inv, rs := invocation("42", "confirm")
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	ids := customIDs(rs.lastReply())
	require.Len(t, ids, 2)

	ev, _ := button("7", ids[0], "")
	assert.Equal(t, dispatch.NoMatch, e.router.HandleButton(context.Background(), ev))

	ev, brs := button("42", ids[0], "")
	require.Equal(t, dispatch.Handled, e.router.HandleButton(context.Background(), ev))
	assert.Equal(t, "✅ Confirmado.", brs.lastEdit().Content)
	assert.Zero(t, e.router.Registry().Len())

	ev, _ = button("42", ids[1], "")
	assert.Equal(t, dispatch.NoMatch, e.router.HandleButton(context.Background(), ev))
}

func TestConfirmTimeoutEditsOriginal(t *testing.T) {
	rs := &recorder{}
	c := &confirm{respond: rs}
	require.NoError(t, c.OnButtonTimeout(context.Background()))
	assert.Equal(t, "⌛ Se acabó el tiempo.", rs.lastEdit().Content)
	assert.NotNil(t, rs.lastEdit().Components)
}

func TestCounterSurvivesRestart(t *testing.T) {
	first := newEnv(t)
	inv, rs := invocation("42", "counter")
	require.Equal(t, dispatch.Handled, first.router.HandleCommand(context.Background(), inv))
	assert.Equal(t, "Contador: 0", rs.lastReply().Content)
	ids := customIDs(rs.lastReply())
	require.Len(t, ids, 2)

	// un proceso nuevo no conoce la sesión
	second := newEnv(t)
	ev, brs := button("7", ids[0], "Contador: 4")
	require.Equal(t, dispatch.Handled, second.router.HandleButton(context.Background(), ev))
	assert.Equal(t, "Contador: 5", brs.lastEdit().Content)
	assert.Equal(t, ids, customIDs(brs.lastEdit()))

	ev, brs = button("42", ids[1], "Contador: 5")
	require.Equal(t, dispatch.Handled, second.router.HandleButton(context.Background(), ev))
	assert.Equal(t, "Contador: 0", brs.lastEdit().Content)
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 12, parseCount("Contador: 12"))
	assert.Zero(t, parseCount("otra cosa"))
}

func TestConfigSetViaModal(t *testing.T) {
	e := newEnv(t)

	inv, rs := invocation("42", "config", "set")
	inv.Options["key"] = &discordgo.ApplicationCommandInteractionDataOption{
		Name: "key", Type: discordgo.ApplicationCommandOptionString, Value: "timezone",
	}
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	require.Len(t, rs.modals, 1)
	assert.Equal(t, 1, e.router.Registry().Stats().Modals)

	mrs := &recorder{}
	ev := &domain.ModalEvent{
		Interaction: domain.Interaction{ID: "s", Actor: actor("42"), Respond: mrs},
		CustomID:    rs.modals[0].CustomID,
		Values:      map[string]string{"value": " UTC-3 "},
	}
	require.Equal(t, dispatch.Handled, e.router.HandleModal(context.Background(), ev))
	v, ok := e.settings.Get("200", "timezone")
	require.True(t, ok)
	assert.Equal(t, "UTC-3", v)
	assert.Contains(t, mrs.lastReply().Content, "timezone")
	assert.Zero(t, e.router.Registry().Len())
}

func TestConfigSetUnknownKey(t *testing.T) {
	e := newEnv(t)
	inv, rs := invocation("42", "config", "set")
	inv.Options["key"] = &discordgo.ApplicationCommandInteractionDataOption{
		Name: "key", Type: discordgo.ApplicationCommandOptionString, Value: "nope",
	}
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	assert.Empty(t, rs.modals)
	assert.Contains(t, rs.lastReply().Content, "nope")
}

func TestConfigAutoComplete(t *testing.T) {
	e := newEnv(t)
	inv, rs := invocation("42", "config", "set")
	ev := &domain.AutoCompleteEvent{Invocation: *inv, Focused: "key", Value: "ti"}

	require.Equal(t, dispatch.Handled, e.router.HandleAutoComplete(context.Background(), ev))
	require.Len(t, rs.choices, 1)
	assert.Equal(t, "timezone", rs.choices[0].Name)
	assert.Zero(t, e.router.Registry().Len())
}

func TestConfigGuardAndFallback(t *testing.T) {
	e := newEnv(t)

	inv, rs := invocation("7", "config", "show")
	assert.Equal(t, dispatch.Denied, e.router.HandleCommand(context.Background(), inv))
	assert.True(t, rs.lastReply().Ephemeral)

	inv, _ = invocation("7", "config", "reset")
	assert.Equal(t, dispatch.Denied, e.router.HandleCommand(context.Background(), inv))

	inv, rs = invocation("42", "config", "reset")
	assert.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	assert.Contains(t, rs.lastReply().Content, "/config set")
}

func TestConfigRoleAddAndShow(t *testing.T) {
	e := newEnv(t)
	e.settings.Set("200", "language", "es")

	add := func() string {
		inv, rs := invocation("42", "config", "role", "add")
		inv.Options["role"] = &discordgo.ApplicationCommandInteractionDataOption{
			Name: "role", Type: discordgo.ApplicationCommandOptionRole, Value: "555",
		}
		require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
		return rs.lastReply().Content
	}
	assert.Contains(t, add(), "<@&555>")
	assert.Contains(t, add(), "ya estaba")

	inv, rs := invocation("42", "config", "show")
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	embeds := rs.lastReply().Embeds
	require.Len(t, embeds, 1)
	assert.Contains(t, embeds[0].Description, "`language` = `es`")
	assert.Equal(t, "<@&555>", embeds[0].Fields[0].Value)
	assert.Zero(t, e.router.Registry().Len())
}

func TestWaitReceivesNextMessage(t *testing.T) {
	e := newEnv(t)

	inv, rs := invocation("42", "wait")
	require.Equal(t, dispatch.Handled, e.router.HandleCommand(context.Background(), inv))
	assert.Equal(t, 1, e.waiter.Pending())

	other := &domain.MessageEvent{Actor: actor("7"), Content: "hola"}
	assert.Zero(t, e.waiter.Dispatch(other))

	mine := &domain.MessageEvent{Actor: actor("42"), Content: "listo"}
	require.Equal(t, 1, e.waiter.Dispatch(mine))

	require.Eventually(t, func() bool {
		return strings.Contains(rs.lastEdit().Content, "listo") && e.router.Registry().Len() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, e.waiter.Pending())
}

func TestSettingsRoles(t *testing.T) {
	s := NewSettings()
	assert.True(t, s.AddRole("g", "1"))
	assert.False(t, s.AddRole("g", "1"))
	roles := s.Roles("g")
	roles[0] = "x"
	assert.Equal(t, []string{"1"}, s.Roles("g"))
}
