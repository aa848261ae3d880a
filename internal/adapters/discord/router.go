package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/app/worker"
	"github.com/jose-valero/slashkit/internal/domain"
)

type Options struct {
	GuildID      string // vacío = comandos globales
	AdminRoleIDs []string
	ClickRate    float64
	ClickBurst   int
	// EventTimeout acota cada interacción completa.
	EventTimeout time.Duration
}

// Router conecta el gateway de discordgo con el motor.
type Router struct {
	s      *discordgo.Session
	opts   Options
	engine *dispatch.Router
	waiter *waiter.Waiter
	events *worker.Pool
	sched  *scheduler.Scheduler

	clickLimiter *clickLimiter
	newResponder func(s *discordgo.Session, ic *discordgo.InteractionCreate) domain.Responder

	mu    sync.Mutex
	sweep *scheduler.Handle
}

func NewRouter(
	s *discordgo.Session,
	engine *dispatch.Router,
	w *waiter.Waiter,
	events *worker.Pool,
	sched *scheduler.Scheduler,
	opts Options,
) *Router {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 15 * time.Second
	}
	r := &Router{
		s:            s,
		opts:         opts,
		engine:       engine,
		waiter:       w,
		events:       events,
		sched:        sched,
		clickLimiter: newClickLimiter(opts.ClickRate, opts.ClickBurst),
		newResponder: func(s *discordgo.Session, ic *discordgo.InteractionCreate) domain.Responder {
			return newResponder(s, ic)
		},
	}
	engine.SetHooks(dispatch.Hooks{OnCooldown: replyCooldown})
	return r
}

// AdminGuard arma el guard con los roles admin de este router.
func (r *Router) AdminGuard() dispatch.Guard { return AdminGuard(r.s, r.opts.AdminRoleIDs) }

func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, ev *discordgo.Ready) {
		log.Info().Str("user", ev.User.Username).Int("guilds", len(ev.Guilds)).Msg("gateway ready")
	})

	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if !r.events.Go(func() { r.onInteraction(s, ic) }) {
			log.Warn().Str("interaction", ic.ID).Msg("interaction dropped, shutting down")
		}
	})

	// los mensajes sólo le interesan al waiter
	r.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		ev := messageOf(m)
		r.events.Go(func() { r.waiter.Dispatch(ev) })
	})

	r.scheduleSweep()
}

func (r *Router) scheduleSweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep = r.sched.Reschedule(r.sweep, 5*time.Minute, func() {
		if n := r.clickLimiter.sweep(time.Now()); n > 0 {
			log.Debug().Int("users", n).Msg("click limiter swept")
		}
		r.scheduleSweep()
	})
}

// Stop cancela las tareas propias del adapter.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep.Cancel()
}

func (r *Router) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.EventTimeout)
	defer cancel()
	rs := r.newResponder(s, ic)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("interaction", ic.ID).Msg("panic handling interaction")
			ReplyEphemeral(ctx, rs, "⚠️ Ocurrió un error inesperado.")
		}
	}()
	r.route(ctx, s, ic, rs)
}

func (r *Router) route(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) dispatch.Outcome {
	var (
		out dispatch.Outcome
		ev  domain.Event
	)
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		inv := invocationOf(s, ic, rs)
		defer step("command." + inv.Name())()
		log.Info().Str("command", inv.Name()).Str("path", inv.SubPath()).Str("by", inv.Actor.UserID).Str("guild", inv.Actor.GuildID).Msg("slash")
		out, ev = r.engine.HandleCommand(ctx, inv), inv

	case discordgo.InteractionApplicationCommandAutocomplete:
		ac := autoCompleteOf(s, ic, rs)
		out, ev = r.engine.HandleAutoComplete(ctx, ac), ac

	case discordgo.InteractionMessageComponent:
		c := componentOf(s, ic, rs)
		if !r.clickLimiter.Allow(c.Source().UserID) {
			ReplyEphemeral(ctx, rs, "⏳ Esperá un segundo…")
			return dispatch.NoMatch
		}
		defer step("component")()
		switch e := c.(type) {
		case *domain.ButtonEvent:
			out = r.engine.HandleButton(ctx, e)
		case *domain.SelectEvent:
			out = r.engine.HandleSelect(ctx, e)
		}
		ev = c

	case discordgo.InteractionModalSubmit:
		m := modalOf(s, ic, rs)
		out, ev = r.engine.HandleModal(ctx, m), m

	default:
		return dispatch.NoMatch
	}

	r.waiter.Dispatch(ev)
	return out
}
