package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

// ErrDenied is what guards return when the invoker lacks permission.
var ErrDenied = errors.New("permission denied")

// ErrNoResponder is returned by the default hooks when the interaction
// cannot be answered.
var ErrNoResponder = errors.New("interaction has no responder")

// Hooks are the overridable reactions of the router. A hook that returns an
// error hands the original failure to the last resort reporter.
type Hooks struct {
	OnError    func(ctx context.Context, ia *domain.Interaction, err error) error
	OnDenied   func(ctx context.Context, inv *domain.Invocation, err error) error
	OnCooldown func(ctx context.Context, inv *domain.Invocation, remaining time.Duration) error
}

func DefaultHooks() Hooks {
	return Hooks{
		OnError:    replyError,
		OnDenied:   replyDenied,
		OnCooldown: replyCooldown,
	}
}

func (h Hooks) merge(over Hooks) Hooks {
	if over.OnError != nil {
		h.OnError = over.OnError
	}
	if over.OnDenied != nil {
		h.OnDenied = over.OnDenied
	}
	if over.OnCooldown != nil {
		h.OnCooldown = over.OnCooldown
	}
	return h
}

func ephemeral(ctx context.Context, ia *domain.Interaction, content string) error {
	if ia == nil || ia.Respond == nil {
		return ErrNoResponder
	}
	_, err := ia.Respond.Reply(ctx, domain.Message{Content: content, Ephemeral: true})
	return err
}

func replyError(ctx context.Context, ia *domain.Interaction, _ error) error {
	return ephemeral(ctx, ia, "⚠️ Ocurrió un error inesperado.")
}

func replyDenied(ctx context.Context, inv *domain.Invocation, _ error) error {
	return ephemeral(ctx, &inv.Interaction, "🔒 No tienes permisos para esta acción.")
}

func replyCooldown(ctx context.Context, inv *domain.Invocation, remaining time.Duration) error {
	return ephemeral(ctx, &inv.Interaction, fmt.Sprintf("⏳ Esperá %s antes de volver a usar este comando.", remaining.Round(time.Second)))
}

// lastResort cannot be overridden: it logs and reports to Sentry (a no-op
// when Sentry was never initialised).
func lastResort(ia *domain.Interaction, where string, err, hookErr error) {
	ev := log.Error().Err(err).Str("where", where)
	if hookErr != nil {
		ev = ev.AnErr("hook_err", hookErr)
	}
	var pe *session.PanicError
	if errors.As(err, &pe) {
		ev = ev.Bytes("stack", pe.Stack)
	}
	if ia != nil {
		ev = ev.Str("interaction", ia.ID).Str("user", ia.Actor.UserID).Str("guild", ia.Actor.GuildID)
	}
	ev.Msg("unhandled interaction error")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("where", where)
		if ia != nil {
			scope.SetUser(sentry.User{ID: ia.Actor.UserID})
			scope.SetTag("guild", ia.Actor.GuildID)
		}
		if hookErr != nil {
			scope.SetContext("hook", sentry.Context{"error": hookErr.Error()})
		}
		sentry.CaptureException(err)
	})
}
