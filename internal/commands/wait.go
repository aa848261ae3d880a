package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/app/waiter"
	"github.com/jose-valero/slashkit/internal/domain"
)

const waitWindow = 30 * time.Second

// wait espera el próximo mensaje del mismo usuario en el mismo canal.
type wait struct{ session.Base }

func (w *wait) Execute(ctx context.Context, inv *domain.Invocation) error {
	from := inv.Actor
	if _, err := inv.Respond.Reply(ctx, domain.Message{
		Content: fmt.Sprintf("✍️ Escribe algo en este canal (tienes %ds).", int(waitWindow.Seconds())),
	}); err != nil {
		return err
	}
	rs := inv.Respond
	s := w.Session()

	_, err := session.Await(s,
		func(ev *domain.MessageEvent) bool {
			return ev.Actor.UserID == from.UserID && ev.Actor.ChannelID == from.ChannelID
		},
		func(ctx context.Context, ev *domain.MessageEvent) {
			if err := rs.Edit(ctx, domain.Message{Content: fmt.Sprintf("📨 Recibido: %q", ev.Content)}); err != nil {
				log.Warn().Err(err).Str("session", s.ID()).Msg("wait: edit failed")
			}
			s.End()
		},
		waiter.WithTimeout(waitWindow, func() {
			if err := rs.Edit(context.Background(), domain.Message{Content: "⌛ No llegó nada."}); err != nil {
				log.Warn().Err(err).Str("session", s.ID()).Msg("wait: edit failed")
			}
		}),
	)
	return err
}

func Wait() *dispatch.Command {
	return dispatch.NewCommand("wait").
		Describe(&discordgo.ApplicationCommand{Description: "Espera tu próximo mensaje en este canal"}).
		Timeout(waitWindow + 5*time.Second).
		Handle(func() session.Handler { return &wait{} })
}
