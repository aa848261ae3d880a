package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

type ping struct{ session.Base }

func (p *ping) Execute(ctx context.Context, inv *domain.Invocation) error {
	_, err := inv.Respond.Reply(ctx, domain.Message{Content: "🏓 Pong!", Ephemeral: true})
	if err != nil {
		return err
	}
	p.Session().End()
	return nil
}

func Ping() *dispatch.Command {
	return dispatch.NewCommand("ping").
		Describe(&discordgo.ApplicationCommand{Description: "Responde pong (cooldown de 5s por usuario)"}).
		Handle(func() session.Handler { return &ping{} }).
		Cooldown(cooldown.PerUser, 5*time.Second)
}
