package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

const confirmWindow = 30 * time.Second

// confirm pregunta Sí/No; sólo quien invocó puede contestar.
type confirm struct {
	session.Base
	respond domain.Responder
}

func (c *confirm) Execute(ctx context.Context, inv *domain.Invocation) error {
	user := inv.Actor.UserID
	yes, err := c.Session().ComponentID("yes", user)
	if err != nil {
		return err
	}
	no, err := c.Session().ComponentID("no", user)
	if err != nil {
		return err
	}

	id, err := inv.Respond.Reply(ctx, domain.Message{
		Content: "¿Confirmás la acción?",
		Components: row(
			discordgo.Button{Label: "Sí", Style: discordgo.SuccessButton, CustomID: yes},
			discordgo.Button{Label: "No", Style: discordgo.DangerButton, CustomID: no},
		),
	})
	if err != nil {
		return err
	}
	c.respond = inv.Respond
	_, err = c.Session().ObserveButtons(id, session.WithAuthors(user), session.WithTimeout(confirmWindow))
	return err
}

func (c *confirm) OnButton(ctx context.Context, ev *domain.ButtonEvent) (bool, error) {
	text := "❌ Cancelado."
	if ev.Component == "yes" {
		text = "✅ Confirmado."
	}
	return true, ev.Respond.Edit(ctx, domain.Message{Content: text, Components: []discordgo.MessageComponent{}})
}

func (c *confirm) OnButtonTimeout(ctx context.Context) error {
	if c.respond == nil {
		return nil
	}
	return c.respond.Edit(ctx, domain.Message{Content: "⌛ Se acabó el tiempo.", Components: []discordgo.MessageComponent{}})
}

func Confirm() *dispatch.Command {
	return dispatch.NewCommand("confirm").
		Describe(&discordgo.ApplicationCommand{Description: "Pide confirmación con botones"}).
		Handle(func() session.Handler { return &confirm{} })
}
