package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

const counterPrefix = "Contador: "

// counter guarda el estado en el propio mensaje, así sobrevive reinicios.
type counter struct{ session.Base }

func counterMessage(n int, inc, reset string) domain.Message {
	return domain.Message{
		Content: fmt.Sprintf("%s%d", counterPrefix, n),
		Components: row(
			discordgo.Button{Label: "+1", Style: discordgo.PrimaryButton, CustomID: inc},
			discordgo.Button{Label: "Reset", Style: discordgo.SecondaryButton, CustomID: reset},
		),
	}
}

func (c *counter) ids() (string, string, error) {
	inc, err := c.Session().ComponentID("inc", "")
	if err != nil {
		return "", "", err
	}
	reset, err := c.Session().ComponentID("reset", "")
	return inc, reset, err
}

func (c *counter) Execute(ctx context.Context, inv *domain.Invocation) error {
	inc, reset, err := c.ids()
	if err != nil {
		return err
	}
	_, err = inv.Respond.Reply(ctx, counterMessage(0, inc, reset))
	return err
}

func parseCount(content string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(content, counterPrefix))
	if err != nil {
		return 0
	}
	return n
}

func (c *counter) OnButton(ctx context.Context, ev *domain.ButtonEvent) (bool, error) {
	n := 0
	if ev.Raw != nil && ev.Raw.Message != nil {
		n = parseCount(ev.Raw.Message.Content)
	}
	switch ev.Component {
	case "inc":
		n++
	case "reset":
		n = 0
	default:
		return false, nil
	}
	inc, reset, err := c.ids()
	if err != nil {
		return true, err
	}
	return true, ev.Respond.Edit(ctx, counterMessage(n, inc, reset))
}

func Counter() *dispatch.Command {
	return dispatch.NewCommand("counter").
		Describe(&discordgo.ApplicationCommand{Description: "Contador compartido que sobrevive reinicios"}).
		Persistent().
		Handle(func() session.Handler { return &counter{} })
}
