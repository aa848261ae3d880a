// Package commands es el set de comandos de ejemplo montado sobre el motor.
package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
)

type Deps struct {
	// AdminGuard protege /config; nil lo deja abierto.
	AdminGuard dispatch.Guard
	Settings   *Settings
}

// All devuelve los comandos listos para dispatch.Router.Register.
func All(d Deps) []*dispatch.Command {
	if d.Settings == nil {
		d.Settings = NewSettings()
	}
	return []*dispatch.Command{
		Ping(),
		Confirm(),
		Counter(),
		Config(d.Settings, d.AdminGuard),
		Wait(),
	}
}

func row(components ...discordgo.MessageComponent) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: components}}
}
