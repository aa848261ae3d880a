package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Register publica las definiciones de los comandos del motor y liga el id
// que Discord asigna a cada uno.
func (r *Router) Register() error {
	var defs []*discordgo.ApplicationCommand
	for _, c := range r.engine.Commands() {
		if d := c.Definition(); d != nil {
			defs = append(defs, d)
		}
	}
	appID := r.s.State.User.ID
	created, err := r.s.ApplicationCommandBulkOverwrite(appID, r.opts.GuildID, defs)
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return r.bind(created)
}

func (r *Router) bind(created []*discordgo.ApplicationCommand) error {
	for _, cmd := range created {
		if err := r.engine.BindCommandID(cmd.Name, cmd.ID); err != nil {
			return err
		}
		log.Debug().Str("command", cmd.Name).Str("id", cmd.ID).Msg("command bound")
	}
	log.Info().Int("commands", len(created)).Str("guild", r.opts.GuildID).Msg("commands registered")
	return nil
}
