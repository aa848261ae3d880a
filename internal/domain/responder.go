package domain

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Message is what a handler sends back.
type Message struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

// Modal is a modal dialog opened in response to an interaction.
type Modal struct {
	CustomID   string
	Title      string
	Components []discordgo.MessageComponent
}

// Responder answers one interaction. Implementations are bound to the
// interaction token they were created for.
type Responder interface {
	// Reply sends the first response (or a follow-up once the interaction was
	// already acknowledged) and returns the id of the message it created.
	Reply(ctx context.Context, msg Message) (string, error)
	// Defer acknowledges the interaction so the handler gets more time.
	Defer(ctx context.Context, ephemeral bool) error
	// Edit replaces the message the interaction originated from, or the
	// original response for slash commands.
	Edit(ctx context.Context, msg Message) error
	OpenModal(ctx context.Context, m Modal) error
	// Suggest answers an autocomplete request.
	Suggest(ctx context.Context, choices []*discordgo.ApplicationCommandOptionChoice) error
}
