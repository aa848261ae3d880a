package discord

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/domain"
)

// responder implementa domain.Responder para una interacción concreta.
type responder struct {
	s     *discordgo.Session
	ic    *discordgo.InteractionCreate
	acked atomic.Bool
}

func newResponder(s *discordgo.Session, ic *discordgo.InteractionCreate) *responder {
	return &responder{s: s, ic: ic}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// webhook desconocido: la interacción todavía no tiene respuesta
func unknownWebhook(err error) bool {
	var reqErr *discordgo.RESTError
	return errors.As(err, &reqErr) && reqErr.Message != nil && reqErr.Message.Code == discordgo.ErrCodeUnknownWebhook
}

func (r *responder) respond(ctx context.Context, resp *discordgo.InteractionResponse) error {
	if err := r.s.InteractionRespond(r.ic.Interaction, resp, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	r.acked.Store(true)
	return nil
}

func (r *responder) Reply(ctx context.Context, msg domain.Message) (string, error) {
	if r.acked.Load() {
		m, err := r.s.FollowupMessageCreate(r.ic.Interaction, true, &discordgo.WebhookParams{
			Content:    msg.Content,
			Embeds:     msg.Embeds,
			Components: msg.Components,
			Flags:      flags(msg.Ephemeral),
		}, discordgo.WithContext(ctx))
		if err == nil {
			return m.ID, nil
		}
		// Fallback sólo si todavía no hay respuesta
		if !unknownWebhook(err) {
			log.Warn().Err(err).Str("interaction", r.ic.ID).Msg("followup failed")
			return "", err
		}
	}

	err := r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    msg.Content,
			Embeds:     msg.Embeds,
			Components: msg.Components,
			Flags:      flags(msg.Ephemeral),
		},
	})
	if err != nil {
		return "", err
	}
	m, err := r.s.InteractionResponse(r.ic.Interaction, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// Defer efímero (para trabajos >3s). En componentes difiere el update del
// mensaje.
func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	if r.acked.Load() {
		return nil
	}
	typ := discordgo.InteractionResponseDeferredChannelMessageWithSource
	if r.ic.Type == discordgo.InteractionMessageComponent {
		typ = discordgo.InteractionResponseDeferredMessageUpdate
	}
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: typ,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
}

func (r *responder) Edit(ctx context.Context, msg domain.Message) error {
	if !r.acked.Load() {
		typ := discordgo.InteractionResponseChannelMessageWithSource
		if r.ic.Type == discordgo.InteractionMessageComponent || r.ic.Type == discordgo.InteractionModalSubmit {
			typ = discordgo.InteractionResponseUpdateMessage
		}
		return r.respond(ctx, &discordgo.InteractionResponse{
			Type: typ,
			Data: &discordgo.InteractionResponseData{
				Content:    msg.Content,
				Embeds:     msg.Embeds,
				Components: msg.Components,
			},
		})
	}
	content := msg.Content
	_, err := r.s.InteractionResponseEdit(r.ic.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &msg.Embeds,
		Components: &msg.Components,
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) OpenModal(ctx context.Context, m domain.Modal) error {
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: m.Components,
		},
	})
}

func (r *responder) Suggest(ctx context.Context, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if len(choices) > 25 {
		choices = choices[:25]
	}
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

// ReplyEphemeral es el atajo usado fuera del motor (rate limit, errores).
func ReplyEphemeral(ctx context.Context, rs domain.Responder, content string) {
	if _, err := rs.Reply(ctx, domain.Message{Content: content, Ephemeral: true}); err != nil {
		log.Warn().Err(err).Msg("ReplyEphemeral error")
	}
}
