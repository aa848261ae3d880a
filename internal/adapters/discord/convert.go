// conversión de eventos de discordgo a eventos del dominio
package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/domain"
)

func userOf(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func actorOf(s *discordgo.Session, i *discordgo.Interaction) domain.Actor {
	a := domain.Actor{UserID: userOf(i), ChannelID: i.ChannelID, GuildID: i.GuildID}
	if s != nil && s.ShardCount > 1 {
		shard := s.ShardID
		a.Shard = &shard
	}
	return a
}

func interactionOf(s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) domain.Interaction {
	return domain.Interaction{
		ID:      ic.ID,
		Actor:   actorOf(s, ic.Interaction),
		Locale:  string(ic.Locale),
		Respond: rs,
		Raw:     ic,
	}
}

// flatten baja por grupos y subcomandos armando el path e indexa el resto
// de las opciones por nombre.
func flatten(data discordgo.ApplicationCommandInteractionData) ([]string, map[string]*discordgo.ApplicationCommandInteractionDataOption, *discordgo.ApplicationCommandInteractionDataOption) {
	path := []string{data.Name}
	opts := data.Options
	for len(opts) > 0 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommand) {
		path = append(path, opts[0].Name)
		opts = opts[0].Options
	}
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	var focused *discordgo.ApplicationCommandInteractionDataOption
	for _, o := range opts {
		byName[o.Name] = o
		if o.Focused {
			focused = o
		}
	}
	return path, byName, focused
}

func invocationOf(s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) *domain.Invocation {
	data := ic.ApplicationCommandData()
	path, opts, _ := flatten(data)
	return &domain.Invocation{
		Interaction: interactionOf(s, ic, rs),
		CommandID:   data.ID,
		Path:        path,
		Options:     opts,
	}
}

func autoCompleteOf(s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) *domain.AutoCompleteEvent {
	data := ic.ApplicationCommandData()
	path, opts, focused := flatten(data)
	ev := &domain.AutoCompleteEvent{
		Invocation: domain.Invocation{
			Interaction: interactionOf(s, ic, rs),
			CommandID:   data.ID,
			Path:        path,
			Options:     opts,
		},
	}
	if focused != nil {
		ev.Focused = focused.Name
		if v, ok := focused.Value.(string); ok {
			ev.Value = v
		}
	}
	return ev
}

func messageIDOf(ic *discordgo.InteractionCreate) string {
	if ic.Message != nil {
		return ic.Message.ID
	}
	return ""
}

// componentOf devuelve un ButtonEvent o un SelectEvent según el tipo.
func componentOf(s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) domain.Component {
	data := ic.MessageComponentData()
	base := interactionOf(s, ic, rs)
	if data.ComponentType == discordgo.ButtonComponent {
		return &domain.ButtonEvent{
			Interaction: base,
			MessageID:   messageIDOf(ic),
			CustomID:    data.CustomID,
			Component:   data.CustomID,
		}
	}
	return &domain.SelectEvent{
		Interaction: base,
		MessageID:   messageIDOf(ic),
		CustomID:    data.CustomID,
		Component:   data.CustomID,
		Values:      data.Values,
	}
}

func modalOf(s *discordgo.Session, ic *discordgo.InteractionCreate, rs domain.Responder) *domain.ModalEvent {
	data := ic.ModalSubmitData()
	values := map[string]string{}
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if in, ok := rc.(*discordgo.TextInput); ok {
				values[in.CustomID] = in.Value
			}
		}
	}
	return &domain.ModalEvent{
		Interaction: interactionOf(s, ic, rs),
		CustomID:    data.CustomID,
		Component:   data.CustomID,
		Values:      values,
	}
}

func messageOf(m *discordgo.MessageCreate) *domain.MessageEvent {
	ev := &domain.MessageEvent{
		Actor:     domain.Actor{ChannelID: m.ChannelID, GuildID: m.GuildID},
		MessageID: m.ID,
		Content:   m.Content,
	}
	if m.Author != nil {
		ev.Actor.UserID = m.Author.ID
	}
	return ev
}
