package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/domain"
)

const modalWindow = 2 * time.Minute

func ephemeral(ctx context.Context, rs domain.Responder, content string) error {
	_, err := rs.Reply(ctx, domain.Message{Content: content, Ephemeral: true})
	return err
}

// ---------- /config set ----------

type configSet struct {
	session.Base
	settings *Settings
}

func (c *configSet) Execute(ctx context.Context, inv *domain.Invocation) error {
	key, _ := inv.OptString("key")
	if !slices.Contains(configKeys, key) {
		return ephemeral(ctx, inv.Respond, fmt.Sprintf("❌ Key desconocida `%s`.", key))
	}
	user := inv.Actor.UserID
	customID, err := c.Session().ComponentID("value", user)
	if err != nil {
		return err
	}
	if _, err := c.Session().ObserveModal(user,
		session.WithData(map[string]any{"key": key}),
		session.WithTimeout(modalWindow),
	); err != nil {
		return err
	}
	current, _ := c.settings.Get(inv.Actor.GuildID, key)
	return inv.Respond.OpenModal(ctx, domain.Modal{
		CustomID: customID,
		Title:    "Configurar " + key,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID: "value",
					Label:    key,
					Style:    discordgo.TextInputShort,
					Value:    current,
					Required: true,
				},
			}},
		},
	})
}

func (c *configSet) OnModal(ctx context.Context, ev *domain.ModalEvent) (bool, error) {
	key, _ := ev.Data["key"].(string)
	value := strings.TrimSpace(ev.Values["value"])
	if key == "" || value == "" {
		return true, ephemeral(ctx, ev.Respond, "❌ Valor vacío, no cambié nada.")
	}
	c.settings.Set(ev.Actor.GuildID, key, value)
	return true, ephemeral(ctx, ev.Respond, fmt.Sprintf("✅ `%s` = `%s`", key, value))
}

func (c *configSet) OnAutoComplete(ctx context.Context, option string, ev *domain.AutoCompleteEvent) error {
	if option != "key" {
		return ev.Respond.Suggest(ctx, nil)
	}
	prefix := strings.ToLower(ev.Value)
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, k := range configKeys {
		if strings.HasPrefix(k, prefix) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: k, Value: k})
		}
	}
	return ev.Respond.Suggest(ctx, choices)
}

// ---------- /config show ----------

type configShow struct {
	session.Base
	settings *Settings
}

func (c *configShow) Execute(ctx context.Context, inv *domain.Invocation) error {
	defer c.Session().End()
	guild := inv.Actor.GuildID

	var b strings.Builder
	for _, kv := range c.settings.All(guild) {
		fmt.Fprintf(&b, "• `%s` = `%s`\n", kv[0], kv[1])
	}
	if b.Len() == 0 {
		b.WriteString("_sin valores_")
	}
	roles := "_ninguno_"
	if ids := c.settings.Roles(guild); len(ids) > 0 {
		mentions := make([]string, len(ids))
		for i, id := range ids {
			mentions[i] = "<@&" + id + ">"
		}
		roles = strings.Join(mentions, " ")
	}

	_, err := inv.Respond.Reply(ctx, domain.Message{
		Ephemeral: true,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "⚙️ Configuración",
			Description: b.String(),
			Fields:      []*discordgo.MessageEmbedField{{Name: "Roles", Value: roles}},
		}},
	})
	return err
}

// ---------- /config role add ----------

type configRoleAdd struct {
	session.Base
	settings *Settings
}

func (c *configRoleAdd) Execute(ctx context.Context, inv *domain.Invocation) error {
	defer c.Session().End()
	opt, ok := inv.Options["role"]
	if !ok {
		return ephemeral(ctx, inv.Respond, "❌ Falta el rol.")
	}
	roleID := fmt.Sprint(opt.Value)
	if !c.settings.AddRole(inv.Actor.GuildID, roleID) {
		return ephemeral(ctx, inv.Respond, "ℹ️ Ese rol ya estaba.")
	}
	return ephemeral(ctx, inv.Respond, fmt.Sprintf("✅ Rol <@&%s> agregado.", roleID))
}

func configFallback(ctx context.Context, inv *domain.Invocation) error {
	return ephemeral(ctx, inv.Respond, "Usa `/config set`, `/config show` o `/config role add`.")
}

var configDefinition = &discordgo.ApplicationCommand{
	Description: "Configuración del servidor",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "set",
			Description: "Cambia un valor",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "key",
				Description:  "Qué valor cambiar",
				Required:     true,
				Autocomplete: true,
			}},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "show",
			Description: "Muestra la configuración",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
			Name:        "role",
			Description: "Roles del servidor",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Agrega un rol",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Rol",
					Required:    true,
				}},
			}},
		},
	},
}

// Config arma /config; guard puede ser nil.
func Config(settings *Settings, guard dispatch.Guard) *dispatch.Command {
	c := dispatch.NewCommand("config").
		Describe(configDefinition).
		Sub("set", func() session.Handler { return &configSet{settings: settings} }).
		Sub("show", func() session.Handler { return &configShow{settings: settings} }).
		SubIn("role", "add", func() session.Handler { return &configRoleAdd{settings: settings} }).
		Fallback(configFallback)
	if guard != nil {
		c.Guard(guard)
	}
	return c
}
