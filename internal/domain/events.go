// Package domain holds the platform-neutral shapes the engine routes: the
// actor of an interaction, the inbound events and the responder port.
package domain

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Actor identifies who triggered the event and where.
type Actor struct {
	UserID    string
	ChannelID string
	GuildID   string
	// Shard is nil when the transport does not report it.
	Shard *int
}

// Event is implemented by every inbound event the engine knows about.
type Event interface {
	Source() Actor
}

// Component is implemented by follow-ups that come from a message component.
type Component interface {
	Event
	Message() string
	Custom() string
}

// Interaction carries what every interaction shares.
type Interaction struct {
	ID     string
	Actor  Actor
	Locale string
	// Respond is nil only in tests that never reply.
	Respond Responder
	Raw     *discordgo.InteractionCreate
}

func (i *Interaction) Source() Actor { return i.Actor }

// Invocation is a slash command call. Path holds the command name followed by
// the sub-command group and sub-command, when present.
type Invocation struct {
	Interaction
	CommandID string
	Path      []string
	Options   map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (v *Invocation) Name() string {
	if len(v.Path) == 0 {
		return ""
	}
	return v.Path[0]
}

// SubPath joins everything after the command name with "/".
func (v *Invocation) SubPath() string {
	if len(v.Path) < 2 {
		return ""
	}
	return strings.Join(v.Path[1:], "/")
}

func (v *Invocation) OptString(name string) (string, bool) {
	o, ok := v.Options[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionString {
		return "", false
	}
	return o.StringValue(), true
}

func (v *Invocation) OptInt(name string) (int64, bool) {
	o, ok := v.Options[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, false
	}
	return o.IntValue(), true
}

func (v *Invocation) OptBool(name string) (bool, bool) {
	o, ok := v.Options[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return o.BoolValue(), true
}

// ButtonEvent is a button click. Component is the decoded component id when
// the custom id carries a Global Interaction Id, the raw custom id otherwise.
type ButtonEvent struct {
	Interaction
	MessageID string
	CustomID  string
	Component string
	// Data is the bag of the observer that resolved the event, if any.
	Data map[string]any
}

func (e *ButtonEvent) Message() string { return e.MessageID }
func (e *ButtonEvent) Custom() string  { return e.CustomID }

// SelectEvent covers string and entity select menus.
type SelectEvent struct {
	Interaction
	MessageID string
	CustomID  string
	Component string
	Values    []string
	Data      map[string]any
}

func (e *SelectEvent) Message() string { return e.MessageID }
func (e *SelectEvent) Custom() string  { return e.CustomID }

// ModalEvent is a modal submission. Values maps text input custom ids to
// what the user typed.
type ModalEvent struct {
	Interaction
	CustomID  string
	Component string
	Values    map[string]string
	Data      map[string]any
}

// AutoCompleteEvent is an autocomplete request for the focused option.
type AutoCompleteEvent struct {
	Invocation
	Focused string
	Value   string
}

// MessageEvent is a plain message posted in a channel. The engine never
// routes it; it only reaches EventWaiter registrations.
type MessageEvent struct {
	Actor     Actor
	MessageID string
	Content   string
}

func (e *MessageEvent) Source() Actor { return e.Actor }
