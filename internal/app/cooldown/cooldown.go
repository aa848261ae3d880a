// Package cooldown rate-limits repeated command invocations along a scope
// (user, channel, guild, shard, global or a combination).
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jose-valero/slashkit/internal/domain"
)

type Scope int

const (
	PerUser Scope = iota
	PerChannel
	PerUserChannel
	PerGuild
	PerUserGuild
	PerShard
	PerUserShard
	Global
)

var scopeNames = [...]string{
	PerUser:        "user",
	PerChannel:     "channel",
	PerUserChannel: "user_channel",
	PerGuild:       "guild",
	PerUserGuild:   "user_guild",
	PerShard:       "shard",
	PerUserShard:   "user_shard",
	Global:         "global",
}

func (s Scope) String() string {
	if s < 0 || int(s) >= len(scopeNames) {
		return "scope(" + strconv.Itoa(int(s)) + ")"
	}
	return scopeNames[s]
}

var ErrUnknownScope = errors.New("unknown cooldown scope")

func ParseScope(name string) (Scope, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range scopeNames {
		if n == name {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScope, name)
}

// Key identifies one cooldown entry.
type Key struct {
	Scope   Scope
	Command string
	Subject string
}

func (k Key) String() string {
	return k.Scope.String() + ":" + k.Command + ":" + k.Subject
}

// KeyFor builds the key for scope. Guild scopes fall back to the channel when
// the interaction happened outside a guild (DMs); shard scopes fall back to
// the guild variant when the transport does not report a shard.
func KeyFor(scope Scope, command string, a domain.Actor) Key {
	switch {
	case scope == PerShard && a.Shard == nil:
		scope = PerGuild
	case scope == PerUserShard && a.Shard == nil:
		scope = PerUserGuild
	}
	switch {
	case scope == PerGuild && a.GuildID == "":
		scope = PerChannel
	case scope == PerUserGuild && a.GuildID == "":
		scope = PerUserChannel
	}

	k := Key{Scope: scope, Command: command}
	switch scope {
	case PerUser:
		k.Subject = a.UserID
	case PerChannel:
		k.Subject = a.ChannelID
	case PerUserChannel:
		k.Subject = a.UserID + "/" + a.ChannelID
	case PerGuild:
		k.Subject = a.GuildID
	case PerUserGuild:
		k.Subject = a.UserID + "/" + a.GuildID
	case PerShard:
		k.Subject = strconv.Itoa(*a.Shard)
	case PerUserShard:
		k.Subject = a.UserID + "/" + strconv.Itoa(*a.Shard)
	}
	return k
}

// Store keeps the last use of every key. window is a hint for backends that
// expire entries on their own.
type Store interface {
	LastUsed(ctx context.Context, key Key) (time.Time, bool, error)
	Record(ctx context.Context, key Key, at time.Time, window time.Duration) error
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// IsActive reports whether key was used less than window ago and how long is
// left.
func (t *Tracker) IsActive(ctx context.Context, key Key, window time.Duration) (bool, time.Duration, error) {
	if window <= 0 {
		return false, 0, nil
	}
	last, ok, err := t.store.LastUsed(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("cooldown %s: %w", key, err)
	}
	if !ok {
		return false, 0, nil
	}
	remain := last.Add(window).Sub(t.now())
	if remain <= 0 {
		return false, 0, nil
	}
	return true, remain, nil
}

func (t *Tracker) RecordUse(ctx context.Context, key Key, window time.Duration) error {
	if err := t.store.Record(ctx, key, t.now(), window); err != nil {
		return fmt.Errorf("cooldown %s: %w", key, err)
	}
	return nil
}
