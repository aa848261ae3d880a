package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/slashkit/internal/domain"
)

func TestKeyFor(t *testing.T) {
	shard := 3
	full := domain.Actor{UserID: "42", ChannelID: "c1", GuildID: "g1", Shard: &shard}
	dm := domain.Actor{UserID: "42", ChannelID: "dm1"}
	noShard := domain.Actor{UserID: "42", ChannelID: "c1", GuildID: "g1"}

	tests := []struct {
		name  string
		scope Scope
		actor domain.Actor
		want  Key
	}{
		{"user", PerUser, full, Key{PerUser, "ping", "42"}},
		{"channel", PerChannel, full, Key{PerChannel, "ping", "c1"}},
		{"user channel", PerUserChannel, full, Key{PerUserChannel, "ping", "42/c1"}},
		{"guild", PerGuild, full, Key{PerGuild, "ping", "g1"}},
		{"user guild", PerUserGuild, full, Key{PerUserGuild, "ping", "42/g1"}},
		{"shard", PerShard, full, Key{PerShard, "ping", "3"}},
		{"user shard", PerUserShard, full, Key{PerUserShard, "ping", "42/3"}},
		{"global", Global, full, Key{Global, "ping", ""}},
		{"guild in dm falls back to channel", PerGuild, dm, Key{PerChannel, "ping", "dm1"}},
		{"user guild in dm falls back to user channel", PerUserGuild, dm, Key{PerUserChannel, "ping", "42/dm1"}},
		{"shard unknown falls back to guild", PerShard, noShard, Key{PerGuild, "ping", "g1"}},
		{"user shard unknown falls back to user guild", PerUserShard, noShard, Key{PerUserGuild, "ping", "42/g1"}},
		{"shard unknown in dm falls back to channel", PerShard, dm, Key{PerChannel, "ping", "dm1"}},
		{"user shard unknown in dm falls back to user channel", PerUserShard, dm, Key{PerUserChannel, "ping", "42/dm1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyFor(tt.scope, "ping", tt.actor))
		})
	}
}

func TestParseScope(t *testing.T) {
	for s := PerUser; s <= Global; s++ {
		got, err := ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseScope("planet")
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	store := NewMemoryStore()
	tr := NewTracker(store)
	tr.now = func() time.Time { return now }

	key := Key{PerUser, "ping", "42"}

	active, _, err := tr.IsActive(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, active, "never used")

	require.NoError(t, tr.RecordUse(ctx, key, 10*time.Second))

	now = now.Add(4 * time.Second)
	active, remain, err := tr.IsActive(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 6*time.Second, remain)

	other, _, err := tr.IsActive(ctx, Key{PerUser, "ping", "7"}, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, other, "other users are not affected")

	now = now.Add(6 * time.Second)
	active, _, err = tr.IsActive(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, active, "window elapsed")

	active, _, err = tr.IsActive(ctx, key, 0)
	require.NoError(t, err)
	assert.False(t, active, "no window, no cooldown")
	assert.Equal(t, 1, store.Len())
}
