package storage

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	raw, err := fs.ReadFile(migrations, files[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "-- +goose Up")
	assert.Contains(t, string(raw), "command_cooldowns")
}

// contra un store real: Record y después LastUsed; sobrescribir deja el
// último uso
func exerciseStore(t *testing.T, store cooldown.Store) {
	t.Helper()
	ctx := context.Background()
	key := cooldown.Key{Scope: cooldown.PerUser, Command: "ping-" + time.Now().Format("150405.000000"), Subject: "42"}

	_, ok, err := store.LastUsed(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Now().Add(-time.Second).Truncate(time.Millisecond)
	require.NoError(t, store.Record(ctx, key, first, time.Minute))
	at, ok, err := store.LastUsed(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, first, at, time.Millisecond)

	second := first.Add(500 * time.Millisecond)
	require.NoError(t, store.Record(ctx, key, second, time.Minute))
	at, _, err = store.LastUsed(ctx, key)
	require.NoError(t, err)
	assert.WithinDuration(t, second, at, time.Millisecond)

	tr := cooldown.NewTracker(store)
	active, remaining, err := tr.IsActive(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Greater(t, remaining, 50*time.Second)
}

func TestCooldownRepoPostgres(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))

	repo := NewCooldownRepo(db)
	exerciseStore(t, repo)

	expired := cooldown.Key{Scope: cooldown.PerGuild, Command: "prune-me", Subject: "g1"}
	require.NoError(t, repo.Record(ctx, expired, time.Now().Add(-time.Hour), time.Minute))

	n, err := repo.Prune(ctx, []string{cooldown.PerChannel.String()})
	require.NoError(t, err)
	_, ok, err := repo.LastUsed(ctx, expired)
	require.NoError(t, err)
	assert.True(t, ok, "other scopes are left alone")

	n, err = repo.Prune(ctx, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	_, ok, err = repo.LastUsed(ctx, expired)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCooldowns(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := OpenRedis(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisCooldowns(client, "test-cooldown")
	exerciseStore(t, store)

	key := cooldown.Key{Scope: cooldown.Global, Command: "short", Subject: "*"}
	require.NoError(t, store.Record(context.Background(), key, time.Now(), 100*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, ok, err := store.LastUsed(context.Background(), key)
		return err == nil && !ok
	}, 2*time.Second, 50*time.Millisecond)
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}
