package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
)

// OpenRedis parsea una URL redis:// y hace ping.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// RedisCooldowns guarda el último uso en unix millis, con una key que
// expira junto con la ventana.
type RedisCooldowns struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCooldowns(client redis.UniversalClient, prefix string) *RedisCooldowns {
	if prefix == "" {
		prefix = "cooldown"
	}
	return &RedisCooldowns{client: client, prefix: prefix}
}

func (r *RedisCooldowns) key(k cooldown.Key) string { return r.prefix + ":" + k.String() }

func (r *RedisCooldowns) LastUsed(ctx context.Context, k cooldown.Key) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, r.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cooldown get %s: %w", k, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cooldown value %q: %w", raw, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (r *RedisCooldowns) Record(ctx context.Context, k cooldown.Key, at time.Time, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(k), at.UnixMilli(), window).Err(); err != nil {
		return fmt.Errorf("cooldown set %s: %w", k, err)
	}
	return nil
}
