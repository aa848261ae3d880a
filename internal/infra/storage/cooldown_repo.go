package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/slashkit/internal/app/cooldown"
)

// CooldownRepo guarda los cooldowns en postgres. Las filas sólo se borran
// con Prune (o el janitor), nunca desde el tracker.
type CooldownRepo struct{ db *sql.DB }

func NewCooldownRepo(db *sql.DB) *CooldownRepo { return &CooldownRepo{db: db} }

func (r *CooldownRepo) LastUsed(ctx context.Context, key cooldown.Key) (time.Time, bool, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx, `
SELECT last_used_at
FROM command_cooldowns
WHERE scope = $1 AND command = $2 AND subject = $3
`, key.Scope.String(), key.Command, key.Subject).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cooldown lookup %s: %w", key, err)
	}
	return at, true, nil
}

func (r *CooldownRepo) Record(ctx context.Context, key cooldown.Key, at time.Time, window time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO command_cooldowns (scope, command, subject, last_used_at, expires_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (scope, command, subject) DO UPDATE SET
  last_used_at = EXCLUDED.last_used_at,
  expires_at   = EXCLUDED.expires_at
`, key.Scope.String(), key.Command, key.Subject, at, at.Add(window))
	if err != nil {
		return fmt.Errorf("cooldown record %s: %w", key, err)
	}
	return nil
}

// Prune borra las filas vencidas. Sin scopes, poda todos.
func (r *CooldownRepo) Prune(ctx context.Context, scopes []string) (int64, error) {
	var arg any
	if len(scopes) > 0 {
		arg = pq.Array(scopes)
	}
	res, err := r.db.ExecContext(ctx, `
DELETE FROM command_cooldowns
WHERE expires_at < NOW()
  AND ($1::text[] IS NULL OR scope = ANY($1::text[]))
`, arg)
	if err != nil {
		return 0, fmt.Errorf("cooldown prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
