package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/infra/logging"
)

// pruneExpired borra los cooldowns vencidos hace más de un minuto.
const pruneExpired = `
DELETE FROM command_cooldowns
WHERE expires_at < now() - INTERVAL '1 minute';`

func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := pool.Exec(cctx, pruneExpired)
	if err != nil {
		log.Error().Err(err).Msg("janitor: prune failed")
		return fmt.Sprintf("prune: %v", err), nil
	}
	log.Info().Int64("rows", tag.RowsAffected()).Msg("janitor: cooldowns pruned")
	return fmt.Sprintf("ok pruned=%d", tag.RowsAffected()), nil
}

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), false, os.Stdout)
	lambda.Start(handler)
}
