package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAll truncates every connector table. The schema is kept.
func ClearAll(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing connector tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE service_uris, sessions, avatars, user_infos`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connector tables cleared", clearLogPrefix))
	return nil
}
