package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/remote-connectors/pkg/bootstrap"
	"github.com/morezero/remote-connectors/pkg/methods"
)

const seedServicesLogPrefix = "db:seed_services"

// SeedServices writes the endpoints and session grants of cfg into service_uris and
// sessions. Idempotent: existing rows are updated in place.
func SeedServices(ctx context.Context, pool *pgxpool.Pool, cfg *bootstrap.ServicesConfig) error {
	if cfg == nil {
		slog.Info(fmt.Sprintf("%s - no services config to seed", seedServicesLogPrefix))
		return nil
	}
	slog.Info(fmt.Sprintf("%s - seeding %s", seedServicesLogPrefix, cfg.Name))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin tx: %w", seedServicesLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	upsert := func(subjectID, key string, ep bootstrap.Endpoint) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO service_uris (subject_id, service_key, uri, priority, version)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (subject_id, service_key, uri) DO UPDATE SET
			   priority = EXCLUDED.priority,
			   version = EXCLUDED.version,
			   modified = NOW()`,
			subjectID, key, ep.URI, ep.Priority, ep.Version)
		if err != nil {
			return fmt.Errorf("%s - upsert %s %s: %w", seedServicesLogPrefix, key, ep.URI, err)
		}
		return nil
	}

	count := 0
	for _, key := range sortedKeys(cfg.Services) {
		for _, ep := range cfg.Services[key] {
			if err := upsert("", key, ep); err != nil {
				return err
			}
			count++
		}
	}
	for _, subject := range sortedKeys(cfg.Subjects) {
		services := cfg.Subjects[subject]
		for _, key := range sortedKeys(services) {
			for _, ep := range services[key] {
				if err := upsert(subject, key, ep); err != nil {
					return err
				}
				count++
			}
		}
	}

	for _, id := range sortedKeys(cfg.Sessions) {
		grant := cfg.Sessions[id]
		level, err := methods.ParseThreatLevel(grant.ThreatLevel)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - skip session %s: %v", seedServicesLogPrefix, id, err))
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO sessions (session_id, user_id, threat_level)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id) DO UPDATE SET
			   user_id = EXCLUDED.user_id,
			   threat_level = EXCLUDED.threat_level`,
			id, grant.UserID, int(level))
		if err != nil {
			return fmt.Errorf("%s - upsert session %s: %w", seedServicesLogPrefix, id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit: %w", seedServicesLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - seeded %d endpoints and %d sessions", seedServicesLogPrefix, count, len(cfg.Sessions)))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
