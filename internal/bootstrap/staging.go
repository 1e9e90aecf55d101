// Package bootstrap builds the shared infrastructure the binaries wire
// together from a config.Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/dvloznov/expense-tracker/internal/staging/inmemory"
	stagingpg "github.com/dvloznov/expense-tracker/internal/staging/postgres"
	"github.com/dvloznov/expense-tracker/internal/staging/redisstore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenStaging returns the staging store selected by cfg.StagingBackend and a
// function releasing its resources. pool is only used by the postgres
// backend and may be nil otherwise.
func OpenStaging(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (staging.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StagingBackend {
	case config.StagingMemory, "":
		return inmemory.NewStore(cfg.StagingTTL), noop, nil
	case config.StagingRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenStaging: %w", err)
		}
		return redisstore.NewStore(client, cfg.StagingTTL), client.Close, nil
	case config.StagingPostgres:
		if pool == nil {
			return nil, nil, fmt.Errorf("OpenStaging: postgres backend needs a database pool")
		}
		return stagingpg.NewStore(pool, cfg.StagingTTL), noop, nil
	default:
		return nil, nil, fmt.Errorf("OpenStaging: unknown backend %q", cfg.StagingBackend)
	}
}
