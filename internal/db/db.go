// Package db opens the configured datastore backend.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"agency-tracker/internal/config"
	"agency-tracker/pkg/datastore"
)

// Connect opens a pgx pool and checks that the server answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Open returns the store named by cfg.Driver. Callers own the store and
// must Close it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (datastore.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return datastore.NewPgStore(pool), nil
	case config.DriverSQLite:
		s, err := datastore.OpenSQLite(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return datastore.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenAndMigrate opens the store and ensures its schema exists.
func OpenAndMigrate(ctx context.Context, cfg config.DatabaseConfig) (datastore.Store, error) {
	s, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}
