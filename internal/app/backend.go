package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/storage"
	"github.com/kickzhub/storefront/internal/storage/postgres"
	"github.com/kickzhub/storefront/internal/storage/sqlite"
)

// OpenBackend connects to the configured database and applies the schema.
func OpenBackend(ctx context.Context, cfg StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return storage.Backend{}, errors.Wrap(err, "open sqlite")
		}
		return store.Backend(), nil
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return storage.Backend{}, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return storage.Backend{}, errors.Wrap(err, "run migrations")
		}
		return postgres.NewStore(pool).Backend(), nil
	default:
		return storage.Backend{}, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
