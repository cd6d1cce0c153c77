// Command seed-db migrates the database and upserts users, shipping addresses
// and products from a JSON fixture file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/kickzhub/storefront/internal/app"
)

func main() {
	var (
		cfg          app.StorageConfig
		fixturesFile string
	)

	flag.StringVar(&cfg.Driver, "driver", app.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", "storefront.db", "SQLite database file")
	flag.StringVar(&fixturesFile, "fixtures", "db/seed/fixtures.json", "path to fixtures JSON file (.json or .json.gz)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Driver == app.DriverPostgres && cfg.DatabaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg, fixturesFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, cfg app.StorageConfig, fixturesFile string) error {
	lg.Info("Reading fixtures", zap.String("path", fixturesFile))
	fx, err := loadFixtures(fixturesFile, time.Now().UTC())
	if err != nil {
		return err
	}

	lg.Info("Connecting to database", zap.String("driver", cfg.Driver))
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() { _ = backend.Close() }()

	if err := backend.Seeder.Seed(ctx, fx.Users, fx.Addresses, fx.Products); err != nil {
		return errors.Wrap(err, "seed")
	}

	lg.Info("Upserted fixtures",
		zap.Int("users", len(fx.Users)),
		zap.Int("addresses", len(fx.Addresses)),
		zap.Int("products", len(fx.Products)),
	)
	return nil
}
