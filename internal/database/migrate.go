package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// prefixEnv is substituted into the migration files by goose ENVSUB.
const prefixEnv = "TABLE_PREFIX"

// Migrate applies pending migrations for tables created with prefix.
// The version table is prefixed too, so several forums can share a database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, prefix string, logger *slog.Logger) error {
	if err := os.Setenv(prefixEnv, prefix); err != nil {
		return fmt.Errorf("set %s: %w", prefixEnv, err)
	}

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	store, err := goosedb.NewStore(goosedb.DialectPostgres, prefix+"groupsub_migrations")
	if err != nil {
		return fmt.Errorf("create migration store: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider("", db, fsys, goose.WithStore(store))
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	if len(results) == 0 {
		logger.Debug("schema up to date")
	}
	return nil
}
