package store

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate
	"go.uber.org/zap"

	"github.com/rorocorp/uns/store/migrations"
)

// runMigrations applies every pending migration to dsn. golang-migrate
// tracks the applied version in its own schema_migrations table and takes
// a PostgreSQL advisory lock for the duration, so concurrent callers
// (spec §4.2: "migrations run at startup and are idempotent") never race.
//
// Grounded on marmos91-dittofs's pkg/store/metadata/postgres/migrate.go.
func runMigrations(dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("store: open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "uns",
	})
	if err != nil {
		return fmt.Errorf("store: postgres migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case err == migrate.ErrNilVersion:
		log.Info("no migrations applied yet")
	case err != nil:
		return fmt.Errorf("store: migration version: %w", err)
	default:
		log.Info("schema at version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		if dirty {
			log.Warn("schema is in a dirty state, manual intervention required")
		}
	}
	return nil
}
