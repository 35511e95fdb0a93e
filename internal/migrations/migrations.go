// Package migrations applies the embedded PostgreSQL schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed *.sql
var MigrationFiles embed.FS

// Run applies pending migrations. A dirty version left by an interrupted run is
// forced clean first. With autoMigrate false it only reports the current version
// and leaves the migration state untouched.
func Run(db *sql.DB, autoMigrate bool, logger zerolog.Logger) error {
	sourceDriver, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return apply(m, autoMigrate, logger)
}

// migrator is the part of *migrate.Migrate that apply drives.
type migrator interface {
	Version() (uint, bool, error)
	Force(version int) error
	Up() error
}

func apply(m migrator, autoMigrate bool, logger zerolog.Logger) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if !autoMigrate {
		if dirty {
			logger.Warn().
				Uint("version", version).
				Msg("Database is in dirty state - run migrate to recover")
		}
		logger.Info().
			Uint("current_version", version).
			Bool("dirty", dirty).
			Msg("Auto-migration disabled, skipping migrations")
		return nil
	}

	if dirty {
		logger.Warn().
			Uint("version", version).
			Msg("Database is in dirty state - forcing current version")

		// Migrations use IF NOT EXISTS, so re-applying a forced version is harmless.
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
	}

	logger.Info().Uint("current_version", version).Msg("Running database migrations")

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Uint("version", version).Msg("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}

	logger.Info().
		Uint("from_version", version).
		Uint("to_version", newVersion).
		Msg("Database migrations completed")

	return nil
}
