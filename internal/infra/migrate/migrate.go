// Package migrate brings the credential store schema up to date at startup.
package migrate

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	migrationsFS "github.com/Miraines/MoonyAndStarry/auth-gateway/scripts/db/migrations"
)

// MigrationsTable keeps this service's history apart from other schemas
// sharing the database.
const MigrationsTable = "auth_schema_migrations"

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS.FS, ".")
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	return src, nil
}

// Up applies pending migrations and logs the resulting version. A dirty
// schema is reported, never forced.
func Up(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	src, err := newSource()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "migration instance")
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("schema already current")
	case err != nil:
		return errors.Wrap(err, "apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, "read schema version")
	}
	if dirty {
		return errors.Errorf("schema version %d is dirty", version)
	}
	logger.Info("schema migrated", zap.Uint("version", version))
	return nil
}
