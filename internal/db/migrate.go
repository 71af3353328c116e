package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"jobmate/campaign-service/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Schema returns every up migration, in version order.
func Schema() string {
	return concat(".up.sql")
}

func concat(suffix string) string {
	names, _ := fs.Glob(migrationsFS, migrationsDir+"/*"+suffix)
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "-- %s\n%s\n", strings.TrimPrefix(name, migrationsDir+"/"), body)
	}
	return b.String()
}

// migrateURL rewrites a postgres:// URL for the pgx/v5 migrate driver.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, log logger.Logger) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		log.Warn("close migrator", logger.Error(err))
	}
}

// Migrate runs all pending up migrations. No pending migration is success.
func Migrate(databaseURL string, log logger.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No pending migrations")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("Migrations applied successfully")
	return nil
}

// MigrateDown rolls back steps migrations (default: 1).
func MigrateDown(databaseURL string, steps int, log logger.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if steps <= 0 {
		steps = 1
	}
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to rollback")
			return nil
		}
		return fmt.Errorf("rollback migrations: %w", err)
	}
	log.Info("Migrations rolled back successfully", logger.Int("steps", steps))
	return nil
}

// MigrationVersion reports the applied version. A fresh database is version 0.
func MigrationVersion(databaseURL string, log logger.Logger) (version uint, dirty bool, err error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m, log)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}
