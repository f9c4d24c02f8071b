// internal/records/migrate.go
package records

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/erilali/gameroom/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

func migratePostgres(databaseURL string, log *logger.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("load postgres migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create postgres migrator: %w", err)
	}
	defer m.Close()
	return up(m, "postgres", log)
}

// migrateSQLite runs the sqlite migrations over an open handle. The migrator is left unclosed
// because closing it closes db too.
func migrateSQLite(db *sql.DB, log *logger.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("load sqlite migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create sqlite migrator: %w", err)
	}
	return up(m, "sqlite", log)
}

func up(m *migrate.Migrate, name string, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read %s schema version: %w", name, err)
	}
	if dirty {
		log.Warnf("Schema of %s is dirty at version %d, forcing", name, version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("force %s schema version: %w", name, err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debugf("Schema of %s is up to date", name)
			return nil
		}
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	version, _, _ = m.Version()
	log.Infof("Migrated %s schema to version %d", name, version)
	return nil
}
