package pgstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationLogger adapts an ectologger.Logger to golang-migrate's Logger
// interface.
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) { l.Infof(format, v...) }

// Migrate runs every pending up migration found in the migrationsPath
// directory against db, logging progress the way the teacher's MigrationService does.
func Migrate(db *sql.DB, migrationsPath string, logger ectologger.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("pgstore: creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("pgstore: creating migrate instance: %w", err)
	}
	m.Log = migrationLogger{Logger: logger}

	start := time.Now()
	err = m.Up()
	logger.Infof("database migrations took %s", time.Since(start))

	if err == nil || err == migrate.ErrNoChange {
		logger.Info("no new migrations to apply")
		return nil
	}
	if strings.Contains(err.Error(), "no migration found for version") {
		logger.WithError(err).Warn("migration version mismatch, leaving database as-is")
		return nil
	}
	logger.WithError(err).Error("migration failed")
	return err
}
