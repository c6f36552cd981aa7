package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration of the dialect. The migrator is not
// closed since that would close db as well.
func Migrate(db *sqlx.DB, dialect Dialect, sugar *zap.SugaredLogger) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("failed to create embed source driver instance: %w", err)
	}

	var dbDriver database.Driver
	switch dialect {
	case Sqlite:
		dbDriver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	case Mysql:
		dbDriver, err = migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	default:
		return fmt.Errorf("unknown database dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", dialect, err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, string(dialect), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			sugar.Debug("No database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	sugar.Infof("Database migrated to version %d", version)

	return nil
}
