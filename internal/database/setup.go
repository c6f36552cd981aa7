package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"kiselgram-backend/internal/models"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	Sqlite Dialect = "sqlite"
	Mysql  Dialect = "mysql"
)

func setPragmaValues(db *sqlx.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(sugar *zap.SugaredLogger, db *sqlx.DB) error {
	var foreignKeysValue bool
	if err := db.Get(&foreignKeysValue, "PRAGMA foreign_keys"); err != nil {
		return err
	}

	var journalModeValue string
	if err := db.Get(&journalModeValue, "PRAGMA journal_mode"); err != nil {
		return err
	}

	var synchronousValue int
	if err := db.Get(&synchronousValue, "PRAGMA synchronous"); err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value is unsupported")
	}

	sugar.Infof("sqlite PRAGMA foreign_keys: %t, journal_mode: %s, synchronous: %s", foreignKeysValue, journalModeValue, synchronousValueStr)

	return nil
}

// OpenSqlite opens a sqlite database at path and applies the pragmas.
// Use ":memory:" for a throwaway database.
func OpenSqlite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	if err := setPragmaValues(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func mysqlDSN(cfg *models.ConfigFile) string {
	// multiStatements is needed by the migration files
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s&multiStatements=true", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase)
}

// Setup connects to the configured database and brings the schema up to date.
func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*sqlx.DB, Dialect, error) {
	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")

		db, err := OpenSqlite(cfg.SqlitePath)
		if err != nil {
			return nil, Sqlite, err
		}

		if err := readPragmaValues(sugar, db); err != nil {
			db.Close()
			return nil, Sqlite, err
		}

		if err := Migrate(db, Sqlite, sugar); err != nil {
			db.Close()
			return nil, Sqlite, err
		}

		return db, Sqlite, nil
	}

	sugar.Info("Connecting to database mysql/mariadb...")

	db, err := sqlx.Connect("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, Mysql, err
	}

	db.SetMaxOpenConns(10)

	if err := Migrate(db, Mysql, sugar); err != nil {
		db.Close()
		return nil, Mysql, err
	}

	return db, Mysql, nil
}

// IsUniqueViolation reports whether err comes from a unique or primary key
// constraint of either backend.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	return false
}

// Transaction runs fn inside a transaction and commits only when fn succeeds.
func Transaction(db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// LikePattern builds a substring pattern for
// LOWER(column) LIKE LOWER(?) ESCAPE '!'. Both sides are lowered by the
// database so stored text and query fold the same way.
func LikePattern(query string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"
}

// sqlite's built-in lower() only folds ASCII.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("lower", 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
