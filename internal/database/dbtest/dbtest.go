// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"kiselgram-backend/internal/database"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func New(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := database.OpenSqlite(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, database.Sqlite, zap.NewNop().Sugar()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	return db
}
