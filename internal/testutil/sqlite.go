package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/idmap/internal/dialect"
)

// OpenSQLite opens a fresh SQLite database under t.TempDir() and closes it
// when the test ends.
func OpenSQLite(t *testing.T) (*sql.DB, dialect.Dialect) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idmap.db")
	db, d, err := dialect.Open(context.Background(), "sqlite://"+path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, d
}
