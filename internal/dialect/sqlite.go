package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/idmap/internal/model"
)

// SQLite renders SQL for github.com/mattn/go-sqlite3.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }

// ColumnType maps semantic types onto SQLite's storage classes. Declared
// lengths are kept for readability; SQLite does not enforce them.
func (SQLite) ColumnType(f model.FieldSpec) (string, error) {
	switch f.Type {
	case model.TypeInteger, model.TypeBoolean, model.TypeTimestamp:
		return "INTEGER", nil
	case model.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", f.MaxLength()), nil
	case model.TypeStringLong:
		return "TEXT", nil
	case model.TypeFloat:
		return "REAL", nil
	case model.TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", f.IntSetting("precision", 10), f.IntSetting("scale", 2)), nil
	case model.TypeBinary:
		return "BLOB", nil
	}
	return "", fmt.Errorf("sqlite: unsupported field type %q for %q", f.Type, f.Name)
}

func (SQLite) IndexLength(model.FieldSpec) int { return 0 }

func (d SQLite) CreateTable(t Table) []string {
	render := func(c Column) string {
		if c.AutoIncrement {
			return d.Quote(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
		}
		return columnSQL(d, c)
	}
	stmts := []string{createTableSQL(d, t, render, nil)}
	for _, idx := range t.Indexes {
		cols := make([]string, len(idx.Parts))
		for i, p := range idx.Parts {
			cols[i] = p.Column
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			d.Quote(indexName(t.Name, idx.Name)), d.Quote(t.Name), QuoteAll(d, cols)))
	}
	return stmts
}

func (d SQLite) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), columnSQL(d, c))
}

func (d SQLite) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

func (d SQLite) Upsert(table string, keyCols, cols, updateCols []string) string {
	colList, ph := upsertParts(d, cols)
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) ",
		d.Quote(table), colList, ph, QuoteAll(d, keyCols))
	if len(updateCols) == 0 {
		return stmt + "DO NOTHING"
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c))
	}
	return stmt + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// Truncate uses DELETE; SQLite has no TRUNCATE statement.
func (d SQLite) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

func (SQLite) TableExists(ctx context.Context, q Queryer, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

func (SQLite) ColumnExists(ctx context.Context, q Queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("column exists %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func (SQLite) IsUndefinedTable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrError && strings.Contains(se.Error(), "no such table")
	}
	return false
}

// IsInvalidValue is always false: SQLite compares mismatched types without
// raising an error.
func (SQLite) IsInvalidValue(error) bool { return false }

// openSQLite opens a SQLite database and applies the connection pragmas.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite only supports one writer at a time, so the pool holds a single
// connection. This also keeps ":memory:" databases alive for the pool's life.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return db, nil
}
