// Package dialect hides the differences between the SQL engines an id map can
// live in: identifier quoting, placeholders, column types, upserts, catalog
// introspection and error classification.
//
// The store builds every statement through a Dialect, so the same map table
// layout is produced on SQLite, MySQL and PostgreSQL.
package dialect

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// Queryer is the subset of *sql.DB and *sql.Tx used for introspection.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Column describes one column of a table to create.
type Column struct {
	Name string
	Type string

	NotNull bool

	// Default is a SQL literal ("0", "''"); empty means no default.
	Default string

	// AutoIncrement makes the column an auto-incrementing integer primary key.
	// Type is ignored for such columns.
	AutoIncrement bool
}

// IndexPart is one indexed column. Length is a key prefix length and is
// only honoured by engines that need one.
type IndexPart struct {
	Column string
	Length int
}

// Index is a non-unique secondary index.
type Index struct {
	Name  string
	Parts []IndexPart
}

// Table is a table definition rendered by CreateTable.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Indexes    []Index
}

// Dialect renders SQL for one storage engine.
type Dialect interface {
	// Name returns the engine name: "sqlite", "mysql" or "postgres".
	Name() string

	// Quote quotes an identifier.
	Quote(ident string) string

	// Placeholder returns the bind parameter marker for the n-th (1-based)
	// argument.
	Placeholder(n int) string

	// ColumnType maps a semantic field type to a native column type.
	ColumnType(f model.FieldSpec) (string, error)

	// IndexLength returns the key prefix length needed to index f, or 0.
	IndexLength(f model.FieldSpec) int

	// CreateTable returns the statements creating t and its indexes. All
	// statements are safe to run against an existing table.
	CreateTable(t Table) []string

	// AddColumn returns an ALTER TABLE statement adding c to table.
	AddColumn(table string, c Column) string

	// DropTable returns a DROP TABLE IF EXISTS statement.
	DropTable(table string) string

	// Upsert returns an insert of cols that updates updateCols when a row
	// with the same keyCols already exists.
	Upsert(table string, keyCols, cols, updateCols []string) string

	// Truncate returns a statement removing every row of table.
	Truncate(table string) string

	// TableExists reports whether table exists in the current schema.
	TableExists(ctx context.Context, q Queryer, table string) (bool, error)

	// ColumnExists reports whether table has column.
	ColumnExists(ctx context.Context, q Queryer, table, column string) (bool, error)

	// IsUndefinedTable reports whether err was caused by a missing table.
	IsUndefinedTable(err error) bool

	// IsInvalidValue reports whether err was caused by a bound value that
	// the engine could not convert to the column type.
	IsInvalidValue(err error) bool
}

// QuoteAll quotes every identifier and joins them with ", ".
func QuoteAll(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = d.Quote(id)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders returns n placeholders starting at position from, joined with ", ".
func Placeholders(d Dialect, from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

// columnSQL renders the shared "name TYPE [NOT NULL] [DEFAULT x]" form.
func columnSQL(d Dialect, c Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.Type)
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

// createTableSQL renders CREATE TABLE IF NOT EXISTS with one column per line.
// render formats a single column; extra lines (inline indexes) are appended
// after the primary key.
func createTableSQL(d Dialect, t Table, render func(Column) string, extra []string) string {
	lines := make([]string, 0, len(t.Columns)+1+len(extra))
	hasAuto := false
	for _, c := range t.Columns {
		if c.AutoIncrement {
			hasAuto = true
		}
		lines = append(lines, render(c))
	}
	if len(t.PrimaryKey) > 0 && !hasAuto {
		lines = append(lines, "PRIMARY KEY ("+QuoteAll(d, t.PrimaryKey)+")")
	}
	lines = append(lines, extra...)

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(lines, ",\n  "))
	b.WriteString("\n)")
	return b.String()
}

// indexName derives a schema-unique index name for engines where index names
// share one namespace. Names over the identifier limit keep a readable
// prefix and end in a digest of the full name.
func indexName(table, name string) string {
	full := table + "__" + name + "__idx"
	if len(full) <= model.MaxTableNameLength {
		return full
	}
	sum := sha256.Sum256([]byte(full))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	return full[:model.MaxTableNameLength-len(suffix)] + suffix
}

// upsertParts returns the quoted column list and placeholder list shared by
// all upsert renderings.
func upsertParts(d Dialect, cols []string) (string, string) {
	return QuoteAll(d, cols), Placeholders(d, 1, len(cols))
}
