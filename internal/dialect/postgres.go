package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/roach88/idmap/internal/model"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUndefinedTable            = "42P01"
	pgInvalidTextRepresentation = "22P02"
	pgNumericValueOutOfRange    = "22003"
	pgInvalidDatetimeFormat     = "22007"
	pgDatetimeFieldOverflow     = "22008"
)

// Postgres renders SQL for PostgreSQL through either github.com/lib/pq or
// the pgx stdlib driver.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// ColumnType maps semantic types; PostgreSQL has no unsigned or tiny
// integers, so those widen to the next signed type.
func (Postgres) ColumnType(f model.FieldSpec) (string, error) {
	switch f.Type {
	case model.TypeInteger:
		switch f.StringSetting("size", "normal") {
		case "tiny", "small":
			if f.BoolSetting("unsigned") {
				return "INTEGER", nil
			}
			return "SMALLINT", nil
		case "big":
			return "BIGINT", nil
		}
		if f.BoolSetting("unsigned") {
			return "BIGINT", nil
		}
		return "INTEGER", nil
	case model.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", f.MaxLength()), nil
	case model.TypeStringLong:
		return "TEXT", nil
	case model.TypeFloat:
		if f.StringSetting("size", "normal") == "big" {
			return "DOUBLE PRECISION", nil
		}
		return "REAL", nil
	case model.TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", f.IntSetting("precision", 10), f.IntSetting("scale", 2)), nil
	case model.TypeBoolean:
		return "SMALLINT", nil
	case model.TypeBinary:
		return "BYTEA", nil
	case model.TypeTimestamp:
		return "INTEGER", nil
	}
	return "", fmt.Errorf("postgres: unsupported field type %q for %q", f.Type, f.Name)
}

func (Postgres) IndexLength(model.FieldSpec) int { return 0 }

func (d Postgres) CreateTable(t Table) []string {
	render := func(c Column) string {
		if c.AutoIncrement {
			return d.Quote(c.Name) + " SERIAL PRIMARY KEY"
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

func (d Postgres) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", d.Quote(table), columnSQL(d, c))
}

func (d Postgres) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

func (d Postgres) Upsert(table string, keyCols, cols, updateCols []string) string {
	colList, ph := upsertParts(d, cols)
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		d.Quote(table), colList, ph, QuoteAll(d, keyCols))
	if len(updateCols) == 0 {
		return stmt + "DO NOTHING"
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", d.Quote(c), d.Quote(c))
	}
	return stmt + "DO UPDATE SET " + strings.Join(sets, ", ")
}

func (d Postgres) Truncate(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

func (Postgres) TableExists(ctx context.Context, q Queryer, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

func (Postgres) ColumnExists(ctx context.Context, q Queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
	`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("column exists %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

func (Postgres) IsUndefinedTable(err error) bool {
	return pgCode(err) == pgUndefinedTable
}

func (Postgres) IsInvalidValue(err error) bool {
	switch pgCode(err) {
	case pgInvalidTextRepresentation, pgNumericValueOutOfRange,
		pgInvalidDatetimeFormat, pgDatetimeFieldOverflow:
		return true
	}
	return false
}

// pgCode extracts the SQLSTATE from either driver's error type.
func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// openPostgres opens u with lib/pq, or with pgx when the scheme is "pgx".
func openPostgres(u *url.URL) (*sql.DB, error) {
	if u.Scheme == "pgx" {
		dsn := *u
		dsn.Scheme = "postgres"
		cfg, err := pgx.ParseConfig(dsn.String())
		if err != nil {
			return nil, fmt.Errorf("parse pgx config: %w", err)
		}
		return stdlib.OpenDB(*cfg), nil
	}
	connector, err := pq.NewConnector(u.String())
	if err != nil {
		return nil, fmt.Errorf("postgres connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}
