package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// ProcessedCount returns the number of map rows.
func (s *Store) ProcessedCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "processed count", s.mapTable)
}

// ImportedCount returns the number of rows that are IMPORTED or NEEDS_UPDATE.
func (s *Store) ImportedCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "imported count", s.mapTable, model.StatusImported, model.StatusNeedsUpdate)
}

// UpdateCount returns the number of rows that are NEEDS_UPDATE.
func (s *Store) UpdateCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "update count", s.mapTable, model.StatusNeedsUpdate)
}

// ErrorCount returns the number of rows that are FAILED.
func (s *Store) ErrorCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "error count", s.mapTable, model.StatusFailed)
}

// MessageCount returns the number of messages.
func (s *Store) MessageCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "message count", s.messageTable)
}

// count counts rows of table, optionally restricted to statuses. Counters
// never create tables: a table that does not exist counts as empty.
func (s *Store) count(ctx context.Context, op, table string, statuses ...model.Status) (int64, error) {
	b := s.newBinder()
	query := "SELECT COUNT(*) FROM " + s.q(table)
	if len(statuses) > 0 {
		ph := make([]string, len(statuses))
		for i, st := range statuses {
			ph[i] = b.bind(int(st))
		}
		query += fmt.Sprintf(" WHERE %s IN (%s)", s.q(colStatus), strings.Join(ph, ", "))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&n); err != nil {
		if s.dialect.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, s.storageErr(op, err)
	}
	return n, nil
}
