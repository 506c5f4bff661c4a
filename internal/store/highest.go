package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/idmap/internal/model"
)

// HighestID returns the largest first destination id recorded by this
// migration or any of its siblings, or 0 when none is recorded.
//
// The first destination id field must be an integer. Sibling map tables that
// do not exist are skipped.
func (s *Store) HighestID(ctx context.Context) (int64, error) {
	const op = "highest id"
	first := s.id.DestinationIDs[0]
	if first.Type != model.TypeInteger {
		return 0, s.failf(ErrCodeNonIntegerDestination, op,
			"destination id field %q is %s; highest id requires an integer", first.Name, first.Type)
	}
	if err := s.EnsureTables(ctx); err != nil {
		return 0, err
	}

	var highest int64
	for _, table := range s.familyMapTables() {
		if table != s.mapTable {
			exists, err := s.dialect.TableExists(ctx, s.db, table)
			if err != nil {
				return 0, s.storageErr(op, err)
			}
			if !exists {
				continue
			}
		}

		var top sql.NullInt64
		query := fmt.Sprintf("SELECT MAX(%s) FROM %s", s.q("destid1"), s.q(table))
		if err := s.db.QueryRowContext(ctx, query).Scan(&top); err != nil {
			if s.dialect.IsUndefinedTable(err) {
				continue
			}
			return 0, s.storageErr(op, err)
		}
		if top.Valid && top.Int64 > highest {
			highest = top.Int64
		}
	}
	return highest, nil
}

// familyMapTables returns this migration's map table followed by those of
// its siblings, without duplicates.
func (s *Store) familyMapTables() []string {
	tables := []string{s.mapTable}
	if s.siblings == nil {
		return tables
	}
	seen := map[string]bool{s.mapTable: true}
	for _, sib := range s.siblings.Siblings(s.id) {
		t := sib.MapTableName(s.prefix)
		if !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}
	return tables
}
