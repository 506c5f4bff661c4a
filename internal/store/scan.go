package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// mapRowColumns lists the map table columns read into a model.MapRow, in scan
// order.
func (s *Store) mapRowColumns(alias string) string {
	cols := make([]string, 0, 5+len(s.sourceCols)+len(s.destCols))
	cols = append(cols, colSourceIDsHash)
	cols = append(cols, s.sourceCols...)
	cols = append(cols, s.destCols...)
	cols = append(cols, colStatus, colRollbackAction, colLastImported, colHash)
	return s.columnList(alias, cols)
}

// columnList quotes cols, qualifying each with alias when it is non-empty.
func (s *Store) columnList(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if alias != "" {
			out[i] = s.q(alias) + "." + s.q(c)
		} else {
			out[i] = s.q(c)
		}
	}
	return strings.Join(out, ", ")
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanMapRow(sc rowScanner) (model.MapRow, error) {
	var (
		row          model.MapRow
		hashKey      sql.NullString
		status       sql.NullInt64
		rollback     sql.NullInt64
		lastImported sql.NullInt64
		contentHash  sql.NullString
	)
	src := make([]any, len(s.sourceCols))
	dst := make([]any, len(s.destCols))

	targets := make([]any, 0, 5+len(src)+len(dst))
	targets = append(targets, &hashKey)
	targets = appendPointers(targets, src)
	targets = appendPointers(targets, dst)
	targets = append(targets, &status, &rollback, &lastImported, &contentHash)

	if err := sc.Scan(targets...); err != nil {
		return row, err
	}

	row.SourceIDsHash = hashKey.String
	row.SourceIDs = model.CoerceAll(s.id.SourceIDs, src)
	row.DestinationIDs = model.CoerceAll(s.id.DestinationIDs, dst)
	row.Status = model.Status(status.Int64)
	row.RollbackAction = model.RollbackAction(rollback.Int64)
	row.LastImported = lastImported.Int64
	row.Hash = contentHash.String
	return row, nil
}

// scanTuple scans exactly len(fields) columns and coerces them to their
// field types.
func scanTuple(sc rowScanner, fields []model.FieldSpec) ([]any, error) {
	vals := make([]any, len(fields))
	if err := sc.Scan(appendPointers(nil, vals)...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return model.CoerceAll(fields, vals), nil
}

func appendPointers(dst []any, vals []any) []any {
	for i := range vals {
		dst = append(dst, &vals[i])
	}
	return dst
}

func allNil(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}
