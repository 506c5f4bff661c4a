package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// RowBySource returns the map row for a full source key. found is false when
// no row has been recorded for it.
func (s *Store) RowBySource(ctx context.Context, source model.IDs) (row model.MapRow, found bool, err error) {
	const op = "row by source"
	hash, err := model.SourceIDsHash(s.id.SourceIDs, source)
	if err != nil {
		return row, false, s.keyErr(op, err)
	}
	if err := s.EnsureTables(ctx); err != nil {
		return row, false, err
	}

	b := s.newBinder()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.mapRowColumns(""), s.q(s.mapTable), s.q(colSourceIDsHash), b.bind(hash))
	row, err = s.scanMapRow(s.db.QueryRowContext(ctx, query, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, s.storageErr(op, err)
	}
	return row, true, nil
}

// RowByDestination returns a map row whose destination columns all equal
// dest. found is false when dest does not supply every destination field or
// no row matches.
func (s *Store) RowByDestination(ctx context.Context, dest model.IDs) (row model.MapRow, found bool, err error) {
	const op = "row by destination"
	b := s.newBinder()
	where, ok := s.destinationConditions(b, dest)
	if !ok {
		return row, false, nil
	}
	if err := s.EnsureTables(ctx); err != nil {
		return row, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1",
		s.mapRowColumns(""), s.q(s.mapTable), where)
	row, err = s.scanMapRow(s.db.QueryRowContext(ctx, query, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, s.storageErr(op, err)
	}
	return row, true, nil
}

// RowsNeedingUpdate returns up to limit rows with status NEEDS_UPDATE.
// A limit of zero or less returns every such row.
func (s *Store) RowsNeedingUpdate(ctx context.Context, limit int) ([]model.MapRow, error) {
	const op = "rows needing update"
	if err := s.EnsureTables(ctx); err != nil {
		return nil, err
	}

	b := s.newBinder()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
		s.mapRowColumns(""), s.q(s.mapTable), s.q(colStatus), b.bind(int(model.StatusNeedsUpdate)), s.q(colSourceIDsHash))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, s.storageErr(op, err)
	}
	defer rows.Close()

	result := []model.MapRow{}
	for rows.Next() {
		row, err := s.scanMapRow(rows)
		if err != nil {
			return nil, s.storageErr(op, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr(op, err)
	}
	return result, nil
}

// LookupDestinationIDs returns the destination tuples recorded for a full or
// partial source key.
//
// Keyed input matches every declared field it names; positional input
// matches the first len(source) declared fields. A full key is looked up by
// its hash, a partial key by per-column equality. Both return the same rows
// for the same key. Keyed values that are nil or name undeclared fields are
// an error rather than a wider match.
//
// Rows whose destination columns are all NULL (failed or ignored rows) are
// not returned. A key value the database cannot compare against its column
// type matches nothing.
func (s *Store) LookupDestinationIDs(ctx context.Context, source model.IDs) ([][]any, error) {
	const op = "lookup destination ids"
	if model.IsEmpty(source) {
		return [][]any{}, nil
	}

	bound, extra := model.Match(s.id.SourceIDs, source)
	if len(extra) > 0 {
		return nil, s.failf(ErrCodeUnknownKeyFields, op,
			"extra unknown items in source ids: %s", strings.Join(extra, ", "))
	}
	for _, bnd := range bound {
		// Source columns are NOT NULL; nothing can match.
		if bnd.Value == nil {
			return [][]any{}, nil
		}
	}
	if err := s.EnsureTables(ctx); err != nil {
		return nil, err
	}

	b := s.newBinder()
	var where string
	if len(bound) == len(s.id.SourceIDs) {
		values := make([]any, len(bound))
		for _, bnd := range bound {
			values[bnd.Index] = bnd.Value
		}
		where = fmt.Sprintf("%s = %s", s.q(colSourceIDsHash), b.bind(model.HashValues(values)))
	} else {
		conds := make([]string, len(bound))
		for i, bnd := range bound {
			conds[i] = fmt.Sprintf("%s = %s", s.q(s.sourceCols[bnd.Index]), b.bind(bnd.Value))
		}
		where = strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		s.columnList("", s.destCols), s.q(s.mapTable), where, s.q(colSourceIDsHash))
	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		if s.dialect.IsInvalidValue(err) || s.dialect.IsUndefinedTable(err) {
			s.logger.Debug("lookup matched nothing", "migration", s.id.ID, "error", err)
			return [][]any{}, nil
		}
		return nil, s.storageErr(op, err)
	}
	defer rows.Close()

	result := [][]any{}
	for rows.Next() {
		dest, err := scanTuple(rows, s.id.DestinationIDs)
		if err != nil {
			return nil, s.storageErr(op, err)
		}
		if allNil(dest) {
			continue
		}
		result = append(result, dest)
	}
	if err := rows.Err(); err != nil {
		if s.dialect.IsInvalidValue(err) {
			return [][]any{}, nil
		}
		return nil, s.storageErr(op, err)
	}
	return result, nil
}

// LookupDestinationID returns the first destination tuple for source, or nil.
func (s *Store) LookupDestinationID(ctx context.Context, source model.IDs) ([]any, error) {
	all, err := s.LookupDestinationIDs(ctx, source)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// LookupSourceID returns the source key recorded for a full destination key,
// keyed by source field name, or nil when none is recorded.
func (s *Store) LookupSourceID(ctx context.Context, dest model.IDs) (model.Keyed, error) {
	const op = "lookup source id"
	b := s.newBinder()
	where, ok := s.destinationConditions(b, dest)
	if !ok {
		return nil, nil
	}
	if err := s.EnsureTables(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1",
		s.columnList("", s.sourceCols), s.q(s.mapTable), where)
	values, err := scanTuple(s.db.QueryRowContext(ctx, query, b.args...), s.id.SourceIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if s.dialect.IsInvalidValue(err) {
			return nil, nil
		}
		return nil, s.storageErr(op, err)
	}
	return model.ToKeyed(s.id.SourceIDs, values), nil
}

// destinationConditions builds equality over every destination column. ok is
// false when dest leaves a destination field unset. Values for undeclared
// fields are ignored.
func (s *Store) destinationConditions(b *binder, dest model.IDs) (where string, ok bool) {
	bound, _ := model.Match(s.id.DestinationIDs, dest)
	if len(bound) != len(s.id.DestinationIDs) {
		return "", false
	}
	conds := make([]string, len(bound))
	for i, bnd := range bound {
		if bnd.Value == nil {
			return "", false
		}
		conds[i] = fmt.Sprintf("%s = %s", s.q(s.destCols[bnd.Index]), b.bind(bnd.Value))
	}
	return strings.Join(conds, " AND "), true
}
