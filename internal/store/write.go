package store

import (
	"context"
	"fmt"

	"github.com/roach88/idmap/internal/model"
)

// Mapping is one completed source row as reported by the migration engine.
type Mapping struct {
	// Source is the full source key.
	Source model.IDs

	// Destination is the destination key. It may be empty for rows that
	// failed or were ignored; the previously recorded destination, if any,
	// is then kept.
	Destination model.IDs

	Status         model.Status
	RollbackAction model.RollbackAction

	// Hash is the content hash of the source row, opaque to the store.
	Hash string
}

// SaveIDMapping records m, inserting a new map row or replacing the existing
// row for the same source key.
//
// A source key with a missing or null field, or a destination key of the
// wrong size, is not saved: a diagnostic goes to the Messenger and nil is
// returned so the batch can continue.
//
// Listeners see the row-saved event before the row is written.
func (s *Store) SaveIDMapping(ctx context.Context, m Mapping) error {
	const op = "save id mapping"

	source, missing := s.sourceValues(m.Source)
	if missing != "" {
		s.messenger.Display(ctx,
			fmt.Sprintf("Did not save to map table due to NULL value for key field %s", missing),
			model.LevelError)
		return nil
	}

	var dest []any
	if !model.IsEmpty(m.Destination) {
		var ok bool
		if dest, ok = s.destinationValues(m.Destination); !ok {
			s.messenger.Display(ctx,
				"Could not save to map table due to missing destination id values",
				model.LevelError)
			return nil
		}
	}

	if err := s.EnsureTables(ctx); err != nil {
		return err
	}

	hash := model.HashValues(source)
	cols := []string{colSourceIDsHash}
	vals := []any{hash}
	cols = append(cols, s.sourceCols...)
	vals = append(vals, source...)
	if dest != nil {
		cols = append(cols, s.destCols...)
		vals = append(vals, dest...)
	}
	cols = append(cols, colStatus, colRollbackAction, colHash)
	vals = append(vals, int(m.Status), int(m.RollbackAction), nullString(m.Hash))
	if s.id.TrackLastImported {
		cols = append(cols, colLastImported)
		vals = append(vals, s.clock.Now().Unix())
	}

	fields := make(map[string]any, len(cols))
	for i, c := range cols {
		fields[c] = vals[i]
	}
	event := RowSavedEvent{
		MigrationID: s.id.ID,
		MapTable:    s.mapTable,
		Fields:      fields,
	}
	s.listener.OnRowSaved(ctx, event)

	stmt := s.dialect.Upsert(s.mapTable, []string{colSourceIDsHash}, cols, cols[1:])
	if _, err := s.db.ExecContext(ctx, stmt, vals...); err != nil {
		return s.storageErr(op, err)
	}
	if w, ok := s.listener.(WriteObserver); ok {
		w.OnRowWritten(ctx, event)
	}
	return nil
}

// sourceValues returns the declared source fields of ids in order. missing
// names the first field that is absent or null. Undeclared keyed values are
// ignored.
func (s *Store) sourceValues(ids model.IDs) (values []any, missing string) {
	values = make([]any, len(s.id.SourceIDs))
	for i, f := range s.id.SourceIDs {
		var v any
		switch t := ids.(type) {
		case model.Keyed:
			v = t[f.Name]
		case model.Positional:
			if i < len(t) {
				v = t[i]
			}
		}
		if v == nil {
			return nil, f.Name
		}
		values[i] = v
	}
	return values, ""
}

// destinationValues returns the destination tuple in declared order. ok is
// false unless ids supplies exactly one value per destination field.
func (s *Store) destinationValues(ids model.IDs) (values []any, ok bool) {
	if ids.Len() != len(s.id.DestinationIDs) {
		return nil, false
	}
	values = make([]any, len(s.id.DestinationIDs))
	switch t := ids.(type) {
	case model.Keyed:
		for i, f := range s.id.DestinationIDs {
			v, present := t[f.Name]
			if !present {
				return nil, false
			}
			values[i] = v
		}
	case model.Positional:
		copy(values, t)
	}
	return values, true
}

// SetUpdate marks the row for source as NEEDS_UPDATE.
func (s *Store) SetUpdate(ctx context.Context, source model.IDs) error {
	const op = "set update"
	if model.IsEmpty(source) {
		return s.failf(ErrCodeEmptySourceKey, op, "No source identifiers provided to update.")
	}
	hash, err := model.SourceIDsHash(s.id.SourceIDs, source)
	if err != nil {
		return s.keyErr(op, err)
	}
	if err := s.EnsureTables(ctx); err != nil {
		return err
	}

	b := s.newBinder()
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		s.q(s.mapTable), s.q(colStatus), b.bind(int(model.StatusNeedsUpdate)),
		s.q(colSourceIDsHash), b.bind(hash))
	if _, err := s.db.ExecContext(ctx, stmt, b.args...); err != nil {
		return s.storageErr(op, err)
	}
	return nil
}

// PrepareUpdate marks every row NEEDS_UPDATE, ahead of a forced re-import.
func (s *Store) PrepareUpdate(ctx context.Context) error {
	const op = "prepare update"
	if err := s.EnsureTables(ctx); err != nil {
		return err
	}
	b := s.newBinder()
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s",
		s.q(s.mapTable), s.q(colStatus), b.bind(int(model.StatusNeedsUpdate)))
	if _, err := s.db.ExecContext(ctx, stmt, b.args...); err != nil {
		return s.storageErr(op, err)
	}
	return nil
}

// Delete removes the map row for source, unless messagesOnly, and every
// message recorded for it. Listeners see the delete event before the map
// row is removed.
func (s *Store) Delete(ctx context.Context, source model.IDs, messagesOnly bool) error {
	const op = "delete"
	if model.IsEmpty(source) {
		return s.failf(ErrCodeEmptySourceKey, op,
			"Without source identifier values it is impossible to find the row to delete.")
	}
	ordered, err := model.Ordered(s.id.SourceIDs, source)
	if err != nil {
		return s.keyErr(op, err)
	}
	if err := s.EnsureTables(ctx); err != nil {
		return err
	}
	return s.deleteByHash(ctx, op, model.ToKeyed(s.id.SourceIDs, ordered), model.HashValues(ordered), messagesOnly)
}

// DeleteDestination removes the map row and messages of the source recorded
// for dest. It does nothing when no row matches.
func (s *Store) DeleteDestination(ctx context.Context, dest model.IDs) error {
	source, err := s.LookupSourceID(ctx, dest)
	if err != nil || source == nil {
		return err
	}
	ordered, err := model.Ordered(s.id.SourceIDs, source)
	if err != nil {
		return s.keyErr("delete destination", err)
	}
	return s.deleteByHash(ctx, "delete destination", source, model.HashValues(ordered), false)
}

func (s *Store) deleteByHash(ctx context.Context, op string, source model.Keyed, hash string, messagesOnly bool) error {
	if !messagesOnly {
		s.listener.OnBeforeDelete(ctx, DeleteEvent{
			MigrationID: s.id.ID,
			MapTable:    s.mapTable,
			SourceIDs:   source,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.storageErr(op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	tables := []string{s.messageTable}
	if !messagesOnly {
		tables = append([]string{s.mapTable}, tables...)
	}
	for _, table := range tables {
		b := s.newBinder()
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", s.q(table), s.q(colSourceIDsHash), b.bind(hash))
		if _, err := tx.ExecContext(ctx, stmt, b.args...); err != nil {
			return s.storageErr(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.storageErr(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// nullString stores "" as NULL.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
