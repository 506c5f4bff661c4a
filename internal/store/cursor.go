package store

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/idmap/internal/model"
)

// CursorState is the position of a Cursor.
type CursorState int

const (
	// CursorNotStarted is the state before the first Rewind.
	CursorNotStarted CursorState = iota

	// CursorPositioned means Current and Key describe a row.
	CursorPositioned

	// CursorExhausted means the last row has been passed. Only Rewind
	// leaves this state.
	CursorExhausted
)

func (c CursorState) String() string {
	switch c {
	case CursorNotStarted:
		return "not_started"
	case CursorPositioned:
		return "positioned"
	case CursorExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("cursor_state(%d)", int(c))
	}
}

// Cursor walks every map row ordered by the first destination column,
// exposing each row's source key and destination tuple separately.
//
// Rewind reads the whole ordered map into memory and releases the query, so
// other store operations may run while the cursor is walked. Rows changed
// after Rewind are not seen until the next Rewind.
//
// A Cursor is not safe for concurrent use. Each call to Store.Cursor returns
// an independent cursor.
type Cursor struct {
	s     *Store
	state CursorState
	err   error

	// rows is the snapshot read by Rewind; pos indexes the current row.
	rows []cursorRow
	pos  int

	source []any
	dest   []any
}

type cursorRow struct {
	source []any
	dest   []any
}

// Cursor returns a new cursor over the map. Call Rewind to start it.
func (s *Store) Cursor() *Cursor {
	return &Cursor{s: s}
}

// Rewind runs the ordered query again and moves to its first row, or to
// the exhausted state when the map is empty.
func (c *Cursor) Rewind(ctx context.Context) error {
	c.Close()
	c.err = nil
	c.state = CursorNotStarted

	s := c.s
	if err := s.EnsureTables(ctx); err != nil {
		c.err = err
		c.state = CursorExhausted
		return err
	}

	snapshot, err := s.readCursorRows(ctx)
	if err != nil {
		c.err = err
		c.state = CursorExhausted
		return err
	}
	c.rows = snapshot
	c.pos = -1
	c.state = CursorPositioned
	c.Next()
	return c.err
}

// readCursorRows reads every map row in cursor order and closes the query
// before returning.
func (s *Store) readCursorRows(ctx context.Context) ([]cursorRow, error) {
	query := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s, %s",
		s.columnList("", s.sourceCols), s.columnList("", s.destCols),
		s.q(s.mapTable), s.q("destid1"), s.q(colSourceIDsHash))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.storageErr("cursor", err)
	}
	defer rows.Close()

	n := len(s.sourceCols)
	var out []cursorRow
	for rows.Next() {
		vals := make([]any, n+len(s.destCols))
		if err := rows.Scan(appendPointers(nil, vals)...); err != nil {
			return nil, s.storageErr("cursor", err)
		}
		out = append(out, cursorRow{
			source: model.CoerceAll(s.id.SourceIDs, vals[:n:n]),
			dest:   model.CoerceAll(s.id.DestinationIDs, vals[n:]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr("cursor", err)
	}
	return out, nil
}

// Valid reports whether the cursor is on a row.
func (c *Cursor) Valid() bool {
	return c.state == CursorPositioned
}

// Next moves to the following row. It does nothing unless the cursor is on
// a row.
func (c *Cursor) Next() {
	if c.state != CursorPositioned {
		return
	}
	c.pos++
	if c.pos >= len(c.rows) {
		c.Close()
		c.state = CursorExhausted
		return
	}
	c.source = c.rows[c.pos].source
	c.dest = c.rows[c.pos].dest
}

// Current returns the destination tuple of the current row in declared
// order, or nil when the cursor is not on a row.
func (c *Cursor) Current() []any {
	if !c.Valid() {
		return nil
	}
	return append([]any(nil), c.dest...)
}

// Key returns the serialised source key of the current row, keyed by source
// column name, or "" when the cursor is not on a row.
func (c *Cursor) Key() string {
	if !c.Valid() {
		return ""
	}
	k := make(model.Keyed, len(c.source))
	for i, col := range c.s.sourceCols {
		k[col] = c.source[i]
	}
	// Values are scalars scanned from the database; serialisation cannot fail.
	data, _ := model.SerializeKeyed(c.s.sourceCols, k)
	return string(data)
}

// CurrentSource returns the source key of the current row keyed by source
// field name, or nil when the cursor is not on a row.
func (c *Cursor) CurrentSource() model.Keyed {
	if !c.Valid() {
		return nil
	}
	return model.ToKeyed(c.s.id.SourceIDs, c.source)
}

// CurrentDestination returns the destination tuple of the current row keyed
// by destination field name, leaving out NULL columns, or nil when the
// cursor is not on a row.
func (c *Cursor) CurrentDestination() model.Keyed {
	if !c.Valid() {
		return nil
	}
	out := model.Keyed{}
	for i, f := range c.s.id.DestinationIDs {
		if c.dest[i] != nil {
			out[f.Name] = c.dest[i]
		}
	}
	return out
}

// State returns the cursor state.
func (c *Cursor) State() CursorState { return c.state }

// Err returns the error that ended the last traversal, if any.
func (c *Cursor) Err() error { return c.err }

// Close drops the snapshot. The cursor can be rewound again.
func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	return nil
}

// Pair is one step of a map traversal.
type Pair struct {
	Key         string
	Source      model.Keyed
	Destination model.Keyed
}

// All ranges over the map with a fresh cursor per range. A failure is
// yielded once as the final element.
func (s *Store) All(ctx context.Context) iter.Seq2[Pair, error] {
	return func(yield func(Pair, error) bool) {
		c := s.Cursor()
		defer c.Close()
		if err := c.Rewind(ctx); err != nil {
			yield(Pair{}, err)
			return
		}
		for ; c.Valid(); c.Next() {
			p := Pair{Key: c.Key(), Source: c.CurrentSource(), Destination: c.CurrentDestination()}
			if !yield(p, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Pair{}, err)
		}
	}
}
