package store

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// SaveMessage records a diagnostic message for source. It does nothing when
// a declared source field is missing or null.
func (s *Store) SaveMessage(ctx context.Context, source model.IDs, message string, level model.MessageLevel) error {
	const op = "save message"
	values, missing := s.sourceValues(source)
	if missing != "" {
		s.logger.Debug("message not saved: incomplete source key",
			"migration", s.id.ID, "field", missing, "message", message)
		return nil
	}
	if level == 0 {
		level = model.LevelError
	}
	if err := s.EnsureTables(ctx); err != nil {
		return err
	}

	b := s.newBinder()
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s, %s, %s)",
		s.q(s.messageTable),
		s.columnList("", []string{colSourceIDsHash, colLevel, colMessage}),
		b.bind(model.HashValues(values)), b.bind(int(level)), b.bind(message))
	if _, err := s.db.ExecContext(ctx, stmt, b.args...); err != nil {
		return s.storageErr(op, err)
	}

	s.listener.OnMessageSaved(ctx, MessageSavedEvent{
		MigrationID: s.id.ID,
		SourceIDs:   model.ToKeyed(s.id.SourceIDs, values),
		Message:     message,
		Level:       level,
	})
	return nil
}

// MessageFilter narrows Messages. The zero value matches every message.
type MessageFilter struct {
	// Source restricts messages to one full source key.
	Source model.IDs

	// Level restricts messages to one level; zero means any level.
	Level model.MessageLevel
}

// Messages returns the messages matching f in msgid order, each with the
// source and destination ids of its map row (nil when no map row exists).
//
// Every range over the sequence runs a fresh query and reads it to the end
// before yielding, so the loop body may call other store operations.
func (s *Store) Messages(ctx context.Context, f MessageFilter) iter.Seq2[model.MessageRow, error] {
	const op = "messages"
	return func(yield func(model.MessageRow, error) bool) {
		b := s.newBinder()
		var conds []string
		if !model.IsEmpty(f.Source) {
			hash, err := model.SourceIDsHash(s.id.SourceIDs, f.Source)
			if err != nil {
				yield(model.MessageRow{}, s.keyErr(op, err))
				return
			}
			conds = append(conds, fmt.Sprintf("%s.%s = %s", s.q("msg"), s.q(colSourceIDsHash), b.bind(hash)))
		}
		if f.Level != 0 {
			conds = append(conds, fmt.Sprintf("%s.%s = %s", s.q("msg"), s.q(colLevel), b.bind(int(f.Level))))
		}
		if err := s.EnsureTables(ctx); err != nil {
			yield(model.MessageRow{}, err)
			return
		}

		query := fmt.Sprintf("SELECT %s, %s, %s FROM %s %s LEFT JOIN %s %s ON %s.%s = %s.%s",
			s.columnList("map", s.sourceCols),
			s.columnList("map", s.destCols),
			s.columnList("msg", []string{colMsgID, colSourceIDsHash, colLevel, colMessage}),
			s.q(s.messageTable), s.q("msg"),
			s.q(s.mapTable), s.q("map"),
			s.q("msg"), s.q(colSourceIDsHash), s.q("map"), s.q(colSourceIDsHash),
		)
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += fmt.Sprintf(" ORDER BY %s.%s", s.q("msg"), s.q(colMsgID))

		msgs, err := s.readMessages(ctx, query, b.args)
		if err != nil {
			yield(model.MessageRow{}, err)
			return
		}
		for _, msg := range msgs {
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// readMessages runs a message query to completion and closes it before any
// row is handed to the caller.
func (s *Store) readMessages(ctx context.Context, query string, args []any) ([]model.MessageRow, error) {
	const op = "messages"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.storageErr(op, err)
	}
	defer rows.Close()

	var out []model.MessageRow
	for rows.Next() {
		var (
			msg   model.MessageRow
			level int64
		)
		src := make([]any, len(s.sourceCols))
		dst := make([]any, len(s.destCols))
		targets := appendPointers(nil, src)
		targets = appendPointers(targets, dst)
		targets = append(targets, &msg.MsgID, &msg.SourceIDsHash, &level, &msg.Message)
		if err := rows.Scan(targets...); err != nil {
			return nil, s.storageErr(op, err)
		}
		msg.Level = model.MessageLevel(level)
		msg.SourceIDs = model.CoerceAll(s.id.SourceIDs, src)
		msg.DestinationIDs = model.CoerceAll(s.id.DestinationIDs, dst)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr(op, err)
	}
	return out, nil
}

// ClearMessages removes every message of this migration.
func (s *Store) ClearMessages(ctx context.Context) error {
	const op = "clear messages"
	if err := s.EnsureTables(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Truncate(s.messageTable)); err != nil {
		return s.storageErr(op, err)
	}
	return nil
}
