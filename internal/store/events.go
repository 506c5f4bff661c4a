package store

import (
	"context"
	"log/slog"

	"github.com/roach88/idmap/internal/model"
)

// RowSavedEvent is delivered before a map row is written, so a failed write
// still produces one; see WriteObserver. Fields holds every column about to
// be persisted, keyed by column name.
type RowSavedEvent struct {
	MigrationID string
	MapTable    string
	Fields      map[string]any
}

// MessageSavedEvent is delivered after a message row is written.
type MessageSavedEvent struct {
	MigrationID string
	SourceIDs   model.Keyed
	Message     string
	Level       model.MessageLevel
}

// DeleteEvent is delivered before a map row is removed.
type DeleteEvent struct {
	MigrationID string
	MapTable    string
	SourceIDs   model.Keyed
}

// Listener observes store mutations. Methods are called synchronously on the
// goroutine performing the operation and must not call back into the Store.
type Listener interface {
	OnRowSaved(ctx context.Context, e RowSavedEvent)
	OnMessageSaved(ctx context.Context, e MessageSavedEvent)
	OnBeforeDelete(ctx context.Context, e DeleteEvent)
}

// WriteObserver is implemented by listeners that also want to know when a
// map row announced by OnRowSaved was actually written. OnRowWritten is not
// called when the write fails.
type WriteObserver interface {
	OnRowWritten(ctx context.Context, e RowSavedEvent)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnRowSaved(context.Context, RowSavedEvent)         {}
func (NopListener) OnMessageSaved(context.Context, MessageSavedEvent) {}
func (NopListener) OnBeforeDelete(context.Context, DeleteEvent)       {}

// Listeners fans every event out to each listener in order.
type Listeners []Listener

func (ls Listeners) OnRowSaved(ctx context.Context, e RowSavedEvent) {
	for _, l := range ls {
		l.OnRowSaved(ctx, e)
	}
}

// OnRowWritten forwards to the listeners that implement WriteObserver.
func (ls Listeners) OnRowWritten(ctx context.Context, e RowSavedEvent) {
	for _, l := range ls {
		if w, ok := l.(WriteObserver); ok {
			w.OnRowWritten(ctx, e)
		}
	}
}

func (ls Listeners) OnMessageSaved(ctx context.Context, e MessageSavedEvent) {
	for _, l := range ls {
		l.OnMessageSaved(ctx, e)
	}
}

func (ls Listeners) OnBeforeDelete(ctx context.Context, e DeleteEvent) {
	for _, l := range ls {
		l.OnBeforeDelete(ctx, e)
	}
}

// Messenger receives diagnostics for skipped saves: a row with a null key
// field, or a destination tuple of the wrong size. These are not errors;
// the batch continues and the messenger decides how to surface them.
type Messenger interface {
	Display(ctx context.Context, msg string, level model.MessageLevel)
}

// LogMessenger writes diagnostics to a slog.Logger.
type LogMessenger struct {
	Logger *slog.Logger
}

// Display logs msg at the slog level matching level.
func (m LogMessenger) Display(ctx context.Context, msg string, level model.MessageLevel) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, SlogLevel(level), msg)
}

// SlogLevel maps a message level onto a slog level.
func SlogLevel(level model.MessageLevel) slog.Level {
	switch level {
	case model.LevelError:
		return slog.LevelError
	case model.LevelWarning:
		return slog.LevelWarn
	case model.LevelNotice:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// SiblingResolver lists the migrations that share an identifier namespace
// with id: derivatives of the same base migration. The result may include
// id itself.
type SiblingResolver interface {
	Siblings(id model.Identity) []model.Identity
}

// StaticSiblings resolves every migration to the same fixed family.
type StaticSiblings []model.Identity

// Siblings returns the fixed family.
func (s StaticSiblings) Siblings(model.Identity) []model.Identity {
	return s
}
