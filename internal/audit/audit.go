// Package audit records id map activity through log/slog.
//
// A Logger implements both store.Listener and store.Messenger. Every record
// carries the run_id of the Logger, so the rows saved, messages written and
// deletions of one batch can be correlated in the log stream. Skipped saves
// reported through the messenger are also kept in memory for an end-of-run
// Summary.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
)

// Refusal is one save the store declined to perform.
type Refusal struct {
	Message string
	Level   model.MessageLevel
}

// Summary tallies the events seen by a Logger.
type Summary struct {
	RunID    string
	Saved    map[string]int // map rows written, by migration id
	Messages map[string]int // messages written, by migration id
	Deleted  map[string]int // map rows deleted, by migration id
	Refused  []Refusal
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets the run id source. The default is UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Logger) { l.gen = g }
}

// Logger is an audit sink for one run. It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	gen    IDGenerator
	runID  string

	mu       sync.Mutex
	saved    map[string]int
	messages map[string]int
	deleted  map[string]int
	refused  []Refusal
}

var (
	_ store.Listener      = (*Logger)(nil)
	_ store.WriteObserver = (*Logger)(nil)
	_ store.Messenger     = (*Logger)(nil)
)

// New returns a Logger writing to logger, or slog.Default() when nil.
func New(logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		gen:      UUIDv7Generator{},
		saved:    make(map[string]int),
		messages: make(map[string]int),
		deleted:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	if logger == nil {
		logger = slog.Default()
	}
	l.runID = l.gen.Generate()
	l.logger = logger.With("run_id", l.runID)
	return l
}

// RunID returns the correlation id attached to every record.
func (l *Logger) RunID() string { return l.runID }

// OnRowSaved logs the columns about to be written.
func (l *Logger) OnRowSaved(ctx context.Context, e store.RowSavedEvent) {
	attrs := []any{"migration", e.MigrationID, "table", e.MapTable}
	for _, name := range sortedKeys(e.Fields) {
		attrs = append(attrs, name, e.Fields[name])
	}
	l.logger.DebugContext(ctx, "map row saved", attrs...)
}

// OnRowWritten counts a map row once the store has written it.
func (l *Logger) OnRowWritten(_ context.Context, e store.RowSavedEvent) {
	l.mu.Lock()
	l.saved[e.MigrationID]++
	l.mu.Unlock()
}

// OnMessageSaved logs a stored message at the matching slog level.
func (l *Logger) OnMessageSaved(ctx context.Context, e store.MessageSavedEvent) {
	l.mu.Lock()
	l.messages[e.MigrationID]++
	l.mu.Unlock()

	l.logger.Log(ctx, store.SlogLevel(e.Level), e.Message,
		"migration", e.MigrationID,
		"level", e.Level.String(),
		"source", keyedAttr(e.SourceIDs))
}

// OnBeforeDelete logs a pending map row deletion.
func (l *Logger) OnBeforeDelete(ctx context.Context, e store.DeleteEvent) {
	l.mu.Lock()
	l.deleted[e.MigrationID]++
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "map row deleting",
		"migration", e.MigrationID,
		"table", e.MapTable,
		"source", keyedAttr(e.SourceIDs))
}

// Display records and logs a skipped save.
func (l *Logger) Display(ctx context.Context, msg string, level model.MessageLevel) {
	l.mu.Lock()
	l.refused = append(l.refused, Refusal{Message: msg, Level: level})
	l.mu.Unlock()

	l.logger.Log(ctx, store.SlogLevel(level), msg, "refused", true)
}

// Summary returns a snapshot of the counts seen so far.
func (l *Logger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Summary{
		RunID:    l.runID,
		Saved:    copyCounts(l.saved),
		Messages: copyCounts(l.messages),
		Deleted:  copyCounts(l.deleted),
		Refused:  append([]Refusal(nil), l.refused...),
	}
}

// LogSummary writes the summary as a single Info record.
func (l *Logger) LogSummary(ctx context.Context) {
	sum := l.Summary()
	l.logger.InfoContext(ctx, "run summary",
		"saved", total(sum.Saved),
		"messages", total(sum.Messages),
		"deleted", total(sum.Deleted),
		"refused", len(sum.Refused))
}

// keyedAttr renders a keyed tuple as a slog group in field-name order.
func keyedAttr(k model.Keyed) slog.Value {
	attrs := make([]slog.Attr, 0, len(k))
	for _, name := range sortedKeys(k) {
		attrs = append(attrs, slog.Any(name, k[name]))
	}
	return slog.GroupValue(attrs...)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
