package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/testutil"
)

// nodeIdentity maps a single integer source id onto a single integer
// destination id.
func nodeIdentity() model.Identity {
	return model.Identity{
		ID:             "d7_node",
		SourceIDs:      []model.FieldSpec{{Name: "nid", Type: model.TypeInteger}},
		DestinationIDs: []model.FieldSpec{{Name: "id", Type: model.TypeInteger}},
	}
}

// translationIdentity keys source rows by (lang, nid).
func translationIdentity() model.Identity {
	return model.Identity{
		ID: "d7_node_translation:article",
		SourceIDs: []model.FieldSpec{
			{Name: "lang", Type: model.TypeString, Settings: map[string]any{"max_length": 12}},
			{Name: "nid", Type: model.TypeInteger},
		},
		DestinationIDs: []model.FieldSpec{
			{Name: "id", Type: model.TypeInteger},
			{Name: "langcode", Type: model.TypeString, Settings: map[string]any{"max_length": 12}},
		},
	}
}

// createTestStore creates a store on a fresh SQLite database.
func createTestStore(t *testing.T, id model.Identity, opts ...Option) *Store {
	t.Helper()
	db, d := testutil.OpenSQLite(t)
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := New(db, d, id, opts...)
	require.NoError(t, err)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tableExists reports whether the store's database has table.
func tableExists(t *testing.T, s *Store, table string) bool {
	t.Helper()
	ok, err := s.Dialect().TableExists(context.Background(), s.DB(), table)
	require.NoError(t, err)
	return ok
}

type displayed struct {
	msg   string
	level model.MessageLevel
}

// recordingMessenger captures diagnostics.
type recordingMessenger struct {
	mu   sync.Mutex
	msgs []displayed
}

func (m *recordingMessenger) Display(_ context.Context, msg string, level model.MessageLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, displayed{msg: msg, level: level})
}

// recordingListener captures events. onRowSaved, if set, runs inside
// OnRowSaved.
type recordingListener struct {
	rows       []RowSavedEvent
	messages   []MessageSavedEvent
	deletes    []DeleteEvent
	onRowSaved func(RowSavedEvent)
	onDelete   func(DeleteEvent)
}

func (l *recordingListener) OnRowSaved(_ context.Context, e RowSavedEvent) {
	if l.onRowSaved != nil {
		l.onRowSaved(e)
	}
	l.rows = append(l.rows, e)
}

func (l *recordingListener) OnMessageSaved(_ context.Context, e MessageSavedEvent) {
	l.messages = append(l.messages, e)
}

func (l *recordingListener) OnBeforeDelete(_ context.Context, e DeleteEvent) {
	if l.onDelete != nil {
		l.onDelete(e)
	}
	l.deletes = append(l.deletes, e)
}

// save records a mapping and fails the test on error.
func save(t *testing.T, s *Store, src, dst model.IDs, status model.Status) {
	t.Helper()
	err := s.SaveIDMapping(context.Background(), Mapping{Source: src, Destination: dst, Status: status})
	require.NoError(t, err)
}

// rawCount counts rows of table directly, bypassing the store.
func rawCount(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM " + s.Dialect().Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}
