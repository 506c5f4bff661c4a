package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/model"
)

// Fixed map and message table columns.
const (
	colSourceIDsHash  = "source_ids_hash"
	colStatus         = "source_row_status"
	colRollbackAction = "rollback_action"
	colLastImported   = "last_imported"
	colHash           = "hash"

	colMsgID   = "msgid"
	colLevel   = "level"
	colMessage = "message"
)

// Clock supplies the wall time recorded in last_imported.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is the id map of one migration: its map table, its message table and
// the operations over them.
//
// A Store is safe for concurrent use. Tables are created lazily on first use
// and the check is remembered for the Store's lifetime.
type Store struct {
	db      *sql.DB
	dialect dialect.Dialect
	id      model.Identity

	prefix       string
	mapTable     string
	messageTable string
	sourceCols   []string
	destCols     []string

	listener  Listener
	messenger Messenger
	siblings  SiblingResolver
	clock     Clock
	logger    *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// Option configures a Store.
type Option func(*Store)

// WithTablePrefix prepends prefix to both table names. The prefix counts
// against the identifier length limit.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithListener adds a listener. It may be given more than once.
func WithListener(l Listener) Option {
	return func(s *Store) {
		switch cur := s.listener.(type) {
		case NopListener:
			s.listener = l
		case Listeners:
			s.listener = append(cur, l)
		default:
			s.listener = Listeners{cur, l}
		}
	}
}

// WithMessenger sets the sink for skipped-save diagnostics.
func WithMessenger(m Messenger) Option {
	return func(s *Store) { s.messenger = m }
}

// WithSiblings sets the resolver used by HighestID to find the migration's
// derivative family.
func WithSiblings(r SiblingResolver) Option {
	return func(s *Store) { s.siblings = r }
}

// WithClock sets the time source for last_imported.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns the id map for id, backed by db. No statement is run until the
// first operation.
func New(db *sql.DB, d dialect.Dialect, id model.Identity, opts ...Option) (*Store, error) {
	if err := id.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeInvalidIdentity, MigrationID: id.ID, Op: "new", Err: err}
	}
	if db == nil || d == nil {
		return nil, fmt.Errorf("store %s: database and dialect are required", id.ID)
	}

	s := &Store{
		db:       db,
		dialect:  d,
		id:       id,
		listener: NopListener{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.messenger == nil {
		s.messenger = LogMessenger{Logger: s.logger}
	}

	s.mapTable = id.MapTableName(s.prefix)
	s.messageTable = id.MessageTableName(s.prefix)
	s.sourceCols = columnNames("sourceid", len(id.SourceIDs))
	s.destCols = columnNames("destid", len(id.DestinationIDs))
	return s, nil
}

// Identity returns the migration identity.
func (s *Store) Identity() model.Identity { return s.id }

// MapTable returns the map table name.
func (s *Store) MapTable() string { return s.mapTable }

// MessageTable returns the message table name.
func (s *Store) MessageTable() string { return s.messageTable }

// Dialect returns the SQL dialect.
func (s *Store) Dialect() dialect.Dialect { return s.dialect }

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB { return s.db }

func columnNames(prefix string, n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return cols
}

func (s *Store) q(ident string) string { return s.dialect.Quote(ident) }

// binder accumulates bind arguments and hands out matching placeholders.
type binder struct {
	d    dialect.Dialect
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (s *Store) newBinder() *binder { return &binder{d: s.dialect} }
