package cli

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/audit"
	"github.com/roach88/idmap/internal/catalog"
	"github.com/roach88/idmap/internal/config"
	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/store"
)

// session is the state shared by one command invocation: resolved config,
// loaded definitions and, for commands that need it, an open database.
type session struct {
	ctx     context.Context
	cfg     *config.Config
	catalog *catalog.Catalog
	db      *sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger
	audit   *audit.Logger
	out     *OutputFormatter
}

// openSession loads config and definitions and, when needDB is set, opens
// the database. Callers must Close the session.
func openSession(cmd *cobra.Command, opts *RootOptions, needDB bool) (*session, error) {
	cfg, cfgPath, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "failed to load config", Err: err}
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "invalid config", Err: err}
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Format, level)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	}

	s := &session{
		ctx:    cmd.Context(),
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}

	s.catalog, err = catalog.Load(cfg.Definitions.Dir)
	if err != nil {
		return nil, err
	}
	s.out.VerboseLog("Loaded %d migration definition(s) from %s", s.catalog.Len(), cfg.Definitions.Dir)

	if needDB {
		dsn, err := cfg.DSN()
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "invalid database config", Err: err}
		}
		s.db, s.dialect, err = dialect.Open(s.ctx, dsn)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDatabase, Message: "failed to open database", Err: err}
		}
		s.audit = audit.New(logger)
		s.out.RunID = s.audit.RunID()
	}
	return s, nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// store returns the id map of migration id.
func (s *session) store(id string) (*store.Store, error) {
	ident, err := s.catalog.Identity(id)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments, Message: "unknown migration", Err: err}
	}
	return store.New(s.db, s.dialect, ident,
		store.WithTablePrefix(s.cfg.Database.TablePrefix),
		store.WithLogger(s.logger),
		store.WithListener(s.audit),
		store.WithMessenger(s.audit),
		store.WithSiblings(s.catalog),
	)
}

// Close releases the database. In verbose mode it logs the audit summary.
func (s *session) Close() {
	if s.audit != nil && s.out.Verbose {
		s.audit.LogSummary(s.ctx)
	}
	if s.db != nil {
		s.db.Close()
	}
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, needDB bool, fn func(*session) error) error {
	s, err := openSession(cmd, opts, needDB)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// withStore runs fn against the store of migration id.
func withStore(cmd *cobra.Command, opts *RootOptions, id string, fn func(*session, *store.Store) error) error {
	return withSession(cmd, opts, true, func(s *session) error {
		st, err := s.store(id)
		if err != nil {
			return err
		}
		return fn(s, st)
	})
}
