package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/store"
)

// TablesResult names the tables of a migration.
type TablesResult struct {
	ID           string `json:"id"`
	MapTable     string `json:"map_table"`
	MessageTable string `json:"message_table"`
}

// NewEnsureCommand creates the ensure command.
func NewEnsureCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <migration-id>",
		Short: "Create or upgrade the map and message tables",
		Long: `Create the map and message tables of a migration if they are missing,
and add any map columns an older table layout lacks.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				if err := st.EnsureTables(s.ctx); err != nil {
					return err
				}
				res := TablesResult{ID: args[0], MapTable: st.MapTable(), MessageTable: st.MessageTable()}
				return s.out.Render(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "✓ Tables ready: %s, %s\n", res.MapTable, res.MessageTable)
					return err
				})
			})
		},
	}
}

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Dialect string
}

// DDLResult holds generated statements.
type DDLResult struct {
	ID         string   `json:"id"`
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl <migration-id>",
		Short: "Print the CREATE statements for a migration's tables",
		Long: `Print the statements that create the map and message tables, without
connecting to a database.

The dialect is taken from --dialect, or from the scheme of the configured
database URL.

Examples:
  idmap ddl d7_node:article --dialect postgres
  idmap ddl d7_user --dialect mysql --prefix legacy_`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, false, func(s *session) error {
				return runDDL(s, opts, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "sqlite|mysql|postgres (default: from database url)")
	return cmd
}

func runDDL(s *session, opts *DDLOptions, id string) error {
	name := opts.Dialect
	if name == "" {
		dsn, err := s.cfg.DSN()
		if err != nil {
			return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "no --dialect and no database url", Err: err}
		}
		name, _, _ = strings.Cut(dsn, "://")
	}
	d, err := dialect.ForName(strings.ToLower(name))
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments, Message: "invalid dialect", Err: err}
	}

	ident, err := s.catalog.Identity(id)
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments, Message: "unknown migration", Err: err}
	}
	stmts, err := store.SchemaDDL(d, ident, s.cfg.Database.TablePrefix)
	if err != nil {
		return &ExitError{Code: ExitFailure, ErrCode: string(store.ErrCodeSchemaFailure), Message: "cannot render schema", Err: err}
	}

	res := DDLResult{ID: id, Dialect: d.Name(), Statements: stmts}
	return s.out.Render(res, func(w io.Writer) error {
		for _, stmt := range stmts {
			if _, err := fmt.Fprintf(w, "%s;\n\n", stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// DestroyOptions holds flags for the destroy command.
type DestroyOptions struct {
	*RootOptions
	Yes bool
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DestroyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "destroy <migration-id>",
		Short: "Drop the map and message tables of a migration",
		Long: `Drop both tables of a migration. Every recorded mapping and message is
lost. Requires --yes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeUnconfirmed,
					Message: fmt.Sprintf("refusing to drop the tables of %s without --yes", args[0])}
			}
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				if err := st.Destroy(s.ctx); err != nil {
					return err
				}
				res := TablesResult{ID: args[0], MapTable: st.MapTable(), MessageTable: st.MessageTable()}
				return s.out.Render(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "✓ Dropped %s, %s\n", res.MapTable, res.MessageTable)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm dropping the tables")
	return cmd
}
