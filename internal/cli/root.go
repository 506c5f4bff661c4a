package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/catalog"
	"github.com/roach88/idmap/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Database    string
	Prefix      string
	Definitions string
	LogLevel    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the idmap CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "idmap",
		Short: "idmap - migration identifier map administration",
		Long: `Inspect and maintain the id map tables of data migrations.

Each migration defined in the definitions directory owns a map table
(source key to destination key, with row status) and a message table.
idmap reads and repairs those tables; it never runs a migration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (default: idmap.yaml, searched upward)")
	pf.StringVar(&opts.Database, "db", "", "database URL (sqlite://, mysql://, postgres://, pgx://)")
	pf.StringVar(&opts.Prefix, "prefix", "", "table name prefix")
	pf.StringVar(&opts.Definitions, "definitions", "", "migration definitions directory")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEnsureCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewClearMessagesCommand(opts))
	cmd.AddCommand(NewRowCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewLookupSourceCommand(opts))
	cmd.AddCommand(NewRowsCommand(opts))
	cmd.AddCommand(NewNeedsUpdateCommand(opts))
	cmd.AddCommand(NewHighestIDCommand(opts))
	cmd.AddCommand(NewPrepareUpdateCommand(opts))
	cmd.AddCommand(NewSetUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewDeleteDestinationCommand(opts))

	return cmd, opts
}

// Main runs the CLI with args and returns the process exit code. Failures
// are reported on stdout in the selected format.
func Main(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	isExit := errors.As(err, &exitErr)
	if !isExit || !exitErr.Reported {
		format := opts.Format
		if !isValidFormat(format) {
			format = "text"
		}
		formatter := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
		code, details := describeError(err)
		_ = formatter.Error(code, err.Error(), details)
	}

	if isExit {
		return exitErr.Code
	}
	if store.CodeOf(err) != "" {
		return ExitFailure
	}
	// Definition problems and cobra's own failures: unknown command, bad flags, wrong arg count.
	return ExitCommandError
}

// describeError picks the most specific error code carried by err.
func describeError(err error) (string, any) {
	if code := store.CodeOf(err); code != "" {
		var se *store.Error
		if errors.As(err, &se) {
			return string(code), map[string]string{"migration": se.MigrationID, "op": se.Op}
		}
		return string(code), nil
	}
	var le *catalog.LoadError
	if errors.As(err, &le) {
		return le.Code, loadErrorDetails(err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.ErrCode != "" {
		return exitErr.ErrCode, nil
	}
	return ErrCodeGeneric, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
