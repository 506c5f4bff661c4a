package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/catalog"
	"github.com/roach88/idmap/internal/config"
)

// ValidationIssue is one problem found in the definitions.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// MigrationSummary describes one valid definition.
type MigrationSummary struct {
	ID                string   `json:"id"`
	MapTable          string   `json:"map_table"`
	MessageTable      string   `json:"message_table"`
	SourceIDs         []string `json:"source_ids"`
	DestinationIDs    []string `json:"destination_ids"`
	TrackLastImported bool     `json:"track_last_imported"`
	File              string   `json:"file,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool               `json:"valid"`
	Migrations []MigrationSummary `json:"migrations,omitempty"`
	Errors     []ValidationIssue  `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate migration definitions",
		Long: `Load every definition file in the definitions directory and check it.

Reports duplicate ids, missing or empty source and destination id lists,
unknown field types and malformed files, with file positions. No database
connection is made.

Exit codes:
  0 - All definitions valid
  1 - Validation failed
  2 - Command error (bad config)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, _, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "failed to load config", Err: err}
	}
	formatter.VerboseLog("Validating definitions in %s", cfg.Definitions.Dir)

	cat, err := catalog.Load(cfg.Definitions.Dir)
	if err != nil {
		return outputValidationErrors(formatter, loadErrorDetails(err))
	}

	result := ValidationResult{Valid: true}
	for _, d := range cat.Definitions() {
		result.Migrations = append(result.Migrations, MigrationSummary{
			ID:                d.ID,
			MapTable:          d.MapTableName(cfg.Database.TablePrefix),
			MessageTable:      d.MessageTableName(cfg.Database.TablePrefix),
			SourceIDs:         fieldNames(d.SourceIDs),
			DestinationIDs:    fieldNames(d.DestinationIDs),
			TrackLastImported: d.TrackLastImported,
			File:              d.File,
		})
	}

	return formatter.Render(result, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ All definitions valid (%d migration(s))\n", len(result.Migrations))
		if formatter.Verbose {
			for _, m := range result.Migrations {
				fmt.Fprintf(w, "  %s → %s, %s\n", m.ID, m.MapTable, m.MessageTable)
			}
		}
		return nil
	})
}

func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	failure := &ExitError{
		Code:     ExitFailure,
		ErrCode:  issues[0].Code,
		Message:  fmt.Sprintf("validation failed with %d error(s)", len(issues)),
		Reported: true,
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.File != "" {
			if issue.Line > 0 {
				fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", issue.File, issue.Line, issue.Column)
			} else {
				fmt.Fprintln(formatter.Writer, issue.File)
			}
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return failure
}

// loadErrorDetails flattens a catalog load error into issues.
func loadErrorDetails(err error) []ValidationIssue {
	var issues []ValidationIssue
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var le *catalog.LoadError
		if errors.As(e, &le) {
			issues = append(issues, ValidationIssue{
				Code:    le.Code,
				Message: le.Message,
				File:    le.File,
				Line:    le.Line,
				Column:  le.Column,
			})
			return
		}
		issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: e.Error()})
	}
	walk(err)
	return issues
}
