package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
)

// RowView is a map row keyed by field name.
type RowView struct {
	SourceIDsHash  string      `json:"source_ids_hash"`
	Source         model.Keyed `json:"source"`
	Destination    model.Keyed `json:"destination"`
	Status         string      `json:"status"`
	RollbackAction string      `json:"rollback_action"`
	LastImported   int64       `json:"last_imported"`
	Hash           string      `json:"hash,omitempty"`
}

func newRowView(ident model.Identity, row model.MapRow) RowView {
	return RowView{
		SourceIDsHash:  row.SourceIDsHash,
		Source:         model.ToKeyed(ident.SourceIDs, row.SourceIDs),
		Destination:    nonNullKeyed(ident.DestinationIDs, row.DestinationIDs),
		Status:         row.Status.String(),
		RollbackAction: row.RollbackAction.String(),
		LastImported:   row.LastImported,
		Hash:           row.Hash,
	}
}

func writeRows(w io.Writer, ident model.Identity, rows []RowView) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No rows.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDESTINATION\tSTATUS\tROLLBACK")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			formatKeyed(ident.SourceIDs, r.Source),
			formatKeyed(ident.DestinationIDs, r.Destination),
			r.Status, r.RollbackAction)
	}
	return tw.Flush()
}

// NewRowCommand creates the row command.
func NewRowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "row <migration-id> name=value...",
		Short: "Show the map row of a full source key",
		Long: `Show the map row recorded for a full source key.

Exit codes:
  0 - Row found
  1 - No row recorded for the key`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				ident := st.Identity()
				source, err := parseKeyValues(ident.SourceIDs, args[1:])
				if err != nil {
					return err
				}
				row, found, err := st.RowBySource(s.ctx, source)
				if err != nil {
					return err
				}
				if !found {
					return NewExitError(ExitFailure,
						fmt.Sprintf("no map row for %s", formatKeyed(ident.SourceIDs, source)))
				}
				view := newRowView(ident, row)
				return s.out.Render(view, func(w io.Writer) error {
					return writeRows(w, ident, []RowView{view})
				})
			})
		},
	}
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <migration-id> name=value...",
		Short: "Find destination keys for a full or partial source key",
		Long: `Find every destination key recorded for the given source values.

A partial key matches every row agreeing on the given fields. Rows without
a destination are not listed.

Examples:
  idmap lookup d7_node_translation:article language=en nid=1
  idmap lookup d7_node_translation:article nid=1`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				ident := st.Identity()
				source, err := parseKeyValues(ident.SourceIDs, args[1:])
				if err != nil {
					return err
				}
				tuples, err := st.LookupDestinationIDs(s.ctx, source)
				if err != nil {
					return err
				}
				dests := make([]model.Keyed, 0, len(tuples))
				for _, t := range tuples {
					dests = append(dests, nonNullKeyed(ident.DestinationIDs, t))
				}
				return s.out.Render(dests, func(w io.Writer) error {
					if len(dests) == 0 {
						_, err := fmt.Fprintln(w, "No destination ids.")
						return err
					}
					for _, d := range dests {
						fmt.Fprintln(w, formatKeyed(ident.DestinationIDs, d))
					}
					return nil
				})
			})
		},
	}
}

// NewLookupSourceCommand creates the lookup-source command.
func NewLookupSourceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "lookup-source <migration-id> name=value...",
		Short:         "Find the source key recorded for a destination key",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				ident := st.Identity()
				dest, err := parseKeyValues(ident.DestinationIDs, args[1:])
				if err != nil {
					return err
				}
				source, err := st.LookupSourceID(s.ctx, dest)
				if err != nil {
					return err
				}
				return s.out.Render(source, func(w io.Writer) error {
					if len(source) == 0 {
						_, err := fmt.Fprintln(w, "No source ids.")
						return err
					}
					_, err := fmt.Fprintln(w, formatKeyed(ident.SourceIDs, source))
					return err
				})
			})
		},
	}
}

// PairView is one step of a map traversal.
type PairView struct {
	Key         string      `json:"key"`
	Source      model.Keyed `json:"source"`
	Destination model.Keyed `json:"destination"`
}

// NewRowsCommand creates the rows command.
func NewRowsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rows <migration-id>",
		Short: "List every source to destination pair",
		Long: `List every map row ordered by the first destination id, as the
serialised source key, the source key and the destination key.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				ident := st.Identity()
				pairs := []PairView{}
				for p, err := range st.All(s.ctx) {
					if err != nil {
						return err
					}
					pairs = append(pairs, PairView(p))
				}
				return s.out.Render(pairs, func(w io.Writer) error {
					if len(pairs) == 0 {
						_, err := fmt.Fprintln(w, "No rows.")
						return err
					}
					for _, p := range pairs {
						fmt.Fprintf(w, "%s → %s\n",
							formatKeyed(ident.SourceIDs, p.Source),
							formatKeyed(ident.DestinationIDs, p.Destination))
					}
					return nil
				})
			})
		},
	}
}

// NeedsUpdateOptions holds flags for the needs-update command.
type NeedsUpdateOptions struct {
	*RootOptions
	Limit int
}

// NewNeedsUpdateCommand creates the needs-update command.
func NewNeedsUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NeedsUpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "needs-update <migration-id>",
		Short:         "List rows flagged for re-import",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				ident := st.Identity()
				rows, err := st.RowsNeedingUpdate(s.ctx, opts.Limit)
				if err != nil {
					return err
				}
				views := make([]RowView, 0, len(rows))
				for _, r := range rows {
					views = append(views, newRowView(ident, r))
				}
				return s.out.Render(views, func(w io.Writer) error {
					return writeRows(w, ident, views)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows to list (0 = all)")
	return cmd
}

// HighestIDResult is the result of highest-id.
type HighestIDResult struct {
	ID        string `json:"id"`
	HighestID int64  `json:"highest_id"`
}

// NewHighestIDCommand creates the highest-id command.
func NewHighestIDCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "highest-id <migration-id>",
		Short: "Show the largest destination id across a migration family",
		Long: `Show the largest first destination id recorded by the migration and by
every other derivative of the same base migration (ids sharing the part
before ':'). The first destination id field must be an integer.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				n, err := st.HighestID(s.ctx)
				if err != nil {
					return err
				}
				return s.out.Render(HighestIDResult{ID: args[0], HighestID: n}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, n)
					return err
				})
			})
		},
	}
}
