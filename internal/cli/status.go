package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// MigrationStatus holds the counters of one migration.
type MigrationStatus struct {
	ID          string `json:"id"`
	MapTable    string `json:"map_table"`
	Processed   int64  `json:"processed"`
	Imported    int64  `json:"imported"`
	NeedsUpdate int64  `json:"needs_update"`
	Failed      int64  `json:"failed"`
	Messages    int64  `json:"messages"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [migration-id...]",
		Short: "Show row counters per migration",
		Long: `Show processed, imported, needs-update, failed and message counts.

With no ids, every defined migration is reported. Migrations whose tables
do not exist yet report zero; status never creates tables.

Examples:
  idmap status
  idmap status d7_node:article --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, true, func(s *session) error {
				return runStatus(s, args)
			})
		},
	}
}

func runStatus(s *session, ids []string) error {
	if len(ids) == 0 {
		ids = s.catalog.IDs()
	}

	statuses := make([]MigrationStatus, 0, len(ids))
	for _, id := range ids {
		st, err := s.store(id)
		if err != nil {
			return err
		}
		ms := MigrationStatus{ID: id, MapTable: st.MapTable()}
		counters := []struct {
			dst *int64
			fn  func() (int64, error)
		}{
			{&ms.Processed, func() (int64, error) { return st.ProcessedCount(s.ctx) }},
			{&ms.Imported, func() (int64, error) { return st.ImportedCount(s.ctx) }},
			{&ms.NeedsUpdate, func() (int64, error) { return st.UpdateCount(s.ctx) }},
			{&ms.Failed, func() (int64, error) { return st.ErrorCount(s.ctx) }},
			{&ms.Messages, func() (int64, error) { return st.MessageCount(s.ctx) }},
		}
		for _, c := range counters {
			n, err := c.fn()
			if err != nil {
				return err
			}
			*c.dst = n
		}
		statuses = append(statuses, ms)
	}

	return s.out.Render(statuses, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MIGRATION\tPROCESSED\tIMPORTED\tNEEDS UPDATE\tFAILED\tMESSAGES")
		for _, ms := range statuses {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
				ms.ID, ms.Processed, ms.Imported, ms.NeedsUpdate, ms.Failed, ms.Messages)
		}
		return tw.Flush()
	})
}
