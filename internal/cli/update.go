package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
)

// ChangeResult reports a mutation.
type ChangeResult struct {
	ID     string      `json:"id"`
	Action string      `json:"action"`
	Key    model.Keyed `json:"key,omitempty"`
}

func renderChange(s *session, res ChangeResult, fields []model.FieldSpec) error {
	return s.out.Render(res, func(w io.Writer) error {
		if res.Key == nil {
			_, err := fmt.Fprintf(w, "✓ %s: %s\n", res.ID, res.Action)
			return err
		}
		_, err := fmt.Fprintf(w, "✓ %s: %s %s\n", res.ID, res.Action, formatKeyed(fields, res.Key))
		return err
	})
}

// NewPrepareUpdateCommand creates the prepare-update command.
func NewPrepareUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "prepare-update <migration-id>",
		Short:         "Flag every row of a migration for re-import",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				if err := st.PrepareUpdate(s.ctx); err != nil {
					return err
				}
				return renderChange(s, ChangeResult{ID: args[0], Action: "all rows flagged for update"}, nil)
			})
		},
	}
}

// NewSetUpdateCommand creates the set-update command.
func NewSetUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-update <migration-id> name=value...",
		Short:         "Flag one source row for re-import",
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
				if err := st.SetUpdate(s.ctx, source); err != nil {
					return err
				}
				return renderChange(s, ChangeResult{ID: args[0], Action: "flagged for update", Key: source}, ident.SourceIDs)
			})
		},
	}
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	MessagesOnly bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <migration-id> name=value...",
		Short: "Delete the map row and messages of a source key",
		Long: `Delete the map row of a full source key together with its messages.
With --messages-only the map row is kept.`,
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
				if err := st.Delete(s.ctx, source, opts.MessagesOnly); err != nil {
					return err
				}
				action := "deleted"
				if opts.MessagesOnly {
					action = "deleted messages of"
				}
				return renderChange(s, ChangeResult{ID: args[0], Action: action, Key: source}, ident.SourceIDs)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.MessagesOnly, "messages-only", false, "delete only the messages")
	return cmd
}

// NewDeleteDestinationCommand creates the delete-destination command.
func NewDeleteDestinationCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete-destination <migration-id> name=value...",
		Short:         "Delete the map row and messages recorded for a destination key",
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
				if err := st.DeleteDestination(s.ctx, dest); err != nil {
					return err
				}
				return renderChange(s, ChangeResult{ID: args[0], Action: "deleted destination", Key: dest}, ident.DestinationIDs)
			})
		},
	}
}
