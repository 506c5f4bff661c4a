package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
)

// MessageView is one message with its map row's keys.
type MessageView struct {
	MsgID         int64       `json:"msgid"`
	Level         string      `json:"level"`
	Message       string      `json:"message"`
	SourceIDsHash string      `json:"source_ids_hash"`
	Source        model.Keyed `json:"source,omitempty"`
	Destination   model.Keyed `json:"destination,omitempty"`
}

// MessagesOptions holds flags for the messages command.
type MessagesOptions struct {
	*RootOptions
	Level string
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "messages <migration-id> [name=value...]",
		Short: "List the messages of a migration",
		Long: `List messages in the order they were saved, with the source and
destination keys of the map row each one belongs to.

Give a full source key as name=value arguments to list one row's messages.

Examples:
  idmap messages d7_node:article
  idmap messages d7_node:article nid=42 --level error`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				return runMessages(s, st, opts, args[1:])
			})
		},
	}
	cmd.Flags().StringVar(&opts.Level, "level", "", "only this level (error|warning|notice|status)")
	return cmd
}

func runMessages(s *session, st *store.Store, opts *MessagesOptions, keyArgs []string) error {
	ident := st.Identity()
	var filter store.MessageFilter
	if opts.Level != "" {
		level, err := model.ParseMessageLevel(opts.Level)
		if err != nil {
			return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeArguments, Message: "invalid --level", Err: err}
		}
		filter.Level = level
	}
	if len(keyArgs) > 0 {
		source, err := parseKeyValues(ident.SourceIDs, keyArgs)
		if err != nil {
			return err
		}
		filter.Source = source
	}

	views := []MessageView{}
	for msg, err := range st.Messages(s.ctx, filter) {
		if err != nil {
			return err
		}
		v := MessageView{
			MsgID:         msg.MsgID,
			Level:         msg.Level.String(),
			Message:       msg.Message,
			SourceIDsHash: msg.SourceIDsHash,
		}
		if !allNil(msg.SourceIDs) {
			v.Source = model.ToKeyed(ident.SourceIDs, msg.SourceIDs)
			v.Destination = nonNullKeyed(ident.DestinationIDs, msg.DestinationIDs)
		}
		views = append(views, v)
	}

	return s.out.Render(views, func(w io.Writer) error {
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "No messages.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MSGID\tLEVEL\tSOURCE\tDESTINATION\tMESSAGE")
		for _, v := range views {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.MsgID, v.Level,
				formatKeyed(ident.SourceIDs, v.Source),
				formatKeyed(ident.DestinationIDs, v.Destination),
				v.Message)
		}
		return tw.Flush()
	})
}

// NewClearMessagesCommand creates the clear-messages command.
func NewClearMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear-messages <migration-id>",
		Short:         "Delete every message of a migration",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, args[0], func(s *session, st *store.Store) error {
				if err := st.ClearMessages(s.ctx); err != nil {
					return err
				}
				return s.out.Render(TablesResult{ID: args[0], MapTable: st.MapTable(), MessageTable: st.MessageTable()},
					func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "✓ Cleared %s\n", st.MessageTable())
						return err
					})
			})
		},
	}
}

func allNil(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

// nonNullKeyed pairs values with field names, leaving out nil values.
func nonNullKeyed(fields []model.FieldSpec, values []any) model.Keyed {
	out := model.Keyed{}
	for i, f := range fields {
		if i < len(values) && values[i] != nil {
			out[f.Name] = values[i]
		}
	}
	return out
}
