package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
)

// execute performs one step against st. Mutations return a nil result.
func execute(ctx context.Context, st *store.Store, step Step) (any, error) {
	ident := st.Identity()
	source := toIDs(step.Source)
	dest := toIDs(step.Destination)

	switch step.Op {
	case OpEnsure:
		return nil, st.EnsureTables(ctx)
	case OpDestroy:
		return nil, st.Destroy(ctx)

	case OpSave:
		m := store.Mapping{Source: source, Destination: dest, Hash: step.Hash}
		var err error
		if step.Status != "" {
			if m.Status, err = model.ParseStatus(step.Status); err != nil {
				return nil, err
			}
		}
		if m.RollbackAction, err = parseRollback(step.Rollback); err != nil {
			return nil, err
		}
		return nil, st.SaveIDMapping(ctx, m)

	case OpMessage:
		level, err := parseLevel(step.Level)
		if err != nil {
			return nil, err
		}
		return nil, st.SaveMessage(ctx, source, step.Message, level)
	case OpClearMessages:
		return nil, st.ClearMessages(ctx)

	case OpSetUpdate:
		return nil, st.SetUpdate(ctx, source)
	case OpPrepareUpdate:
		return nil, st.PrepareUpdate(ctx)
	case OpDelete:
		return nil, st.Delete(ctx, source, step.MessagesOnly)
	case OpDeleteDestination:
		return nil, st.DeleteDestination(ctx, dest)

	case OpRow:
		row, found, err := st.RowBySource(ctx, source)
		if err != nil {
			return nil, err
		}
		return rowView(ident, row, found), nil
	case OpRowByDestination:
		row, found, err := st.RowByDestination(ctx, dest)
		if err != nil {
			return nil, err
		}
		return rowView(ident, row, found), nil

	case OpLookup:
		tuples, err := st.LookupDestinationIDs(ctx, source)
		if err != nil {
			return nil, err
		}
		out := make([]model.Keyed, len(tuples))
		for i, t := range tuples {
			out[i] = nonNullKeyed(ident.DestinationIDs, t)
		}
		return out, nil
	case OpLookupSource:
		found, err := st.LookupSourceID(ctx, dest)
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = model.Keyed{}
		}
		return found, nil
	case OpNeedsUpdate:
		rows, err := st.RowsNeedingUpdate(ctx, step.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]model.Keyed, len(rows))
		for i, r := range rows {
			out[i] = model.ToKeyed(ident.SourceIDs, r.SourceIDs)
		}
		return out, nil

	case OpRows:
		out := []map[string]any{}
		for p, err := range st.All(ctx) {
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any{
				"key":         p.Key,
				"source":      p.Source,
				"destination": p.Destination,
			})
		}
		return out, nil

	case OpMessages:
		level, err := parseLevel(step.Level)
		if err != nil {
			return nil, err
		}
		out := []map[string]any{}
		for msg, err := range st.Messages(ctx, store.MessageFilter{Source: source, Level: level}) {
			if err != nil {
				return nil, err
			}
			view := map[string]any{"level": msg.Level.String(), "message": msg.Message}
			if src := nonNullKeyed(ident.SourceIDs, msg.SourceIDs); len(src) > 0 {
				view["source"] = src
			}
			out = append(out, view)
		}
		return out, nil

	case OpCount:
		return count(ctx, st, step.Counter)
	case OpHighestID:
		return st.HighestID(ctx)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// count reads the named counter.
func count(ctx context.Context, st *store.Store, counter string) (int64, error) {
	switch counter {
	case CounterProcessed:
		return st.ProcessedCount(ctx)
	case CounterImported:
		return st.ImportedCount(ctx)
	case CounterUpdate:
		return st.UpdateCount(ctx)
	case CounterError:
		return st.ErrorCount(ctx)
	case CounterMessage:
		return st.MessageCount(ctx)
	}
	return 0, fmt.Errorf("unknown counter %q", counter)
}

// rowView is the trace form of a map row lookup.
func rowView(ident model.Identity, row model.MapRow, found bool) map[string]any {
	if !found {
		return map[string]any{"found": false}
	}
	view := map[string]any{
		"found":           true,
		"source":          model.ToKeyed(ident.SourceIDs, row.SourceIDs),
		"destination":     nonNullKeyed(ident.DestinationIDs, row.DestinationIDs),
		"status":          row.Status.String(),
		"rollback_action": row.RollbackAction.String(),
		"last_imported":   row.LastImported,
	}
	if row.Hash != "" {
		view["hash"] = row.Hash
	}
	return view
}

// toIDs converts a YAML key into the store's calling conventions: a map is
// keyed, a list positional.
func toIDs(v any) model.IDs {
	switch t := v.(type) {
	case map[string]any:
		return model.Keyed(t)
	case []any:
		return model.Positional(t)
	}
	return nil
}

func nonNullKeyed(fields []model.FieldSpec, values []any) model.Keyed {
	out := model.Keyed{}
	for i, f := range fields {
		if i < len(values) && values[i] != nil {
			out[f.Name] = values[i]
		}
	}
	return out
}

func parseRollback(s string) (model.RollbackAction, error) {
	switch strings.ToLower(s) {
	case "", "delete":
		return model.RollbackDelete, nil
	case "preserve":
		return model.RollbackPreserve, nil
	}
	return 0, fmt.Errorf("unknown rollback action %q", s)
}

// parseLevel parses a message level; empty means unset.
func parseLevel(s string) (model.MessageLevel, error) {
	if s == "" {
		return 0, nil
	}
	return model.ParseMessageLevel(s)
}

// normalize round-trips v through JSON so values decoded from YAML and values
// scanned from the database compare equal.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sameJSON(a, b any) bool {
	na, err := normalize(a)
	if err != nil {
		return false
	}
	nb, err := normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
