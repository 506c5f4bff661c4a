package harness

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/idmap/internal/catalog"
	"github.com/roach88/idmap/internal/dialect"
	"github.com/roach88/idmap/internal/model"
	"github.com/roach88/idmap/internal/store"
	"github.com/roach88/idmap/internal/testutil"
)

// Harness executes one scenario. It owns the database, the stores opened on
// it and the trace being recorded.
type Harness struct {
	db       *sql.DB
	dialect  dialect.Dialect
	catalog  *catalog.Catalog
	prefix   string
	clock    *testutil.FixedClock
	logger   *slog.Logger
	stores   map[string]*store.Store
	result   *Result
	seq      int64
	tracing  bool
	fallback string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a clock fixed at
// testutil.DefaultEpoch:
//  1. Load the definitions
//  2. Execute setup steps; any failure aborts the run
//  3. Execute flow steps, tracing each one and checking its expect clause
//  4. Evaluate assertions
//
// The returned error reports a run that could not be carried out; failed
// expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cat, err := catalog.Load(scenario.Definitions)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	db, d, err := dialect.Open(ctx, "sqlite://:memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()

	h := &Harness{
		db:       db,
		dialect:  d,
		catalog:  cat,
		prefix:   scenario.TablePrefix,
		clock:    testutil.NewFixedClock(time.Time{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		stores:   make(map[string]*store.Store),
		result:   NewResult(),
		fallback: scenario.Migration,
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Store: h.store}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// store returns the store of migration id, or of the scenario's migration
// when id is empty.
func (h *Harness) store(id string) (*store.Store, error) {
	if id == "" {
		id = h.fallback
	}
	if st, ok := h.stores[id]; ok {
		return st, nil
	}
	ident, err := h.catalog.Identity(id)
	if err != nil {
		return nil, err
	}
	st, err := store.New(h.db, h.dialect, ident,
		store.WithTablePrefix(h.prefix),
		store.WithClock(h.clock),
		store.WithLogger(h.logger),
		store.WithListener(&recorder{h: h, ident: ident}),
		store.WithMessenger(&recorder{h: h, ident: ident}),
		store.WithSiblings(h.catalog),
	)
	if err != nil {
		return nil, err
	}
	h.stores[id] = st
	return st, nil
}

func (h *Harness) trace(e TraceEvent) {
	if !h.tracing {
		return
	}
	h.seq++
	e.Seq = h.seq
	h.result.Trace = append(h.result.Trace, e)
}

// executeSetup runs the setup steps untraced. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	h.tracing = false
	for i, step := range setup {
		st, err := h.store(step.Migration)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if _, err := execute(ctx, st, step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}
	return nil
}

// executeFlow runs the flow steps and checks each expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []Step) error {
	h.tracing = true
	for i, step := range flow {
		st, err := h.store(step.Migration)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		h.trace(TraceEvent{Type: TypeInvocation, Op: step.Op, Args: stepArgs(step)})
		res, err := execute(ctx, st, step)

		outcome := OutcomeOK
		if err != nil {
			outcome = string(store.CodeOf(err))
			if outcome == "" {
				outcome = "ERROR"
			}
		}
		h.trace(TraceEvent{Type: TypeCompletion, Op: step.Op, Outcome: outcome, Result: res})
		h.check(i, step, outcome, res, err)

		h.logger.Info("flow step completed", "step", i, "op", step.Op, "outcome", outcome)
	}
	return nil
}

// check compares a completed step with its expect clause.
func (h *Harness) check(i int, step Step, outcome string, res any, err error) {
	var want Expect
	if step.Expect != nil {
		want = *step.Expect
	}
	switch {
	case err != nil && want.Error == "":
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Op, err))
	case err != nil && want.Error != outcome:
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s (%v)", i, step.Op, want.Error, outcome, err))
	case err == nil && want.Error != "":
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got success", i, step.Op, want.Error))
	case err == nil && want.Result != nil && !sameJSON(want.Result, res):
		h.result.AddError(fmt.Sprintf("flow[%d] %s: result mismatch: expected %s, got %s",
			i, step.Op, mustJSON(want.Result), mustJSON(res)))
	}
}

// stepArgs is the invocation's args as shown in the trace.
func stepArgs(step Step) map[string]any {
	args := map[string]any{}
	set := func(k string, v any, present bool) {
		if present {
			args[k] = v
		}
	}
	set("migration", step.Migration, step.Migration != "")
	set("source", step.Source, step.Source != nil)
	set("destination", step.Destination, step.Destination != nil)
	set("status", step.Status, step.Status != "")
	set("rollback", step.Rollback, step.Rollback != "")
	set("hash", step.Hash, step.Hash != "")
	set("message", step.Message, step.Message != "")
	set("level", step.Level, step.Level != "")
	set("messages_only", step.MessagesOnly, step.MessagesOnly)
	set("limit", step.Limit, step.Limit != 0)
	set("counter", step.Counter, step.Counter != "")
	if len(args) == 0 {
		return nil
	}
	return args
}

// recorder traces store events and refused saves of one migration.
type recorder struct {
	h     *Harness
	ident model.Identity
}

func (r *recorder) OnRowSaved(_ context.Context, e store.RowSavedEvent) {
	args := map[string]any{
		"source": columnsToKeyed(r.ident.SourceIDs, "sourceid", e.Fields),
	}
	if dest := columnsToKeyed(r.ident.DestinationIDs, "destid", e.Fields); len(dest) > 0 {
		args["destination"] = dest
	}
	if v, ok := e.Fields["source_row_status"].(int); ok {
		args["status"] = model.Status(v).String()
	}
	if v, ok := e.Fields["rollback_action"].(int); ok {
		args["rollback_action"] = model.RollbackAction(v).String()
	}
	if r.h.fallback != e.MigrationID {
		args["migration"] = e.MigrationID
	}
	r.h.trace(TraceEvent{Type: TypeEvent, Op: EventRowSaved, Args: args})
}

func (r *recorder) OnMessageSaved(_ context.Context, e store.MessageSavedEvent) {
	r.h.trace(TraceEvent{Type: TypeEvent, Op: EventMessageSaved, Args: map[string]any{
		"source":  e.SourceIDs,
		"message": e.Message,
		"level":   e.Level.String(),
	}})
}

func (r *recorder) OnBeforeDelete(_ context.Context, e store.DeleteEvent) {
	r.h.trace(TraceEvent{Type: TypeEvent, Op: EventBeforeDelete, Args: map[string]any{
		"source": e.SourceIDs,
	}})
}

func (r *recorder) Display(_ context.Context, msg string, level model.MessageLevel) {
	r.h.trace(TraceEvent{Type: TypeEvent, Op: EventRefused, Args: map[string]any{
		"message": msg,
		"level":   level.String(),
	}})
}

// columnsToKeyed reads the numbered id columns (sourceid1, destid1, ...) of a
// saved row back into a keyed tuple, leaving out absent and null columns.
func columnsToKeyed(fields []model.FieldSpec, prefix string, cols map[string]any) model.Keyed {
	out := model.Keyed{}
	for i, f := range fields {
		if v, ok := cols[fmt.Sprintf("%s%d", prefix, i+1)]; ok && v != nil {
			out[f.Name] = v
		}
	}
	return out
}
