package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceOf(events ...TraceEvent) *Result {
	r := NewResult()
	for i, e := range events {
		e.Seq = int64(i + 1)
		r.Trace = append(r.Trace, e)
	}
	return r
}

func event(name string, args map[string]any) TraceEvent {
	return TraceEvent{Type: TypeEvent, Op: name, Args: args}
}

func TestAssertEventContains(t *testing.T) {
	r := traceOf(
		TraceEvent{Type: TypeInvocation, Op: OpSave, Args: map[string]any{"source": map[string]any{"nid": 1}}},
		event(EventRowSaved, map[string]any{"source": map[string]any{"nid": int64(1)}, "status": "imported"}),
	)

	assert.NoError(t, assertEventContains(r, EventRowSaved, nil))
	assert.NoError(t, assertEventContains(r, EventRowSaved, map[string]any{"source": map[string]any{"nid": 1}}),
		"numeric types compare by value")
	assert.NoError(t, assertEventContains(r, EventRowSaved, map[string]any{"status": "imported"}))

	err := assertEventContains(r, EventRowSaved, map[string]any{"status": "failed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no row_saved event with args {"status":"failed"}`)

	err = assertEventContains(r, EventBeforeDelete, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no before_delete event")
}

func TestAssertEventOrder(t *testing.T) {
	r := traceOf(
		event(EventRefused, nil),
		event(EventRowSaved, nil),
		event(EventMessageSaved, nil),
		event(EventBeforeDelete, nil),
	)

	assert.NoError(t, assertEventOrder(r, []string{EventRefused, EventBeforeDelete}))
	assert.NoError(t, assertEventOrder(r, []string{EventRowSaved, EventMessageSaved, EventBeforeDelete}))

	err := assertEventOrder(r, []string{EventBeforeDelete, EventRowSaved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing row_saved after it")
}

func TestAssertEventCount(t *testing.T) {
	r := traceOf(
		event(EventRowSaved, nil),
		TraceEvent{Type: TypeCompletion, Op: EventRowSaved},
		event(EventRowSaved, nil),
	)

	assert.NoError(t, assertEventCount(r, EventRowSaved, 2), "only events count")
	assert.NoError(t, assertEventCount(r, EventRefused, 0))
	assert.Error(t, assertEventCount(r, EventRowSaved, 1))
}

func TestSubsetMatch(t *testing.T) {
	got := map[string]any{
		"found":       true,
		"status":      "imported",
		"destination": map[string]any{"nid": int64(101), "langcode": "en"},
	}

	assert.True(t, subsetMatch(map[string]any{"status": "imported"}, got))
	assert.True(t, subsetMatch(map[string]any{"destination": map[string]any{"nid": 101}}, got))
	assert.False(t, subsetMatch(map[string]any{"destination": map[string]any{"nid": 102}}, got))
	assert.False(t, subsetMatch(map[string]any{"hash": "x"}, got))
	assert.False(t, subsetMatch(map[string]any{"status": "imported"}, []any{got}))
}

func TestAssertionsWithoutStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Where: map[string]any{"nid": 1}, Expect: map[string]any{"found": false}},
		{Type: AssertCounter, Counter: CounterProcessed},
	}, &AssertionContext{Ctx: context.Background()})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion[0] final_state: no store available")
	assert.Contains(t, errs[1], "assertion[1] counter: no store available")
}

func TestFinalStateMismatch(t *testing.T) {
	s := loadScenario(t, "upsert_replaces_destination")
	s.Assertions = []Assertion{
		{Type: AssertFinalState, Where: map[string]any{"nid": 1}, Expect: map[string]any{"status": "failed"}},
		{Type: AssertFinalState, Where: map[string]any{"nid": 2}, Expect: map[string]any{"found": false}},
		{Type: AssertFinalState, Where: map[string]any{"vid": 2}, Expect: map[string]any{"found": false}},
		{Type: AssertCounter, Counter: CounterImported, Count: 1},
	}

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `assertion[0] final_state: row {"nid":1}: expected {"status":"failed"}`)
	assert.Contains(t, result.Errors[1], "assertion[2] final_state: reading row")
}
