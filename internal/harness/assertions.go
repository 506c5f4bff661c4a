package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/idmap/internal/store"
)

// AssertionContext gives assertions access to the tables after the flow.
type AssertionContext struct {
	Ctx context.Context

	// Store returns the store of a migration; "" means the scenario's
	// migration. Nil disables final_state and counter assertions.
	Store func(id string) (*store.Store, error)
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEventContains:
		return assertEventContains(result, a.Event, a.Args)
	case AssertEventOrder:
		return assertEventOrder(result, a.Events)
	case AssertEventCount:
		return assertEventCount(result, a.Event, a.Count)
	case AssertFinalState:
		return assertFinalState(actx, a)
	case AssertCounter:
		return assertCounter(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEventContains checks that some event named name carries args.
func assertEventContains(result *Result, name string, args map[string]any) error {
	for _, e := range result.Events() {
		if e.Op != name {
			continue
		}
		if len(args) == 0 || subsetMatch(args, e.Args) {
			return nil
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("no %s event in trace", name)
	}
	return fmt.Errorf("no %s event with args %s in trace", name, mustJSON(args))
}

// assertEventOrder checks that the named events occur in order, not
// necessarily adjacent.
func assertEventOrder(result *Result, names []string) error {
	next := 0
	for _, e := range result.Events() {
		if next < len(names) && e.Op == names[next] {
			next++
		}
	}
	if next < len(names) {
		return fmt.Errorf("events not in order: found %s, missing %s after it",
			strings.Join(names[:next], ", "), names[next])
	}
	return nil
}

// assertEventCount checks that exactly n events are named name.
func assertEventCount(result *Result, name string, n int) error {
	got := 0
	for _, e := range result.Events() {
		if e.Op == name {
			got++
		}
	}
	if got != n {
		return fmt.Errorf("expected %d %s event(s), got %d", n, name, got)
	}
	return nil
}

// assertFinalState checks the map row of the Where key against Expect.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("no store available")
	}
	st, err := actx.Store(a.Migration)
	if err != nil {
		return err
	}
	row, found, err := st.RowBySource(actx.Ctx, toIDs(a.Where))
	if err != nil {
		return fmt.Errorf("reading row %s: %w", mustJSON(a.Where), err)
	}
	view := rowView(st.Identity(), row, found)
	if !subsetMatch(a.Expect, view) {
		return fmt.Errorf("row %s: expected %s, got %s", mustJSON(a.Where), mustJSON(a.Expect), mustJSON(view))
	}
	return nil
}

// assertCounter checks a store counter.
func assertCounter(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("no store available")
	}
	st, err := actx.Store(a.Migration)
	if err != nil {
		return err
	}
	n, err := count(actx.Ctx, st, a.Counter)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return fmt.Errorf("expected %s count %d, got %d", a.Counter, a.Count, n)
	}
	return nil
}

// subsetMatch reports whether every key of want is in got with an equal
// value. Nested maps in want are matched as subsets too.
func subsetMatch(want map[string]any, got any) bool {
	norm, err := normalize(got)
	if err != nil {
		return false
	}
	gotMap, ok := norm.(map[string]any)
	if !ok {
		return false
	}
	for k, wv := range want {
		gv, present := gotMap[k]
		if !present {
			return false
		}
		if wm, ok := wv.(map[string]any); ok {
			if !subsetMatch(wm, gv) {
				return false
			}
			continue
		}
		if !sameJSON(wv, gv) {
			return false
		}
	}
	return true
}
