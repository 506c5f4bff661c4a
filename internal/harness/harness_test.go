package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{
		"upsert_replaces_destination",
		"messages_lifecycle",
		"refused_saves",
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, loadScenario(t, name)))
		})
	}
}

func TestRun_AllScenariosPass(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadScenario(t, "partial_lookup")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_SetupIsNotTraced(t *testing.T) {
	result, err := Run(loadScenario(t, "partial_lookup"))
	require.NoError(t, err)

	require.NotEmpty(t, result.Trace)
	assert.Equal(t, TypeInvocation, result.Trace[0].Type)
	assert.Equal(t, OpLookup, result.Trace[0].Op)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Empty(t, result.Events(), "lookups cause no store events")
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := loadScenario(t, "upsert_replaces_destination")
	s.Flow = append(s.Flow,
		Step{Op: OpCount, Counter: CounterProcessed, Expect: &Expect{Result: 2}},
		Step{Op: OpDelete, Source: map[string]any{"nid": 1}, Expect: &Expect{Error: "EMPTY_SOURCE_KEY"}},
		Step{Op: OpDelete, Source: map[string]any{"vid": 1}},
		Step{Op: OpLookup, Source: map[string]any{"vid": 1}, Expect: &Expect{Error: "EMPTY_SOURCE_KEY"}},
	)
	s.Assertions = []Assertion{{Type: AssertEventCount, Event: EventBeforeDelete, Count: 3}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "flow[4] count: result mismatch: expected 2, got 1")
	assert.Contains(t, result.Errors[1], "flow[5] delete: expected error EMPTY_SOURCE_KEY, got success")
	assert.Contains(t, result.Errors[2], "flow[6] delete: unexpected error")
	assert.Contains(t, result.Errors[3], "expected error EMPTY_SOURCE_KEY, got UNKNOWN_KEY_FIELDS")
	assert.Contains(t, result.Errors[4], "assertion[0] event_count: expected 3 before_delete event(s), got 1")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s := loadScenario(t, "messages_lifecycle")
	s.Setup = []Step{{Op: OpDelete, Source: map[string]any{}}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
	assert.Contains(t, err.Error(), "setup step 0 (delete)")
}

func TestRun_UnknownMigration(t *testing.T) {
	s := loadScenario(t, "messages_lifecycle")
	s.Flow[0].Migration = "d6_node"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown migration "d6_node"`)
}

func TestRun_TablePrefix(t *testing.T) {
	s := loadScenario(t, "upsert_replaces_destination")
	s.TablePrefix = "legacy_"

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvocationWithoutArgsOmitsArgs(t *testing.T) {
	result, err := Run(loadScenario(t, "messages_lifecycle"))
	require.NoError(t, err)

	var clear *TraceEvent
	for i, e := range result.Trace {
		if e.Type == TypeInvocation && e.Op == OpClearMessages {
			clear = &result.Trace[i]
		}
	}
	require.NotNil(t, clear)
	assert.Nil(t, clear.Args)

	data, err := json.Marshal(clear)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"args"`)
}
