package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/partial_lookup.yaml")
	require.NoError(t, err)

	assert.Equal(t, "partial_lookup", s.Name)
	assert.Equal(t, "d7_node_translation:article", s.Migration)
	assert.Equal(t, filepath.Join("testdata", "definitions"), s.Definitions)
	require.Len(t, s.Setup, 3)
	assert.Equal(t, map[string]any{"language": "en", "nid": 1}, s.Setup[0].Source)

	require.Len(t, s.Flow, 7)
	assert.Equal(t, []any{"en", 1}, s.Flow[2].Source, "lists stay positional")
	assert.Equal(t, "UNKNOWN_KEY_FIELDS", s.Flow[3].Expect.Error)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	_, err := LoadScenario("testdata/invalid/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sorce")
}

func TestLoadScenario_UnknownOp(t *testing.T) {
	_, err := LoadScenario("testdata/invalid/unknown_op.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `flow[0]: unknown op "truncate"`)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	defs, err := filepath.Abs("testdata/definitions")
	require.NoError(t, err)

	valid := func() Scenario {
		return Scenario{
			Name:        "s",
			Description: "d",
			Definitions: defs,
			Migration:   "d7_node",
			Flow:        []Step{{Op: OpEnsure}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		errMsg string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no definitions", func(s *Scenario) { s.Definitions = "" }, "definitions is required"},
		{"missing definitions", func(s *Scenario) { s.Definitions = filepath.Join(defs, "nope") }, "definitions directory not found"},
		{"no migration", func(s *Scenario) { s.Migration = "" }, "migration is required"},
		{"empty flow", func(s *Scenario) { s.Flow = nil }, "flow list is required"},
		{"empty op", func(s *Scenario) { s.Flow[0].Op = "" }, "flow[0]: op is required"},
		{"bad setup", func(s *Scenario) { s.Setup = []Step{{Op: OpSave, Status: "done"}} }, `setup[0]: unknown status "done"`},
		{"bad rollback", func(s *Scenario) { s.Flow[0].Rollback = "keep" }, `unknown rollback action "keep"`},
		{"bad level", func(s *Scenario) { s.Flow[0].Level = "loud" }, `unknown message level "loud"`},
		{"count without counter", func(s *Scenario) { s.Flow[0] = Step{Op: OpCount} }, "count needs a counter"},
		{"message without text", func(s *Scenario) { s.Flow[0] = Step{Op: OpMessage} }, "message is required"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "assertions[0]: type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "trace_contains"}} }, "unknown assertion type"},
		{"event_contains without event", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertEventContains}} }, "event is required"},
		{"event_order without events", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertEventOrder}} }, "events list is required"},
		{"negative event_count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertEventCount, Event: EventRowSaved, Count: -1}}
		}, "count must be non-negative"},
		{"final_state without where", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalState, Expect: map[string]any{"status": "imported"}}}
		}, "where is required"},
		{"final_state without expect", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalState, Where: map[string]any{"nid": 1}}}
		}, "expect is required"},
		{"unknown counter", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertCounter, Counter: "rows"}}
		}, `unknown counter "rows"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateScenario(&s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_AbsoluteDefinitions(t *testing.T) {
	defs, err := filepath.Abs("testdata/definitions")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "abs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: abs
description: "Absolute definitions path"
definitions: `+defs+`
migration: d7_node
flow:
  - op: ensure
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, defs, s.Definitions)
}
