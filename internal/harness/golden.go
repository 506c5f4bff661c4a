package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden file content of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Migration    string       `json:"migration"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden runs a scenario, fails the test on any failed expectation
// and compares the trace with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return assertGolden(t, scenario.Name, TraceSnapshot{
		ScenarioName: scenario.Name,
		Migration:    scenario.Migration,
		Trace:        result.Trace,
	})
}

// AssertGolden compares an existing result's trace with a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGolden(t, scenarioName, TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace})
}

func assertGolden(t *testing.T, name string, snapshot TraceSnapshot) error {
	t.Helper()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
