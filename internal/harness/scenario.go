package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idmap/internal/model"
)

// Scenario is a scripted run against one migration's id map.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Definitions is the migration definitions directory, relative to the
	// scenario file.
	Definitions string `yaml:"definitions"`

	// Migration is the id of the migration steps operate on by default.
	Migration string `yaml:"migration"`

	// TablePrefix is prepended to every table name.
	TablePrefix string `yaml:"table_prefix,omitempty"`

	// Setup runs before the flow. Setup steps must succeed and are not
	// traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the traced list of operations.
	Flow []Step `yaml:"flow"`

	// Assertions are checked against the trace and the final tables.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one store operation.
type Step struct {
	Op string `yaml:"op"`

	// Migration overrides the scenario's migration for this step.
	Migration string `yaml:"migration,omitempty"`

	// Source and Destination are keys given as a map (by field name) or a
	// list (positional).
	Source      any `yaml:"source,omitempty"`
	Destination any `yaml:"destination,omitempty"`

	Status       string `yaml:"status,omitempty"`
	Rollback     string `yaml:"rollback,omitempty"`
	Hash         string `yaml:"hash,omitempty"`
	Message      string `yaml:"message,omitempty"`
	Level        string `yaml:"level,omitempty"`
	MessagesOnly bool   `yaml:"messages_only,omitempty"`
	Limit        int    `yaml:"limit,omitempty"`
	Counter      string `yaml:"counter,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected completion of a step.
type Expect struct {
	// Error is the expected store error code; empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is compared with the operation's result when set.
	Result any `yaml:"result,omitempty"`
}

// Assertion checks the trace or the final tables.
type Assertion struct {
	Type string `yaml:"type"`

	// Event names the store event (event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected event order (event_order).
	Events []string `yaml:"events,omitempty"`

	// Args is a subset of the event's args (event_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number (event_count, counter).
	Count int `yaml:"count,omitempty"`

	// Migration overrides the scenario's migration (final_state, counter).
	Migration string `yaml:"migration,omitempty"`

	// Counter names the store counter (counter).
	Counter string `yaml:"counter,omitempty"`

	// Where is the full source key of the row (final_state).
	Where any `yaml:"where,omitempty"`

	// Expect is a subset of the row view, or {found: false} (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
	AssertCounter       = "counter"
)

// Operation names.
const (
	OpEnsure            = "ensure"
	OpDestroy           = "destroy"
	OpSave              = "save"
	OpMessage           = "message"
	OpClearMessages     = "clear_messages"
	OpSetUpdate         = "set_update"
	OpPrepareUpdate     = "prepare_update"
	OpDelete            = "delete"
	OpDeleteDestination = "delete_destination"
	OpRow               = "row"
	OpRowByDestination  = "row_by_destination"
	OpLookup            = "lookup"
	OpLookupSource      = "lookup_source"
	OpNeedsUpdate       = "needs_update"
	OpRows              = "rows"
	OpMessages          = "messages"
	OpCount             = "count"
	OpHighestID         = "highest_id"
)

// Counter names shared by the count operation and the counter assertion.
const (
	CounterProcessed = "processed"
	CounterImported  = "imported"
	CounterUpdate    = "update"
	CounterError     = "error"
	CounterMessage   = "message"
)

var validOps = map[string]bool{
	OpEnsure: true, OpDestroy: true, OpSave: true, OpMessage: true,
	OpClearMessages: true, OpSetUpdate: true, OpPrepareUpdate: true,
	OpDelete: true, OpDeleteDestination: true, OpRow: true,
	OpRowByDestination: true, OpLookup: true, OpLookupSource: true,
	OpNeedsUpdate: true, OpRows: true, OpMessages: true, OpCount: true,
	OpHighestID: true,
}

var validCounters = map[string]bool{
	CounterProcessed: true, CounterImported: true, CounterUpdate: true,
	CounterError: true, CounterMessage: true,
}

// LoadScenario reads a scenario file. Unknown fields are rejected, and the
// definitions directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) {
		scenario.Definitions = filepath.Join(filepath.Dir(path), scenario.Definitions)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definitions == "" {
		return fmt.Errorf("definitions is required")
	}
	if info, err := os.Stat(s.Definitions); err != nil || !info.IsDir() {
		return fmt.Errorf("definitions directory not found: %s", s.Definitions)
	}
	if s.Migration == "" {
		return fmt.Errorf("migration is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("%s: op is required", where)
	}
	if !validOps[step.Op] {
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	if step.Op == OpCount && !validCounters[step.Counter] {
		return fmt.Errorf("%s: count needs a counter (processed|imported|update|error|message), got %q", where, step.Counter)
	}
	if step.Op == OpMessage && step.Message == "" {
		return fmt.Errorf("%s: message is required", where)
	}
	if step.Status != "" {
		if _, err := model.ParseStatus(step.Status); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}
	if _, err := parseRollback(step.Rollback); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	if _, err := parseLevel(step.Level); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if a.Where == nil {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCounter:
		if !validCounters[a.Counter] {
			return fmt.Errorf("assertions[%d]: unknown counter %q", index, a.Counter)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
