package harness

// Trace entry types.
const (
	TypeInvocation = "invocation"
	TypeEvent      = "event"
	TypeCompletion = "completion"
)

// Store event names as they appear in a trace.
const (
	EventRowSaved     = "row_saved"
	EventMessageSaved = "message_saved"
	EventBeforeDelete = "before_delete"
	EventRefused      = "refused"
)

// OutcomeOK is the completion outcome of an operation that returned no error.
const OutcomeOK = "ok"

// TraceEvent is one entry of a run's trace: an operation invocation, a store
// event it caused, or its completion.
type TraceEvent struct {
	Type    string         `json:"type"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Result  any            `json:"result,omitempty"`
	Seq     int64          `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the flow's invocations, events and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the store events of the trace in order.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == TypeEvent {
			out = append(out, e)
		}
	}
	return out
}
