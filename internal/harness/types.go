package harness

// TraceEvent is an engine trace event with ids resolved to names.
// Empty fields are omitted from golden snapshots.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	State   string `json:"state,omitempty"`
	Other   string `json:"other,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Phase   string `json:"phase"`
	AtMS    int64  `json:"at_ms"`
	Detail  string `json:"detail,omitempty"`
}

// Token renders the event as "kind:state", the form trace_order uses.
func (e TraceEvent) Token() string {
	if e.State == "" {
		return e.Kind
	}
	return e.Kind + ":" + e.State
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// RunID is the id the trace was recorded under.
	RunID string `json:"run_id"`

	// Trace contains every event the machine emitted, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	FinalState string         `json:"final_state"`
	FinalPhase string         `json:"final_phase"`
	Counters   map[string]int `json:"counters"`

	// Halt is the halting error message when the machine panicked.
	Halt string `json:"halt,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Counters: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
