package harness

// TraceEvent records one executed scenario step.
type TraceEvent struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Ref     string   `json:"ref,omitempty"`
	Outcome string   `json:"outcome"`
	Seq     int64    `json:"seq"` // store sequence after the step
	IDs     []string `json:"ids,omitempty"`
	Count   *int     `json:"count,omitempty"`
}

// Outcomes recorded in the trace.
const (
	OutcomeOK        = "ok"
	OutcomeWork      = "work_error"
	OutcomeCommit    = "commit_error"
	OutcomeViolation = "violation"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
