package harness

import "github.com/roach88/tally/internal/ir"

// OutcomeOK is the outcome recorded for a call that succeeded.
const OutcomeOK = "ok"

// TraceEvent records one step: what was called and what came back.
// Outcome is OutcomeOK or the engine error code.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Call    string    `json:"call"`
	Args    ir.Object `json:"args,omitempty"`
	Outcome string    `json:"outcome"`
	Result  ir.Value  `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed expectation and assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
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
