package harness

import (
	"github.com/roach88/npu/internal/ir"
)

// TraceEvent is one burst of a scenario trace.
type TraceEvent struct {
	Burst uint64        `json:"burst"`
	Fired []ir.NeuronID `json:"fired"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation held.
	Pass bool `json:"pass"`

	// Backend is the backend the scenario ran on.
	Backend ir.BackendKind `json:"backend"`

	// Trace contains every burst in order, silent bursts included.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectation messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(kind ir.BackendKind) *Result {
	return &Result{
		Pass:    true,
		Backend: kind,
		Trace:   []TraceEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
