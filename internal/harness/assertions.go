package harness

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Burst    uint64        // Burst the assertion was checked after
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Fired    []ir.NeuronID // The burst's Fire Queue for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (burst %d)\n", e.Type, e.Burst)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "  Fired: %v", e.Fired)
	return buf.String()
}

// NeuronReader is the part of engine.Runner that assertions read.
type NeuronReader interface {
	Neuron(id ir.NeuronID) state.NeuronState
}

var _ NeuronReader = engine.Runner(nil)

// evaluate checks one assertion against a completed burst.
func evaluate(a Assertion, res *engine.StepResult, n NeuronReader) error {
	fired := make([]ir.NeuronID, len(res.Fired))
	for i, f := range res.Fired {
		fired[i] = f.ID
	}
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Burst: res.Burst, Expected: expected, Actual: actual, Fired: fired}
	}

	switch a.Type {
	case AssertFires:
		var missing []ir.NeuronID
		for _, id := range a.Neurons {
			if !slices.Contains(fired, id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return fail(fmt.Sprintf("neurons %v fire", a.Neurons), fmt.Sprintf("%v did not fire", missing))
		}

	case AssertSilent:
		var extra []ir.NeuronID
		for _, id := range a.Neurons {
			if slices.Contains(fired, id) {
				extra = append(extra, id)
			}
		}
		if len(extra) > 0 {
			return fail(fmt.Sprintf("neurons %v stay silent", a.Neurons), fmt.Sprintf("%v fired", extra))
		}

	case AssertFiredCount:
		if len(fired) != *a.Count {
			return fail(fmt.Sprintf("%d neurons fire", *a.Count), fmt.Sprintf("%d fired", len(fired)))
		}

	case AssertPotential:
		eps := a.Epsilon
		if eps == 0 {
			eps = DefaultEpsilon
		}
		got := float64(n.Neuron(*a.Neuron).Potential)
		if math.IsNaN(got) || math.Abs(got-a.Value) > eps {
			return fail(fmt.Sprintf("neuron %d potential %g ± %g", *a.Neuron, a.Value, eps), fmt.Sprintf("%g", got))
		}

	case AssertCountdown:
		got := int(n.Neuron(*a.Neuron).RefractoryCountdown)
		if got != *a.Count {
			return fail(fmt.Sprintf("neuron %d refractory countdown %d", *a.Neuron, *a.Count), fmt.Sprintf("%d", got))
		}

	case AssertFireCount:
		got := int(n.Neuron(*a.Neuron).ConsecutiveFireCount)
		if got != *a.Count {
			return fail(fmt.Sprintf("neuron %d consecutive fire count %d", *a.Neuron, *a.Count), fmt.Sprintf("%d", got))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(assertions []Assertion, res *engine.StepResult, n NeuronReader) []string {
	var errors []string
	for _, a := range assertions {
		if err := evaluate(a, res, n); err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
