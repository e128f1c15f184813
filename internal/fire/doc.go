// Package fire holds the per-step data structures of the burst engine.
//
//   - FCL (Fire Candidate List): target neuron -> accumulated incoming
//     potential. Filled by propagation and sensory injection, consumed by
//     dynamics, cleared at the start of every step.
//   - FireQueue: the neurons that fired in one step, tagged with the burst.
//   - FireLedger: a per-area sliding window of recent fired sets for
//     consumers that look back in time.
//
// FCL and FireQueue have an optional fixed capacity. What happens when it
// is exceeded is chosen by an OverflowPolicy: PolicyReject drops the
// overflowing entry and counts it, PolicyFail returns an error. Neither
// policy alters entries already present.
package fire

import (
	"errors"
	"fmt"
	"strings"
)

// OverflowPolicy decides what happens when a capacity is exceeded.
type OverflowPolicy string

const (
	// PolicyReject drops entries that do not fit and counts them.
	PolicyReject OverflowPolicy = "reject"
	// PolicyFail aborts the operation with an overflow error.
	PolicyFail OverflowPolicy = "fail"
)

// ParseOverflowPolicy validates a policy name; empty selects PolicyReject.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q (want reject or fail)", s)
	}
}

var (
	// ErrFCLOverflow is returned under PolicyFail when a new FCL entry
	// would exceed capacity.
	ErrFCLOverflow = errors.New("fire candidate list capacity exceeded")

	// ErrFireQueueOverflow is returned under PolicyFail when the fire
	// queue is full.
	ErrFireQueueOverflow = errors.New("fire queue capacity exceeded")
)
