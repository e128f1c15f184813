// Package state holds the neuron and synapse stores the burst engine
// mutates.
//
// Both stores are structure-of-arrays with a fixed capacity chosen at
// construction. Ids are dense slot indexes; slots are never reused, and a
// removed neuron or synapse is tombstoned through its validity flag so
// stale references elsewhere resolve to an inert slot.
//
// ARCHITECTURE:
//
//	NeuronArray[T]  per-neuron parameters and mutable state, generic over
//	                the membrane value type
//	SynapseArray    per-synapse source, target, weight, psp and type
//	SourceIndex     source neuron -> outgoing synapse slots, rebuilt in
//	                one pass; the only path propagation uses
//	AreaTable       cortical area metadata (PSP flags, names)
//
// Kernels in the backend package index the exported slices directly. Every
// slice has length Capacity(); only slots below Len() have ever been
// assigned.
package state

import "errors"

var (
	// ErrCapacityExceeded is returned when adding to a full store.
	ErrCapacityExceeded = errors.New("store capacity exceeded")

	// ErrInvalidParams is returned for parameters outside their domain.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrDuplicateArea is returned when an area id or name is registered twice.
	ErrDuplicateArea = errors.New("duplicate cortical area")
)
