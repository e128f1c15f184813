package fire

import (
	"maps"
	"slices"

	"github.com/roach88/npu/internal/ir"
)

// FCL accumulates candidate potential per target neuron.
//
// Entries are additive: any number of contributions to the same id sum
// into one entry, so the FCL holds at most one entry per neuron. A
// capacity of 0 means unbounded.
type FCL struct {
	entries  map[ir.NeuronID]float32
	capacity int
	policy   OverflowPolicy
	rejected map[ir.NeuronID]struct{}
}

// NewFCL creates an empty FCL.
func NewFCL(capacity int, policy OverflowPolicy) *FCL {
	if policy == "" {
		policy = PolicyReject
	}
	hint := capacity
	if hint == 0 || hint > 4096 {
		hint = 4096
	}
	return &FCL{
		entries:  make(map[ir.NeuronID]float32, hint),
		capacity: capacity,
		policy:   policy,
		rejected: make(map[ir.NeuronID]struct{}),
	}
}

// Add accumulates v into id's entry. A new id beyond capacity is dropped
// under PolicyReject (Add returns nil) or fails with ErrFCLOverflow under
// PolicyFail. Existing entries always accept further contributions.
//
// A rejected id counts once per burst however many contributions reach
// it, so the count does not depend on how a backend batches its adds.
func (f *FCL) Add(id ir.NeuronID, v float32) error {
	if cur, ok := f.entries[id]; ok {
		f.entries[id] = cur + v
		return nil
	}
	if f.capacity > 0 && len(f.entries) >= f.capacity {
		if f.policy == PolicyFail {
			return ErrFCLOverflow
		}
		f.rejected[id] = struct{}{}
		return nil
	}
	f.entries[id] = v
	return nil
}

// Merge adds a batch of injections, in order.
func (f *FCL) Merge(batch []ir.Injection) error {
	for _, in := range batch {
		if err := f.Add(in.ID, in.Potential); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the accumulated potential for id.
func (f *FCL) Get(id ir.NeuronID) (float32, bool) {
	v, ok := f.entries[id]
	return v, ok
}

// Len is the number of distinct candidates.
func (f *FCL) Len() int { return len(f.entries) }

// Dropped counts distinct ids rejected since the last Clear.
func (f *FCL) Dropped() int { return len(f.rejected) }

// Capacity is the configured capacity; 0 means unbounded.
func (f *FCL) Capacity() int { return f.capacity }

// Clear empties the FCL and resets the dropped counter.
func (f *FCL) Clear() {
	clear(f.entries)
	clear(f.rejected)
}

// IDs returns candidate ids in ascending order. Dynamics processes
// candidates in this order on every backend.
func (f *FCL) IDs() []ir.NeuronID {
	return slices.Sorted(maps.Keys(f.entries))
}

// Snapshot copies the entries.
func (f *FCL) Snapshot() map[ir.NeuronID]float32 {
	return maps.Clone(f.entries)
}
