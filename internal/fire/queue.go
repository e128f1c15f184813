package fire

import (
	"cmp"
	"slices"

	"github.com/roach88/npu/internal/ir"
)

// FireQueue is the set of neurons that fired in one burst.
//
// Lifecycle: Reset at step start, filled by dynamics, handed to consumers,
// then reused for the next step. Consumers keep a Clone, never the queue.
type FireQueue struct {
	Burst   uint64
	Neurons []ir.FiringNeuron

	capacity int
	policy   OverflowPolicy
	dropped  int
}

// NewFireQueue creates an empty queue. A capacity of 0 means unbounded.
func NewFireQueue(capacity int, policy OverflowPolicy) *FireQueue {
	if policy == "" {
		policy = PolicyReject
	}
	return &FireQueue{capacity: capacity, policy: policy}
}

// Reset empties the queue and tags it with burst.
func (q *FireQueue) Reset(burst uint64) {
	q.Burst = burst
	q.Neurons = q.Neurons[:0]
	q.dropped = 0
}

// Push appends a fired neuron, honoring capacity and policy.
func (q *FireQueue) Push(n ir.FiringNeuron) error {
	if q.capacity > 0 && len(q.Neurons) >= q.capacity {
		if q.policy == PolicyFail {
			return ErrFireQueueOverflow
		}
		q.dropped++
		return nil
	}
	q.Neurons = append(q.Neurons, n)
	return nil
}

// Sort orders records by neuron id.
func (q *FireQueue) Sort() {
	slices.SortFunc(q.Neurons, func(a, b ir.FiringNeuron) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func (q *FireQueue) Len() int { return len(q.Neurons) }

// Dropped counts records rejected since the last Reset.
func (q *FireQueue) Dropped() int { return q.dropped }

// IDs returns the fired ids in queue order.
func (q *FireQueue) IDs() []ir.NeuronID {
	ids := make([]ir.NeuronID, len(q.Neurons))
	for i, n := range q.Neurons {
		ids[i] = n.ID
	}
	return ids
}

// ByArea groups records by cortical area, preserving queue order.
func (q *FireQueue) ByArea() map[ir.AreaID][]ir.FiringNeuron {
	out := make(map[ir.AreaID][]ir.FiringNeuron)
	for _, n := range q.Neurons {
		out[n.Area] = append(out[n.Area], n)
	}
	return out
}

// Clone returns an independent, unbounded copy.
func (q *FireQueue) Clone() *FireQueue {
	return &FireQueue{
		Burst:   q.Burst,
		Neurons: slices.Clone(q.Neurons),
		policy:  q.policy,
		dropped: q.dropped,
	}
}
