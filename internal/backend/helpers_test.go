package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/testutil"
)

func asNetwork[T numeric.Value[T]](n *testutil.Network[T]) *Network[T] {
	return &Network[T]{Neurons: n.Neurons, Synapses: n.Synapses, Index: n.Index, Areas: n.Areas}
}

// stepper drives one backend through consecutive bursts the way the engine
// does: the previous queue feeds the next propagation.
type stepper[T numeric.Value[T]] struct {
	t     *testing.T
	b     Backend[T]
	fcl   *fire.FCL
	queue *fire.FireQueue
	fired []ir.FiringNeuron
	burst uint64
	last  BurstResult
}

func newStepper[T numeric.Value[T]](t *testing.T, b Backend[T], n *testutil.Network[T]) *stepper[T] {
	t.Helper()
	require.NoError(t, b.Initialize(asNetwork(n)))
	t.Cleanup(func() { _ = b.Close() })
	return &stepper[T]{
		t:     t,
		b:     b,
		fcl:   fire.NewFCL(0, fire.PolicyReject),
		queue: fire.NewFireQueue(0, fire.PolicyReject),
	}
}

// bound replaces the stepper's FCL and fire queue with capacity-limited
// ones under the reject policy. Zero keeps a structure unbounded.
func (s *stepper[T]) bound(fclCap, queueCap int) {
	s.fcl = fire.NewFCL(fclCap, fire.PolicyReject)
	s.queue = fire.NewFireQueue(queueCap, fire.PolicyReject)
}

func (s *stepper[T]) step(inject ...ir.Injection) []ir.NeuronID {
	s.t.Helper()
	s.burst++
	res, err := Step(context.Background(), s.b, s.fired, inject, s.fcl, s.burst, s.queue)
	require.NoError(s.t, err)
	s.last = res
	s.fired = append(s.fired[:0], s.queue.Neurons...)
	return s.queue.IDs()
}

func inject(id ir.NeuronID, v float32) ir.Injection {
	return ir.Injection{ID: id, Potential: v}
}
