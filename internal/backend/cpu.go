package backend

import (
	"context"
	"fmt"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

// CPU is the scalar reference backend.
type CPU[T numeric.Value[T]] struct {
	net *Network[T]
	dyn Dynamics
}

// NewCPU creates a CPU backend.
func NewCPU[T numeric.Value[T]](dyn Dynamics) *CPU[T] {
	return &CPU[T]{dyn: dyn}
}

func (c *CPU[T]) Kind() ir.BackendKind { return ir.BackendCPU }

func (c *CPU[T]) Initialize(net *Network[T]) error {
	if net == nil || net.Neurons == nil || net.Synapses == nil || net.Index == nil {
		return fmt.Errorf("cpu backend: incomplete network")
	}
	c.net = net
	return nil
}

func (c *CPU[T]) Propagate(_ context.Context, fired []ir.FiringNeuron, fcl *fire.FCL) (PropagationStats, error) {
	var stats PropagationStats
	if c.net == nil {
		return stats, ErrNotInitialized
	}
	neurons, syn := c.net.Neurons, c.net.Synapses

	for _, f := range fired {
		slots := c.net.Index.Outgoing(f.ID)
		if len(slots) == 0 || !neurons.IsValid(f.ID) {
			continue
		}

		override, divide := sourcePSP(c.net.Areas, neurons.Area[f.ID], f.Potential)
		divisor := 1
		if divide {
			divisor = 0
			for _, s := range slots {
				if syn.Valid[s] {
					divisor++
				}
			}
		}

		for _, s := range slots {
			if !syn.Valid[s] {
				continue
			}
			stats.Synapses++
			target := syn.Target[s]
			if !neurons.IsValid(target) {
				continue
			}
			psp := override
			if psp < 0 {
				psp = float32(syn.PSP[s])
			}
			if err := fcl.Add(target, contribution(syn.Weight[s], psp, syn.Type[s], divisor)); err != nil {
				return stats, fmt.Errorf("propagate from neuron %d: %w", f.ID, err)
			}
		}
	}
	return stats, nil
}

func (c *CPU[T]) AdvanceDynamics(_ context.Context, fcl *fire.FCL, burst uint64, queue *fire.FireQueue) (DynamicsResult, error) {
	var res DynamicsResult
	if c.net == nil {
		return res, ErrNotInitialized
	}
	// An overflowing queue fails the step, but every candidate is still
	// processed so neuron state does not depend on where the overflow hit.
	var pushErr error
	for _, id := range candidates(c.net.Neurons, fcl, &c.dyn) {
		v, _ := fcl.Get(id)
		out := processNeuron(c.net.Neurons, id, v, burst, &c.dyn)
		if !out.processed {
			continue
		}
		res.Processed++
		if out.refractory {
			res.Refractory++
		}
		if out.fired {
			res.Fired++
			if err := queue.Push(out.record); err != nil && pushErr == nil {
				pushErr = fmt.Errorf("dynamics burst %d: %w", burst, err)
			}
		}
	}
	return res, pushErr
}

func (c *CPU[T]) Close() error {
	c.net = nil
	return nil
}
