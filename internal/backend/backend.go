package backend

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/rng"
	"github.com/roach88/npu/internal/state"
)

var (
	// ErrNotInitialized is returned when a phase runs before Initialize.
	ErrNotInitialized = errors.New("backend not initialized")

	// ErrInsufficientMemory is returned by Initialize when the packed
	// network does not fit the configured memory budget.
	ErrInsufficientMemory = errors.New("insufficient backend memory")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backend closed")
)

// Network is the persistent data a backend operates on. The engine owns
// it; backends read the synapse side and mutate the neuron side in place.
type Network[T numeric.Value[T]] struct {
	Neurons  *state.NeuronArray[T]
	Synapses *state.SynapseArray
	Index    *state.SourceIndex
	Areas    *state.AreaTable
}

// Dynamics holds the knobs of the per-neuron state machine.
type Dynamics struct {
	// Random draws the excitability roll. Nil selects rng.Excitability.
	Random rng.Func

	// FailedRollResetsCount makes a failed excitability roll above
	// threshold reset the consecutive fire count like the below-threshold
	// path does. Off by default: the count is left untouched.
	FailedRollResetsCount bool

	// ScanAll processes every valid neuron each step, not just FCL
	// candidates, so idle neurons leak and count down their refractory
	// period without input.
	ScanAll bool
}

func (d Dynamics) random() rng.Func {
	if d.Random == nil {
		return rng.Excitability
	}
	return d.Random
}

// PropagationStats describes one propagation phase.
type PropagationStats struct {
	Synapses int `json:"synapses"`
}

// DynamicsResult describes one dynamics phase.
type DynamicsResult struct {
	Processed  int `json:"processed"`
	Fired      int `json:"fired"`
	Refractory int `json:"refractory"`
}

// Timing breaks down a burst.
type Timing struct {
	Synaptic time.Duration `json:"synaptic"`
	Dynamics time.Duration `json:"dynamics"`
	Total    time.Duration `json:"total"`
}

// BurstResult is the outcome of Step.
type BurstResult struct {
	Propagation PropagationStats `json:"propagation"`
	Dynamics    DynamicsResult   `json:"dynamics"`
	Timing      Timing           `json:"timing"`
}

// Backend is one compute implementation of the two burst phases.
type Backend[T numeric.Value[T]] interface {
	// Kind names the implementation.
	Kind() ir.BackendKind

	// Initialize binds the network and builds any persistent derived data.
	// It is called once before the first step and again whenever the
	// connectome changes. Failures are configuration errors.
	Initialize(net *Network[T]) error

	// Propagate fans the previous step's fired neurons out through their
	// synapses into fcl. An empty fired list leaves fcl unchanged.
	Propagate(ctx context.Context, fired []ir.FiringNeuron, fcl *fire.FCL) (PropagationStats, error)

	// AdvanceDynamics applies the FCL to the neuron store and fills queue
	// with the neurons that fired during burst.
	AdvanceDynamics(ctx context.Context, fcl *fire.FCL, burst uint64, queue *fire.FireQueue) (DynamicsResult, error)

	// Close releases workers and buffers.
	Close() error
}

// Step runs one full burst on b: propagate, merge injections, dynamics.
// queue is reset to burst before dynamics.
func Step[T numeric.Value[T]](ctx context.Context, b Backend[T], fired []ir.FiringNeuron, inject []ir.Injection, fcl *fire.FCL, burst uint64, queue *fire.FireQueue) (BurstResult, error) {
	var res BurstResult
	start := time.Now()

	fcl.Clear()
	ps, err := b.Propagate(ctx, fired, fcl)
	if err != nil {
		return res, err
	}
	res.Propagation = ps
	synDone := time.Now()
	res.Timing.Synaptic = synDone.Sub(start)

	if err := fcl.Merge(inject); err != nil {
		return res, err
	}

	queue.Reset(burst)
	dr, err := b.AdvanceDynamics(ctx, fcl, burst, queue)
	if err != nil {
		return res, err
	}
	res.Dynamics = dr
	end := time.Now()
	res.Timing.Dynamics = end.Sub(synDone)
	res.Timing.Total = end.Sub(start)
	return res, nil
}
