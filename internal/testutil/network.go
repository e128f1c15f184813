package testutil

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/state"
)

// Network bundles the stores a test builds before handing them to a
// backend or an engine.
type Network[T numeric.Value[T]] struct {
	Neurons  *state.NeuronArray[T]
	Synapses *state.SynapseArray
	Index    *state.SourceIndex
	Areas    *state.AreaTable
}

// NewNetwork allocates empty stores with the given capacities.
func NewNetwork[T numeric.Value[T]](neurons, synapses int) *Network[T] {
	n := &Network[T]{
		Neurons:  state.NewNeuronArray[T](neurons),
		Synapses: state.NewSynapseArray(synapses),
		Areas:    state.NewAreaTable(),
	}
	n.Index = state.BuildSourceIndex(n.Synapses)
	return n
}

// Neuron returns deterministic parameters: no leak, always excitable, no
// refractory period, no fire limit.
func Neuron(threshold float32) state.NeuronParams {
	return state.NeuronParams{Threshold: threshold, Excitability: 1}
}

// AddNeuron adds a neuron and fails the test on error.
func (n *Network[T]) AddNeuron(t testing.TB, p state.NeuronParams) ir.NeuronID {
	t.Helper()
	id, err := n.Neurons.Add(p)
	if err != nil {
		t.Fatalf("add neuron: %v", err)
	}
	return id
}

// AddNeurons adds count identical neurons and returns their ids.
func (n *Network[T]) AddNeurons(t testing.TB, count int, p state.NeuronParams) []ir.NeuronID {
	t.Helper()
	ids := make([]ir.NeuronID, count)
	for i := range ids {
		p.Coord = ir.Coord{X: uint32(i)}
		ids[i] = n.AddNeuron(t, p)
	}
	return ids
}

// Connect adds a synapse. Call Reindex after the last Connect.
func (n *Network[T]) Connect(t testing.TB, src, dst ir.NeuronID, weight, psp uint8, typ ir.SynapseType) int {
	t.Helper()
	slot, err := n.Synapses.Add(state.SynapseParams{Source: src, Target: dst, Weight: weight, PSP: psp, Type: typ})
	if err != nil {
		t.Fatalf("connect %d -> %d: %v", src, dst, err)
	}
	return slot
}

// Reindex rebuilds the source index.
func (n *Network[T]) Reindex() {
	n.Index.Rebuild(n.Synapses)
}

// Clone deep-copies the stores so two backends can run from identical
// state.
func (n *Network[T]) Clone() *Network[T] {
	c := &Network[T]{
		Neurons:  n.Neurons.Clone(),
		Synapses: n.Synapses.Clone(),
		Areas:    state.NewAreaTable(),
	}
	for _, id := range n.Areas.IDs() {
		p, _ := n.Areas.Get(id)
		_ = c.Areas.Register(p)
	}
	c.Index = state.BuildSourceIndex(c.Synapses)
	return c
}

// RandomSpec describes a seeded random network.
type RandomSpec struct {
	Seed         uint64
	Neurons      int
	FanOut       int     // synapses per source neuron
	Inhibitory   float64 // fraction of inhibitory synapses
	Threshold    float32
	Leak         float32
	Excitability float32 // 0 means 1
	Refractory   uint16
	FireLimit    uint16
	Snooze       uint16
	Areas        int // neurons are spread round-robin over this many areas
}

// RandomNetwork builds a reproducible random network: same spec, same
// network, on every run.
func RandomNetwork[T numeric.Value[T]](t testing.TB, spec RandomSpec) *Network[T] {
	t.Helper()
	r := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0x9E3779B97F4A7C15))
	areas := max(spec.Areas, 1)
	exc := spec.Excitability
	if exc == 0 {
		exc = 1
	}

	n := NewNetwork[T](spec.Neurons, spec.Neurons*spec.FanOut)
	for a := 0; a < areas; a++ {
		err := n.Areas.Register(state.AreaParams{
			ID:         ir.AreaID(a),
			Name:       fmt.Sprintf("area-%d", a),
			PSPUniform: a%2 == 1,
		})
		if err != nil {
			t.Fatalf("register area %d: %v", a, err)
		}
	}
	for i := 0; i < spec.Neurons; i++ {
		n.AddNeuron(t, state.NeuronParams{
			Area:                 ir.AreaID(i % areas),
			Coord:                ir.Coord{X: uint32(i), Y: uint32(i / 16), Z: uint32(i % 3)},
			Threshold:            spec.Threshold,
			Leak:                 spec.Leak,
			Excitability:         exc,
			RefractoryPeriod:     spec.Refractory,
			ConsecutiveFireLimit: spec.FireLimit,
			SnoozePeriod:         spec.Snooze,
			Potential:            r.Float32() * spec.Threshold,
		})
	}
	for i := 0; i < spec.Neurons; i++ {
		for j := 0; j < spec.FanOut; j++ {
			typ := ir.Excitatory
			if r.Float64() < spec.Inhibitory {
				typ = ir.Inhibitory
			}
			n.Connect(t, ir.NeuronID(i), ir.NeuronID(r.IntN(spec.Neurons)),
				uint8(r.IntN(256)), uint8(r.IntN(256)), typ)
		}
	}
	n.Reindex()
	return n
}

// CollidingIDs returns count neuron ids that all hash to the same home slot
// of a power-of-two table with the given capacity: ids congruent modulo the
// capacity collide under any odd multiplicative hash.
func CollidingIDs(count, capacity int) []ir.NeuronID {
	ids := make([]ir.NeuronID, count)
	for i := range ids {
		ids[i] = ir.NeuronID(i * capacity)
	}
	return ids
}

// FiredAll turns ids into fire queue records with the given potential.
func FiredAll(ids []ir.NeuronID, potential float32) []ir.FiringNeuron {
	out := make([]ir.FiringNeuron, len(ids))
	for i, id := range ids {
		out[i] = ir.FiringNeuron{ID: id, Potential: potential}
	}
	return out
}
