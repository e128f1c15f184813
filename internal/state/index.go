package state

import (
	"slices"

	"github.com/roach88/npu/internal/ir"
)

// SourceIndex maps each source neuron to its outgoing synapse slots in
// ascending slot order. Only slots valid at build time are indexed.
type SourceIndex struct {
	slots   map[ir.NeuronID][]int
	sources []ir.NeuronID
	total   int
}

// BuildSourceIndex indexes s in one pass.
func BuildSourceIndex(s *SynapseArray) *SourceIndex {
	x := &SourceIndex{}
	x.Rebuild(s)
	return x
}

// Rebuild discards the index and re-reads s.
func (x *SourceIndex) Rebuild(s *SynapseArray) {
	x.slots = make(map[ir.NeuronID][]int)
	x.sources = x.sources[:0]
	x.total = 0
	for i := 0; i < s.Len(); i++ {
		if !s.Valid[i] {
			continue
		}
		src := s.Source[i]
		if _, ok := x.slots[src]; !ok {
			x.sources = append(x.sources, src)
		}
		x.slots[src] = append(x.slots[src], i)
		x.total++
	}
	slices.Sort(x.sources)
}

// Outgoing returns the slots whose source is src. The slice is owned by
// the index.
func (x *SourceIndex) Outgoing(src ir.NeuronID) []int {
	return x.slots[src]
}

// Sources lists indexed source neurons in ascending order.
func (x *SourceIndex) Sources() []ir.NeuronID {
	return x.sources
}

// Len is the number of distinct sources.
func (x *SourceIndex) Len() int { return len(x.sources) }

// Synapses is the number of indexed slots.
func (x *SourceIndex) Synapses() int { return x.total }
