package state

import (
	"fmt"

	"github.com/roach88/npu/internal/ir"
)

// SynapseParams describes one synapse. Weight and PSP are 0-255 scalars
// used as-is in the contribution product.
type SynapseParams struct {
	Source ir.NeuronID    `yaml:"source" json:"source"`
	Target ir.NeuronID    `yaml:"target" json:"target"`
	Weight uint8          `yaml:"weight" json:"weight"`
	PSP    uint8          `yaml:"psp" json:"psp"`
	Type   ir.SynapseType `yaml:"type" json:"type"`
}

// SynapseArray is the synapse store.
type SynapseArray struct {
	capacity int
	count    int
	live     int

	Source []ir.NeuronID
	Target []ir.NeuronID
	Weight []uint8
	PSP    []uint8
	Type   []ir.SynapseType
	Valid  []bool
}

// NewSynapseArray allocates a store for capacity synapses.
func NewSynapseArray(capacity int) *SynapseArray {
	return &SynapseArray{
		capacity: capacity,
		Source:   make([]ir.NeuronID, capacity),
		Target:   make([]ir.NeuronID, capacity),
		Weight:   make([]uint8, capacity),
		PSP:      make([]uint8, capacity),
		Type:     make([]ir.SynapseType, capacity),
		Valid:    make([]bool, capacity),
	}
}

func (s *SynapseArray) Capacity() int { return s.capacity }

// Len is the number of slots ever assigned.
func (s *SynapseArray) Len() int { return s.count }

// Count is the number of valid synapses.
func (s *SynapseArray) Count() int { return s.live }

// Add appends a synapse and returns its slot.
func (s *SynapseArray) Add(p SynapseParams) (int, error) {
	if p.Source == ir.InvalidNeuron || p.Target == ir.InvalidNeuron {
		return 0, fmt.Errorf("%w: neuron id %#x is reserved", ErrInvalidParams, uint32(ir.InvalidNeuron))
	}
	if s.count >= s.capacity {
		return 0, fmt.Errorf("add synapse: %w (capacity %d)", ErrCapacityExceeded, s.capacity)
	}
	slot := s.count
	s.count++
	s.live++
	s.Source[slot] = p.Source
	s.Target[slot] = p.Target
	s.Weight[slot] = p.Weight
	s.PSP[slot] = p.PSP
	s.Type[slot] = p.Type
	s.Valid[slot] = true
	return slot, nil
}

// Get returns the synapse in slot.
func (s *SynapseArray) Get(slot int) (SynapseParams, bool) {
	if slot < 0 || slot >= s.count || !s.Valid[slot] {
		return SynapseParams{}, false
	}
	return SynapseParams{
		Source: s.Source[slot],
		Target: s.Target[slot],
		Weight: s.Weight[slot],
		PSP:    s.PSP[slot],
		Type:   s.Type[slot],
	}, true
}

// Invalidate tombstones a slot.
func (s *SynapseArray) Invalidate(slot int) bool {
	if slot < 0 || slot >= s.count || !s.Valid[slot] {
		return false
	}
	s.Valid[slot] = false
	s.live--
	return true
}

// RemoveBetween tombstones every valid synapse from source to target and
// returns how many were removed.
func (s *SynapseArray) RemoveBetween(source, target ir.NeuronID) int {
	n := 0
	for i := 0; i < s.count; i++ {
		if s.Valid[i] && s.Source[i] == source && s.Target[i] == target {
			s.Valid[i] = false
			s.live--
			n++
		}
	}
	return n
}

// UpdateWeight sets the weight of every valid synapse from source to
// target and returns how many changed.
func (s *SynapseArray) UpdateWeight(source, target ir.NeuronID, weight uint8) int {
	n := 0
	for i := 0; i < s.count; i++ {
		if s.Valid[i] && s.Source[i] == source && s.Target[i] == target {
			s.Weight[i] = weight
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (s *SynapseArray) Clone() *SynapseArray {
	return &SynapseArray{
		capacity: s.capacity,
		count:    s.count,
		live:     s.live,
		Source:   append([]ir.NeuronID(nil), s.Source...),
		Target:   append([]ir.NeuronID(nil), s.Target...),
		Weight:   append([]uint8(nil), s.Weight...),
		PSP:      append([]uint8(nil), s.PSP...),
		Type:     append([]ir.SynapseType(nil), s.Type...),
		Valid:    append([]bool(nil), s.Valid...),
	}
}
