package state

import (
	"fmt"
	"math"

	"github.com/goki/mat32"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

// NeuronParams describes one neuron in canonical float units.
type NeuronParams struct {
	Area  ir.AreaID `yaml:"area" json:"area"`
	Coord ir.Coord  `yaml:"coord" json:"coord"`

	Threshold float32 `yaml:"threshold" json:"threshold"`
	// ThresholdLimit is the upper bound of the firing window; a neuron whose
	// potential exceeds it does not fire. 0 means unbounded.
	ThresholdLimit float32 `yaml:"threshold_limit" json:"threshold_limit"`
	Resting        float32 `yaml:"resting" json:"resting"`
	Potential      float32 `yaml:"potential" json:"potential"`

	// Leak is the fraction of the distance to resting recovered per
	// non-firing step, in [0, 1].
	Leak float32 `yaml:"leak" json:"leak"`
	// Excitability is the firing probability once above threshold, in [0, 1].
	Excitability float32 `yaml:"excitability" json:"excitability"`

	RefractoryPeriod     uint16 `yaml:"refractory_period" json:"refractory_period"`
	SnoozePeriod         uint16 `yaml:"snooze_period" json:"snooze_period"`
	ConsecutiveFireLimit uint16 `yaml:"consecutive_fire_limit" json:"consecutive_fire_limit"`
}

// Validate checks parameter domains.
func (p NeuronParams) Validate() error {
	for name, v := range map[string]float32{
		"threshold":       p.Threshold,
		"threshold_limit": p.ThresholdLimit,
		"resting":         p.Resting,
		"potential":       p.Potential,
	} {
		if mat32.IsNaN(v) || mat32.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidParams, name)
		}
	}
	if mat32.IsNaN(p.Leak) || p.Leak < 0 || p.Leak > 1 {
		return fmt.Errorf("%w: leak %v outside [0,1]", ErrInvalidParams, p.Leak)
	}
	if mat32.IsNaN(p.Excitability) || p.Excitability < 0 || p.Excitability > 1 {
		return fmt.Errorf("%w: excitability %v outside [0,1]", ErrInvalidParams, p.Excitability)
	}
	if p.ThresholdLimit != 0 && p.ThresholdLimit < p.Threshold {
		return fmt.Errorf("%w: threshold_limit %v below threshold %v", ErrInvalidParams, p.ThresholdLimit, p.Threshold)
	}
	return nil
}

// NeuronState is the mutable part of a neuron, read between steps.
type NeuronState struct {
	Potential            float32 `json:"potential"`
	RefractoryCountdown  uint16  `json:"refractory_countdown"`
	ConsecutiveFireCount uint16  `json:"consecutive_fire_count"`
	Valid                bool    `json:"valid"`
}

// NeuronArray is the neuron store.
type NeuronArray[T numeric.Value[T]] struct {
	capacity int
	count    int
	live     int

	Potential      []T
	Threshold      []T
	ThresholdLimit []T
	Resting        []T
	Leak           []float32
	Excitability   []float32

	RefractoryPeriod     []uint16
	RefractoryCountdown  []uint16
	ConsecutiveFireCount []uint16
	ConsecutiveFireLimit []uint16
	SnoozePeriod         []uint16

	Area  []ir.AreaID
	Coord []ir.Coord
	Valid []bool
}

// NewNeuronArray allocates a store for capacity neurons.
func NewNeuronArray[T numeric.Value[T]](capacity int) *NeuronArray[T] {
	return &NeuronArray[T]{
		capacity:             capacity,
		Potential:            make([]T, capacity),
		Threshold:            make([]T, capacity),
		ThresholdLimit:       make([]T, capacity),
		Resting:              make([]T, capacity),
		Leak:                 make([]float32, capacity),
		Excitability:         make([]float32, capacity),
		RefractoryPeriod:     make([]uint16, capacity),
		RefractoryCountdown:  make([]uint16, capacity),
		ConsecutiveFireCount: make([]uint16, capacity),
		ConsecutiveFireLimit: make([]uint16, capacity),
		SnoozePeriod:         make([]uint16, capacity),
		Area:                 make([]ir.AreaID, capacity),
		Coord:                make([]ir.Coord, capacity),
		Valid:                make([]bool, capacity),
	}
}

// Capacity is the fixed number of slots.
func (a *NeuronArray[T]) Capacity() int { return a.capacity }

// Len is the number of slots ever assigned (the id high-water mark).
func (a *NeuronArray[T]) Len() int { return a.count }

// Count is the number of valid neurons.
func (a *NeuronArray[T]) Count() int { return a.live }

// IsValid reports whether id names a live neuron.
func (a *NeuronArray[T]) IsValid(id ir.NeuronID) bool {
	return int(id) < a.count && a.Valid[id]
}

// unbounded is the stored ThresholdLimit for "no limit".
func unbounded[T numeric.Value[T]]() T {
	return numeric.From[T](math.MaxFloat32)
}

// Add appends a neuron and returns its id.
func (a *NeuronArray[T]) Add(p NeuronParams) (ir.NeuronID, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if a.count >= a.capacity {
		return 0, fmt.Errorf("add neuron: %w (capacity %d)", ErrCapacityExceeded, a.capacity)
	}
	id := ir.NeuronID(a.count)
	a.count++
	a.live++
	a.Valid[id] = true
	a.RefractoryCountdown[id] = 0
	a.ConsecutiveFireCount[id] = 0
	a.setParams(id, p)
	a.Potential[id] = numeric.From[T](p.Potential)
	return id, nil
}

func (a *NeuronArray[T]) setParams(id ir.NeuronID, p NeuronParams) {
	a.Area[id] = p.Area
	a.Coord[id] = p.Coord
	a.Threshold[id] = numeric.From[T](p.Threshold)
	if p.ThresholdLimit == 0 {
		a.ThresholdLimit[id] = unbounded[T]()
	} else {
		a.ThresholdLimit[id] = numeric.From[T](p.ThresholdLimit)
	}
	a.Resting[id] = numeric.From[T](p.Resting)
	a.Leak[id] = p.Leak
	a.Excitability[id] = p.Excitability
	a.RefractoryPeriod[id] = p.RefractoryPeriod
	a.SnoozePeriod[id] = p.SnoozePeriod
	a.ConsecutiveFireLimit[id] = p.ConsecutiveFireLimit
}

// Params returns the neuron's parameters in canonical units. Potential is
// the current membrane potential.
func (a *NeuronArray[T]) Params(id ir.NeuronID) (NeuronParams, bool) {
	if !a.IsValid(id) {
		return NeuronParams{}, false
	}
	limit := a.ThresholdLimit[id]
	var limitF float32
	if limit != unbounded[T]() {
		limitF = limit.Float()
	}
	return NeuronParams{
		Area:                 a.Area[id],
		Coord:                a.Coord[id],
		Threshold:            a.Threshold[id].Float(),
		ThresholdLimit:       limitF,
		Resting:              a.Resting[id].Float(),
		Potential:            a.Potential[id].Float(),
		Leak:                 a.Leak[id],
		Excitability:         a.Excitability[id],
		RefractoryPeriod:     a.RefractoryPeriod[id],
		SnoozePeriod:         a.SnoozePeriod[id],
		ConsecutiveFireLimit: a.ConsecutiveFireLimit[id],
	}, true
}

// SetParams replaces a neuron's parameters. The membrane potential,
// countdown and fire count are left as they are; p.Potential is ignored.
func (a *NeuronArray[T]) SetParams(id ir.NeuronID, p NeuronParams) error {
	if !a.IsValid(id) {
		return fmt.Errorf("set params: neuron %d not valid", id)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	a.setParams(id, p)
	return nil
}

// SetPotential overwrites the membrane potential.
func (a *NeuronArray[T]) SetPotential(id ir.NeuronID, v float32) bool {
	if !a.IsValid(id) {
		return false
	}
	a.Potential[id] = numeric.From[T](v)
	return true
}

// State returns the mutable state of a slot. Invalid or unassigned ids
// return a zero state with Valid false.
func (a *NeuronArray[T]) State(id ir.NeuronID) NeuronState {
	if int(id) >= a.count {
		return NeuronState{}
	}
	return NeuronState{
		Potential:            a.Potential[id].Float(),
		RefractoryCountdown:  a.RefractoryCountdown[id],
		ConsecutiveFireCount: a.ConsecutiveFireCount[id],
		Valid:                a.Valid[id],
	}
}

// Invalidate tombstones a neuron. It reports false if the id was not live.
func (a *NeuronArray[T]) Invalidate(id ir.NeuronID) bool {
	if !a.IsValid(id) {
		return false
	}
	a.Valid[id] = false
	a.live--
	return true
}

// UpdateArea applies fn to the parameters of every valid neuron in area
// and returns how many neurons changed. Updates that fail validation are
// skipped.
func (a *NeuronArray[T]) UpdateArea(area ir.AreaID, fn func(*NeuronParams)) int {
	n := 0
	for i := 0; i < a.count; i++ {
		id := ir.NeuronID(i)
		if !a.Valid[i] || a.Area[i] != area {
			continue
		}
		p, _ := a.Params(id)
		fn(&p)
		if a.SetParams(id, p) == nil {
			n++
		}
	}
	return n
}

// InArea lists the valid neurons of an area in id order.
func (a *NeuronArray[T]) InArea(area ir.AreaID) []ir.NeuronID {
	var ids []ir.NeuronID
	for i := 0; i < a.count; i++ {
		if a.Valid[i] && a.Area[i] == area {
			ids = append(ids, ir.NeuronID(i))
		}
	}
	return ids
}

// Clone returns a deep copy, used to run two backends from identical state.
func (a *NeuronArray[T]) Clone() *NeuronArray[T] {
	return &NeuronArray[T]{
		capacity:             a.capacity,
		count:                a.count,
		live:                 a.live,
		Potential:            append([]T(nil), a.Potential...),
		Threshold:            append([]T(nil), a.Threshold...),
		ThresholdLimit:       append([]T(nil), a.ThresholdLimit...),
		Resting:              append([]T(nil), a.Resting...),
		Leak:                 append([]float32(nil), a.Leak...),
		Excitability:         append([]float32(nil), a.Excitability...),
		RefractoryPeriod:     append([]uint16(nil), a.RefractoryPeriod...),
		RefractoryCountdown:  append([]uint16(nil), a.RefractoryCountdown...),
		ConsecutiveFireCount: append([]uint16(nil), a.ConsecutiveFireCount...),
		ConsecutiveFireLimit: append([]uint16(nil), a.ConsecutiveFireLimit...),
		SnoozePeriod:         append([]uint16(nil), a.SnoozePeriod...),
		Area:                 append([]ir.AreaID(nil), a.Area...),
		Coord:                append([]ir.Coord(nil), a.Coord...),
		Valid:                append([]bool(nil), a.Valid...),
	}
}
