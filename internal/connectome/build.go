package connectome

import (
	"fmt"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/state"
)

// BaseParams are the parameters a neuron gets when nothing overrides them:
// threshold 1, always excitable, no leak, no refractory period.
func BaseParams() state.NeuronParams {
	return state.NeuronParams{Threshold: 1, Excitability: 1}
}

func (p Params) apply(dst *state.NeuronParams) {
	set := func(dst *float32, v *float32) {
		if v != nil {
			*dst = *v
		}
	}
	setU := func(dst *uint16, v *uint16) {
		if v != nil {
			*dst = *v
		}
	}
	set(&dst.Threshold, p.Threshold)
	set(&dst.ThresholdLimit, p.ThresholdLimit)
	set(&dst.Resting, p.Resting)
	set(&dst.Potential, p.Potential)
	set(&dst.Leak, p.Leak)
	set(&dst.Excitability, p.Excitability)
	setU(&dst.RefractoryPeriod, p.RefractoryPeriod)
	setU(&dst.SnoozePeriod, p.SnoozePeriod)
	setU(&dst.ConsecutiveFireLimit, p.ConsecutiveFireLimit)
}

// Network is a built connectome.
type Network[T numeric.Value[T]] struct {
	Neurons  *state.NeuronArray[T]
	Synapses *state.SynapseArray
	Areas    *state.AreaTable
}

// layout tracks where neurons landed while building.
type layout struct {
	areaID  map[string]ir.AreaID
	members map[ir.AreaID][]ir.NeuronID
	byCoord map[ir.AreaID]map[ir.Coord]ir.NeuronID
}

func (l *layout) place(area ir.AreaID, c ir.Coord, id ir.NeuronID) error {
	if _, dup := l.byCoord[area][c]; dup {
		return fmt.Errorf("area %d: two neurons at (%d,%d,%d)", area, c.X, c.Y, c.Z)
	}
	if l.byCoord[area] == nil {
		l.byCoord[area] = make(map[ir.Coord]ir.NeuronID)
	}
	l.byCoord[area][c] = id
	l.members[area] = append(l.members[area], id)
	return nil
}

func (l *layout) resolve(ep Endpoint, neurons int) (ir.NeuronID, error) {
	if ep.ID != nil {
		if int(*ep.ID) >= neurons {
			return 0, fmt.Errorf("neuron id %d out of range (%d neurons)", *ep.ID, neurons)
		}
		return *ep.ID, nil
	}
	area := l.areaID[ir.NormalizeName(ep.Area)]
	id, ok := l.byCoord[area][ep.Coord]
	if !ok {
		return 0, fmt.Errorf("no neuron in %q at (%d,%d,%d)", ep.Area, ep.Coord.X, ep.Coord.Y, ep.Coord.Z)
	}
	return id, nil
}

// Counts returns the number of neurons and synapses the spec defines,
// before any extra capacity.
func (s *Spec) Counts() (neurons, synapses int) {
	size := make(map[string]int, len(s.Areas))
	for _, a := range s.Areas {
		n := 0
		if a.Grid != nil {
			n = a.Grid.Size()
		}
		size[ir.NormalizeName(a.Name)] = n
		neurons += n
	}
	for _, n := range s.Neurons {
		size[ir.NormalizeName(n.Area)]++
	}
	neurons += len(s.Neurons)
	synapses = len(s.Synapses)
	for _, p := range s.Projections {
		from, to := size[ir.NormalizeName(p.From)], size[ir.NormalizeName(p.To)]
		switch p.Pattern {
		case PatternAllToAll:
			synapses += from * to
			if ir.NormalizeName(p.From) == ir.NormalizeName(p.To) {
				synapses -= from
			}
		case PatternOneToOne:
			synapses += min(from, to)
		}
	}
	return neurons, synapses
}

// Build materializes the spec into stores of precision T.
func Build[T numeric.Value[T]](s *Spec) (*Network[T], error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connectome: %w", err)
	}
	nNeurons, nSynapses := s.Counts()
	net := &Network[T]{
		Neurons:  state.NewNeuronArray[T](max(nNeurons, s.Capacity.Neurons)),
		Synapses: state.NewSynapseArray(max(nSynapses, s.Capacity.Synapses)),
		Areas:    state.NewAreaTable(),
	}
	l := &layout{
		areaID:  make(map[string]ir.AreaID),
		members: make(map[ir.AreaID][]ir.NeuronID),
		byCoord: make(map[ir.AreaID]map[ir.Coord]ir.NeuronID),
	}

	areaDefaults := make(map[ir.AreaID]state.NeuronParams, len(s.Areas))
	for _, a := range s.Areas {
		if err := net.Areas.Register(state.AreaParams{
			ID:          a.ID,
			Name:        a.Name,
			PSPUniform:  a.PSPUniform,
			MPDrivenPSP: a.MPDrivenPSP,
		}); err != nil {
			return nil, err
		}
		l.areaID[ir.NormalizeName(a.Name)] = a.ID

		p := BaseParams()
		s.Defaults.apply(&p)
		a.Defaults.apply(&p)
		p.Area = a.ID
		areaDefaults[a.ID] = p
	}

	add := func(p state.NeuronParams) error {
		id, err := net.Neurons.Add(p)
		if err != nil {
			return fmt.Errorf("neuron at (%d,%d,%d) in area %d: %w", p.Coord.X, p.Coord.Y, p.Coord.Z, p.Area, err)
		}
		return l.place(p.Area, p.Coord, id)
	}

	for _, a := range s.Areas {
		if a.Grid == nil {
			continue
		}
		p := areaDefaults[a.ID]
		for z := uint32(0); z < max(a.Grid.Z, 1); z++ {
			for y := uint32(0); y < max(a.Grid.Y, 1); y++ {
				for x := uint32(0); x < max(a.Grid.X, 1); x++ {
					p.Coord = ir.Coord{X: x, Y: y, Z: z}
					if err := add(p); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	for i, n := range s.Neurons {
		area := l.areaID[ir.NormalizeName(n.Area)]
		p := areaDefaults[area]
		n.Params.apply(&p)
		p.Coord = ir.Coord{X: n.X, Y: n.Y, Z: n.Z}
		if err := add(p); err != nil {
			return nil, fmt.Errorf("neurons[%d]: %w", i, err)
		}
	}

	connect := func(src, dst ir.NeuronID, weight, psp uint8, typ string) error {
		t, err := ir.ParseSynapseType(typ)
		if err != nil {
			return err
		}
		_, err = net.Synapses.Add(state.SynapseParams{Source: src, Target: dst, Weight: weight, PSP: psp, Type: t})
		return err
	}

	for i, syn := range s.Synapses {
		src, err := l.resolve(syn.Source, net.Neurons.Len())
		if err != nil {
			return nil, fmt.Errorf("synapses[%d] source: %w", i, err)
		}
		dst, err := l.resolve(syn.Target, net.Neurons.Len())
		if err != nil {
			return nil, fmt.Errorf("synapses[%d] target: %w", i, err)
		}
		if err := connect(src, dst, syn.Weight, syn.PSP, syn.Type); err != nil {
			return nil, fmt.Errorf("synapses[%d]: %w", i, err)
		}
	}

	for i, p := range s.Projections {
		from := l.members[l.areaID[ir.NormalizeName(p.From)]]
		to := l.members[l.areaID[ir.NormalizeName(p.To)]]
		switch p.Pattern {
		case PatternAllToAll:
			for _, src := range from {
				for _, dst := range to {
					if src == dst {
						continue
					}
					if err := connect(src, dst, p.Weight, p.PSP, p.Type); err != nil {
						return nil, fmt.Errorf("projections[%d]: %w", i, err)
					}
				}
			}
		case PatternOneToOne:
			for k := range min(len(from), len(to)) {
				if err := connect(from[k], to[k], p.Weight, p.PSP, p.Type); err != nil {
					return nil, fmt.Errorf("projections[%d]: %w", i, err)
				}
			}
		}
	}
	return net, nil
}
