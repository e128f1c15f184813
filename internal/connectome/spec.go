// Package connectome loads network descriptions into the neuron and
// synapse stores.
//
// A connectome is a YAML document with areas, explicit neurons, explicit
// synapses and projection generators. Neurons are numbered densely in
// document order: grid neurons area by area, then explicit neurons.
package connectome

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/npu/internal/ir"
)

// Spec is a parsed connectome document.
type Spec struct {
	// Name identifies the network in logs and run records.
	Name string `yaml:"name" json:"name"`

	// Capacity reserves store slots beyond what the document defines, for
	// neurons and synapses added at runtime. Zero means exactly fit.
	Capacity Capacity `yaml:"capacity,omitempty" json:"capacity"`

	// Defaults apply to every neuron before area and neuron overrides.
	Defaults Params `yaml:"defaults,omitempty" json:"defaults"`

	Areas       []Area       `yaml:"areas" json:"areas"`
	Neurons     []Neuron     `yaml:"neurons,omitempty" json:"neurons,omitempty"`
	Synapses    []Synapse    `yaml:"synapses,omitempty" json:"synapses,omitempty"`
	Projections []Projection `yaml:"projections,omitempty" json:"projections,omitempty"`
}

// Capacity is the store sizing.
type Capacity struct {
	Neurons  int `yaml:"neurons" json:"neurons"`
	Synapses int `yaml:"synapses" json:"synapses"`
}

// Area is a cortical area and, optionally, a grid of neurons in it.
type Area struct {
	ID          ir.AreaID `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	PSPUniform  bool      `yaml:"psp_uniform,omitempty" json:"psp_uniform"`
	MPDrivenPSP bool      `yaml:"mp_driven_psp,omitempty" json:"mp_driven_psp"`
	Defaults    Params    `yaml:"defaults,omitempty" json:"defaults"`
	Grid        *Grid     `yaml:"grid,omitempty" json:"grid,omitempty"`
}

// Grid generates one neuron per coordinate in [0,X)×[0,Y)×[0,Z), x
// fastest.
type Grid struct {
	X uint32 `yaml:"x" json:"x"`
	Y uint32 `yaml:"y" json:"y"`
	Z uint32 `yaml:"z" json:"z"`
}

// Size is the number of neurons the grid generates. Zero dimensions count
// as one.
func (g Grid) Size() int {
	return int(max(g.X, 1)) * int(max(g.Y, 1)) * int(max(g.Z, 1))
}

// Params overrides neuron parameters. Nil fields inherit.
type Params struct {
	Threshold            *float32 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	ThresholdLimit       *float32 `yaml:"threshold_limit,omitempty" json:"threshold_limit,omitempty"`
	Resting              *float32 `yaml:"resting,omitempty" json:"resting,omitempty"`
	Potential            *float32 `yaml:"potential,omitempty" json:"potential,omitempty"`
	Leak                 *float32 `yaml:"leak,omitempty" json:"leak,omitempty"`
	Excitability         *float32 `yaml:"excitability,omitempty" json:"excitability,omitempty"`
	RefractoryPeriod     *uint16  `yaml:"refractory_period,omitempty" json:"refractory_period,omitempty"`
	SnoozePeriod         *uint16  `yaml:"snooze_period,omitempty" json:"snooze_period,omitempty"`
	ConsecutiveFireLimit *uint16  `yaml:"consecutive_fire_limit,omitempty" json:"consecutive_fire_limit,omitempty"`
}

// Neuron is an explicitly placed neuron.
type Neuron struct {
	Area   string `yaml:"area" json:"area"`
	X      uint32 `yaml:"x" json:"x"`
	Y      uint32 `yaml:"y" json:"y"`
	Z      uint32 `yaml:"z" json:"z"`
	Params `yaml:",inline" json:"params"`
}

// Synapse is an explicit connection.
type Synapse struct {
	Source Endpoint `yaml:"source" json:"source"`
	Target Endpoint `yaml:"target" json:"target"`
	Weight uint8    `yaml:"weight" json:"weight"`
	PSP    uint8    `yaml:"psp" json:"psp"`
	Type   string   `yaml:"type,omitempty" json:"type,omitempty"`
}

// Endpoint names a neuron either by dense id (a YAML integer) or by area
// and coordinates (a YAML mapping).
type Endpoint struct {
	ID    *ir.NeuronID `json:"id,omitempty"`
	Area  string       `json:"area,omitempty"`
	Coord ir.Coord     `json:"coord"`
}

// UnmarshalYAML accepts `7` or `{area: v1, x: 0, y: 1, z: 0}`.
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var id uint32
		if err := node.Decode(&id); err != nil {
			return fmt.Errorf("line %d: endpoint id: %w", node.Line, err)
		}
		nid := ir.NeuronID(id)
		e.ID = &nid
		return nil
	case yaml.MappingNode:
		var ref struct {
			Area string `yaml:"area"`
			X    uint32 `yaml:"x"`
			Y    uint32 `yaml:"y"`
			Z    uint32 `yaml:"z"`
		}
		if err := node.Decode(&ref); err != nil {
			return fmt.Errorf("line %d: endpoint: %w", node.Line, err)
		}
		if ref.Area == "" {
			return fmt.Errorf("line %d: endpoint mapping requires area", node.Line)
		}
		e.Area = ref.Area
		e.Coord = ir.Coord{X: ref.X, Y: ref.Y, Z: ref.Z}
		return nil
	default:
		return fmt.Errorf("line %d: endpoint must be an id or a mapping", node.Line)
	}
}

// Projection patterns.
const (
	PatternAllToAll = "all_to_all"
	PatternOneToOne = "one_to_one"
)

// Projection generates synapses from every neuron of one area to neurons
// of another.
type Projection struct {
	From    string `yaml:"from" json:"from"`
	To      string `yaml:"to" json:"to"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Weight  uint8  `yaml:"weight" json:"weight"`
	PSP     uint8  `yaml:"psp" json:"psp"`
	Type    string `yaml:"type,omitempty" json:"type,omitempty"`
}

// Load reads and parses a connectome file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connectome file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a connectome document. Unknown fields are rejected.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse connectome YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connectome: %w", err)
	}
	return &s, nil
}

// Validate checks structure that does not need the stores: area
// uniqueness, references to known areas, pattern and type names.
func (s *Spec) Validate() error {
	if len(s.Areas) == 0 {
		return fmt.Errorf("at least one area is required")
	}
	names := make(map[string]bool, len(s.Areas))
	ids := make(map[ir.AreaID]bool, len(s.Areas))
	for i, a := range s.Areas {
		name := ir.NormalizeName(a.Name)
		if name == "" {
			return fmt.Errorf("areas[%d]: name is required", i)
		}
		if names[name] {
			return fmt.Errorf("areas[%d]: duplicate name %q", i, name)
		}
		if ids[a.ID] {
			return fmt.Errorf("areas[%d]: duplicate id %d", i, a.ID)
		}
		names[name], ids[a.ID] = true, true
	}
	known := func(n string) bool { return names[ir.NormalizeName(n)] }

	for i, n := range s.Neurons {
		if !known(n.Area) {
			return fmt.Errorf("neurons[%d]: unknown area %q", i, n.Area)
		}
	}
	for i, syn := range s.Synapses {
		for _, ep := range []Endpoint{syn.Source, syn.Target} {
			if ep.ID == nil && !known(ep.Area) {
				return fmt.Errorf("synapses[%d]: unknown area %q", i, ep.Area)
			}
		}
		if _, err := ir.ParseSynapseType(syn.Type); err != nil {
			return fmt.Errorf("synapses[%d]: %w", i, err)
		}
	}
	for i, p := range s.Projections {
		if !known(p.From) || !known(p.To) {
			return fmt.Errorf("projections[%d]: unknown area in %q -> %q", i, p.From, p.To)
		}
		if p.Pattern != PatternAllToAll && p.Pattern != PatternOneToOne {
			return fmt.Errorf("projections[%d]: unknown pattern %q", i, p.Pattern)
		}
		if _, err := ir.ParseSynapseType(p.Type); err != nil {
			return fmt.Errorf("projections[%d]: %w", i, err)
		}
	}
	return nil
}

// Hash is the connectome's content hash, recorded with each run.
func Hash(s *Spec) (string, error) {
	return ir.HashJSON(ir.DomainConnectome, s)
}
