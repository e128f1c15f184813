package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NeuronID is a dense index into the neuron store.
type NeuronID uint32

// AreaID identifies a cortical area.
type AreaID uint32

// InvalidNeuron is never assigned to a neuron. The accelerated backend uses
// it as the empty-slot key of its source hash table.
const InvalidNeuron NeuronID = 0xFFFFFFFF

// SynapseType is the sign of a synaptic contribution.
type SynapseType uint8

const (
	// Excitatory synapses add to the target's potential.
	Excitatory SynapseType = 0
	// Inhibitory synapses subtract from the target's potential.
	Inhibitory SynapseType = 1
)

// Sign returns +1 for excitatory and -1 for inhibitory synapses.
// Any non-zero type is treated as inhibitory.
func (t SynapseType) Sign() float32 {
	if t == Excitatory {
		return 1
	}
	return -1
}

func (t SynapseType) String() string {
	if t == Excitatory {
		return "excitatory"
	}
	return "inhibitory"
}

// ParseSynapseType accepts "excitatory"/"exc"/"+" and "inhibitory"/"inh"/"-".
// An empty string defaults to excitatory.
func ParseSynapseType(s string) (SynapseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "excitatory", "exc", "+":
		return Excitatory, nil
	case "inhibitory", "inh", "-":
		return Inhibitory, nil
	default:
		return 0, fmt.Errorf("unknown synapse type %q", s)
	}
}

// Coord is a neuron's position within its cortical area.
type Coord struct {
	X uint32 `json:"x" yaml:"x"`
	Y uint32 `json:"y" yaml:"y"`
	Z uint32 `json:"z" yaml:"z"`
}

// FiringNeuron is one entry of a Fire Queue.
//
// Potential is the membrane potential at the moment the threshold check
// passed, before the post-fire reset.
type FiringNeuron struct {
	ID        NeuronID `json:"id" csv:"id"`
	Potential float32  `json:"potential" csv:"potential"`
	Area      AreaID   `json:"area" csv:"area"`
	X         uint32   `json:"x" csv:"x"`
	Y         uint32   `json:"y" csv:"y"`
	Z         uint32   `json:"z" csv:"z"`
}

// Injection is one sensory input: potential added to a neuron's FCL entry
// before dynamics runs.
type Injection struct {
	ID        NeuronID `json:"id" yaml:"id"`
	Potential float32  `json:"potential" yaml:"potential"`
}

// Precision selects the numeric representation of membrane state.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionInt8 Precision = "int8"
)

// ParsePrecision normalizes a precision string. Accepted spellings are
// fp32, f32, float32, int8 and i8 (case-insensitive).
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fp32", "f32", "float32":
		return PrecisionFP32, nil
	case "int8", "i8":
		return PrecisionInt8, nil
	default:
		return "", fmt.Errorf("unknown precision %q (want fp32 or int8)", s)
	}
}

// BackendKind names a compute backend implementation.
type BackendKind string

const (
	BackendCPU      BackendKind = "cpu"
	BackendParallel BackendKind = "parallel"
	// BackendAuto defers the choice to backend.Select.
	BackendAuto BackendKind = "auto"
)

// ParseBackendKind validates a backend name.
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendCPU:
		return BackendCPU, nil
	case BackendParallel, "gpu":
		return BackendParallel, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want cpu, parallel or auto)", s)
	}
}

// NormalizeName NFC-normalizes and trims an area or scenario name so that
// visually identical names compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
