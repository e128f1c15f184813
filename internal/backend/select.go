package backend

import (
	"fmt"
	"math"
	"runtime"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

// Default selection thresholds. Either one crossing is enough to consider
// the parallel backend.
const (
	DefaultNeuronThreshold  = 500_000
	DefaultSynapseThreshold = 50_000_000

	// minUsefulSpeedup is the estimated gain below which the parallel
	// backend is not worth its dispatch overhead.
	minUsefulSpeedup = 1.5
)

// Config drives backend selection and construction.
type Config struct {
	Kind             ir.BackendKind `yaml:"kind" json:"kind"`
	ForceCPU         bool           `yaml:"force_cpu" json:"force_cpu"`
	ForceParallel    bool           `yaml:"force_parallel" json:"force_parallel"`
	NeuronThreshold  int            `yaml:"neuron_threshold" json:"neuron_threshold"`
	SynapseThreshold int            `yaml:"synapse_threshold" json:"synapse_threshold"`

	Workers          int   `yaml:"workers" json:"workers"`
	Threshold        int   `yaml:"parallel_threshold" json:"parallel_threshold"`
	MinTableCapacity int   `yaml:"min_table_capacity" json:"min_table_capacity"`
	MemoryBudget     int64 `yaml:"memory_budget" json:"memory_budget"`
}

// DefaultConfig returns automatic selection with the default thresholds.
func DefaultConfig() Config {
	return Config{
		Kind:             ir.BackendAuto,
		NeuronThreshold:  DefaultNeuronThreshold,
		SynapseThreshold: DefaultSynapseThreshold,
	}
}

// Validate checks the configuration before any backend is built.
func (c Config) Validate() error {
	if c.ForceCPU && c.ForceParallel {
		return fmt.Errorf("backend config: force_cpu and force_parallel are mutually exclusive")
	}
	if c.Workers < 0 || c.Threshold < 0 || c.MinTableCapacity < 0 || c.MemoryBudget < 0 {
		return fmt.Errorf("backend config: workers, parallel_threshold, min_table_capacity and memory_budget must be non-negative")
	}
	if _, err := ir.ParseBackendKind(string(c.Kind)); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Decision is the outcome of Select.
type Decision struct {
	Kind             ir.BackendKind `json:"kind"`
	Reason           string         `json:"reason"`
	EstimatedSpeedup float64        `json:"estimated_speedup"`
}

// EstimateSpeedup models the parallel backend's gain over the CPU backend
// for a network size: per-step compute divided across workers plus a fixed
// dispatch and barrier cost, capped at the worker count.
func EstimateSpeedup(neurons, synapses, workers int) float64 {
	if workers <= 1 {
		return 1
	}
	const (
		nsPerSynapse  = 2.0
		nsPerNeuron   = 6.0
		dispatchNanos = 40_000.0
	)
	serial := float64(synapses)*nsPerSynapse + float64(neurons)*nsPerNeuron
	parallel := serial/float64(workers) + dispatchNanos
	return math.Max(0.1, math.Min(float64(workers), serial/parallel))
}

// Select picks a backend for a network of the given size. It runs once,
// at engine construction.
func Select(cfg Config, neurons, synapses int) Decision {
	workers := cfg.workers()
	switch {
	case cfg.ForceCPU || cfg.Kind == ir.BackendCPU:
		return Decision{Kind: ir.BackendCPU, Reason: "forced cpu via configuration", EstimatedSpeedup: 1}
	case cfg.ForceParallel || cfg.Kind == ir.BackendParallel:
		return Decision{
			Kind:             ir.BackendParallel,
			Reason:           "forced parallel via configuration",
			EstimatedSpeedup: EstimateSpeedup(neurons, synapses, workers),
		}
	}

	nt, st := cfg.NeuronThreshold, cfg.SynapseThreshold
	if nt <= 0 {
		nt = DefaultNeuronThreshold
	}
	if st <= 0 {
		st = DefaultSynapseThreshold
	}
	if neurons >= nt || synapses >= st {
		if speedup := EstimateSpeedup(neurons, synapses, workers); speedup > minUsefulSpeedup {
			return Decision{
				Kind:             ir.BackendParallel,
				Reason:           fmt.Sprintf("parallel selected: %d neurons, %d synapses, %d workers", neurons, synapses, workers),
				EstimatedSpeedup: speedup,
			}
		}
	}
	return Decision{
		Kind:             ir.BackendCPU,
		Reason:           fmt.Sprintf("cpu selected: %d neurons, %d synapses (below parallel thresholds or no useful speedup)", neurons, synapses),
		EstimatedSpeedup: 1,
	}
}

// New builds the backend named by kind.
func New[T numeric.Value[T]](kind ir.BackendKind, cfg Config, dyn Dynamics) (Backend[T], error) {
	switch kind {
	case ir.BackendCPU:
		return NewCPU[T](dyn), nil
	case ir.BackendParallel:
		return NewParallel[T](dyn, ParallelOptions{
			Workers:          cfg.Workers,
			Threshold:        cfg.Threshold,
			MinTableCapacity: cfg.MinTableCapacity,
			MemoryBudget:     cfg.MemoryBudget,
		}), nil
	default:
		return nil, fmt.Errorf("no backend for kind %q", kind)
	}
}
