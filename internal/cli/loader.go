package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/config"
	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/ir"
)

// engineFlags are the configuration overrides shared by the commands that
// build an engine. Flags only override the config file when set.
type engineFlags struct {
	ConfigPath string
	Precision  string
	Backend    string
	Hz         float64
	Bursts     int
}

func (f *engineFlags) register(cmd *cobra.Command, withBackend bool) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "path to a YAML config file (defaults are built in)")
	cmd.Flags().StringVar(&f.Precision, "precision", "fp32", "membrane precision (fp32|int8)")
	cmd.Flags().IntVarP(&f.Bursts, "bursts", "n", 0, "number of bursts to run (overrides engine.max_bursts)")
	if withBackend {
		cmd.Flags().StringVar(&f.Backend, "backend", "auto", "compute backend (auto|cpu|parallel)")
		cmd.Flags().Float64Var(&f.Hz, "hz", 0, "burst frequency; 0 runs as fast as possible")
	}
}

// load reads the config file and applies the flags the user set.
func (f *engineFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("precision") {
		p, err := ir.ParsePrecision(f.Precision)
		if err != nil {
			return nil, err
		}
		cfg.Engine.Precision = string(p)
	}
	if flags.Changed("backend") {
		kind, err := ir.ParseBackendKind(f.Backend)
		if err != nil {
			return nil, err
		}
		cfg.Backend.Kind = kind
		cfg.Backend.ForceCPU, cfg.Backend.ForceParallel = false, false
	}
	if flags.Changed("hz") {
		cfg.Engine.BurstHz = f.Hz
	}
	if flags.Changed("bursts") {
		cfg.Engine.MaxBursts = f.Bursts
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadInputs resolves configuration and the connectome, reporting either
// failure through out.
func loadInputs(cmd *cobra.Command, flags *engineFlags, out *OutputFormatter, path string) (*config.Config, *connectome.Spec, error) {
	cfg, err := flags.load(cmd)
	if err != nil {
		return nil, nil, out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	spec, err := connectome.Load(path)
	if err != nil {
		return nil, nil, out.Fail(ExitCommandError, ErrCodeConnectome, "failed to load connectome", err)
	}
	neurons, synapses := spec.Counts()
	out.VerboseLog("connectome %s: %d neurons, %d synapses", spec.Name, neurons, synapses)
	return cfg, spec, nil
}

// parseSchedule parses --inject values of the form id:potential[@burst].
// A missing burst means the first burst of the run.
func parseSchedule(values []string) (map[uint64][]ir.Injection, error) {
	schedule := make(map[uint64][]ir.Injection)
	for _, v := range values {
		spec, burstText, hasBurst := strings.Cut(v, "@")
		idText, potText, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("injection %q: want id:potential[@burst]", v)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idText), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("injection %q: neuron id: %w", v, err)
		}
		pot, err := strconv.ParseFloat(strings.TrimSpace(potText), 32)
		if err != nil {
			return nil, fmt.Errorf("injection %q: potential: %w", v, err)
		}
		burst := uint64(1)
		if hasBurst {
			burst, err = strconv.ParseUint(strings.TrimSpace(burstText), 10, 64)
			if err != nil || burst == 0 {
				return nil, fmt.Errorf("injection %q: burst must be a positive integer", v)
			}
		}
		schedule[burst] = append(schedule[burst], ir.Injection{ID: ir.NeuronID(id), Potential: float32(pot)})
	}
	return schedule, nil
}

// drivePattern is the synthetic input bench and verify feed both backends:
// a window of width neurons that slides by width each burst and wraps at
// neurons.
func drivePattern(neurons, width int, potential float32, burst uint64) []ir.Injection {
	if neurons <= 0 || width <= 0 {
		return nil
	}
	width = min(width, neurons)
	start := int((burst * uint64(width)) % uint64(neurons))
	batch := make([]ir.Injection, width)
	for i := range batch {
		batch[i] = ir.Injection{ID: ir.NeuronID((start + i) % neurons), Potential: potential}
	}
	return batch
}
