package cli

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/config"
	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/telemetry"
)

const defaultDriveBursts = 1000

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	engineFlags

	Warmup    int
	Drive     int
	Potential float32
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench <connectome>",
		Short: "Time the CPU and parallel backends on a connectome",
		Long: `Run the same connectome and input on both backends and compare burst
timings.

Every burst a window of --drive neurons receives --potential; the window
slides through the network. Warmup bursts are run but not timed.

Example:
  npu bench ./net.yaml --bursts 5000 --drive 64`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, opts, args[0])
		},
	}

	opts.engineFlags.register(cmd, false)
	cmd.Flags().IntVar(&opts.Warmup, "warmup", 10, "untimed bursts before measuring")
	cmd.Flags().IntVar(&opts.Drive, "drive", 0, "neurons injected per burst (0 = a tenth of the network)")
	cmd.Flags().Float32Var(&opts.Potential, "potential", 1, "potential injected into each driven neuron")

	return cmd
}

// BackendBench is one backend's measurements.
type BackendBench struct {
	Backend ir.BackendKind      `json:"backend"`
	Fired   uint64              `json:"fired"`
	Perf    telemetry.PerfStats `json:"perf"`
}

// BenchResult is the result of the bench command.
type BenchResult struct {
	Connectome       string         `json:"connectome"`
	Neurons          int            `json:"neurons"`
	Synapses         int            `json:"synapses"`
	Bursts           int            `json:"bursts"`
	Workers          int            `json:"workers"`
	Backends         []BackendBench `json:"backends"`
	Speedup          float64        `json:"speedup"`
	EstimatedSpeedup float64        `json:"estimated_speedup"`
}

// WriteText renders the comparison for terminals.
func (r BenchResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "connectome %s  neurons=%d  synapses=%d  bursts=%d  workers=%d\n",
		r.Connectome, r.Neurons, r.Synapses, r.Bursts, r.Workers)
	for _, b := range r.Backends {
		fmt.Fprintf(w, "%-9s mean=%.1fus  p50=%.1fus  p99=%.1fus  %.0f bursts/s  fired=%d\n",
			b.Backend, b.Perf.Burst.Mean, b.Perf.Burst.P50, b.Perf.Burst.P99, b.Perf.BurstsPerSecond, b.Fired)
	}
	_, err := fmt.Fprintf(w, "speedup   %.2fx (estimated %.2fx)\n", r.Speedup, r.EstimatedSpeedup)
	return err
}

func runBench(cmd *cobra.Command, opts *BenchOptions, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, spec, err := loadInputs(cmd, &opts.engineFlags, out, path)
	if err != nil {
		return err
	}
	bursts := cfg.Engine.MaxBursts
	if bursts <= 0 {
		bursts = defaultDriveBursts
	}
	neurons, synapses := spec.Counts()
	drive := opts.Drive
	if drive <= 0 {
		drive = max(1, neurons/10)
	}
	workers := cfg.Backend.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	result := BenchResult{
		Connectome:       spec.Name,
		Neurons:          neurons,
		Synapses:         synapses,
		Bursts:           bursts,
		Workers:          workers,
		EstimatedSpeedup: backend.EstimateSpeedup(neurons, synapses, workers),
	}

	ctx := cmd.Context()
	for _, kind := range []ir.BackendKind{ir.BackendCPU, ir.BackendParallel} {
		eng, err := openBackend(cfg, spec, kind, opts.Logger)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeConnectome, "failed to build engine", err)
		}

		perf := telemetry.NewPerfCollector(bursts)
		for i := 0; i < opts.Warmup+bursts; i++ {
			eng.Inject(drivePattern(neurons, drive, opts.Potential, uint64(i)))
			res, err := eng.Step(ctx)
			if err != nil {
				eng.Close()
				return out.Fail(ExitFailure, ErrCodeEngine, fmt.Sprintf("%s backend failed", kind), err)
			}
			if i >= opts.Warmup {
				perf.Record(res.Timing)
			}
		}
		stats := perf.Stats()
		stats.LogStats(opts.Logger.With("backend", kind))
		result.Backends = append(result.Backends, BackendBench{
			Backend: kind,
			Fired:   eng.Stats().NeuronsFired,
			Perf:    stats,
		})
		if err := eng.Close(); err != nil {
			return out.Fail(ExitFailure, ErrCodeEngine, "failed to close engine", err)
		}
	}

	cpu, par := result.Backends[0].Perf.Burst.Mean, result.Backends[1].Perf.Burst.Mean
	if par > 0 {
		result.Speedup = cpu / par
	}
	return out.Success(result)
}

// openBackend builds an engine for spec pinned to kind.
func openBackend(cfg *config.Config, spec *connectome.Spec, kind ir.BackendKind, logger *slog.Logger, extra ...engine.Option) (engine.Runner, error) {
	precision, err := cfg.Precision()
	if err != nil {
		return nil, err
	}
	engOpts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	engOpts = append(engOpts, engine.WithBackend(kind), engine.WithLogger(logger))
	engOpts = append(engOpts, extra...)
	return engine.Open(precision, spec, engOpts...)
}
