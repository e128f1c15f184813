package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/config"
	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/store"
	"github.com/roach88/npu/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	engineFlags

	Database string
	CSV      string
	SampleHz float64
	Inject   []string

	// RunIDs overrides the run id generator (for testing). If nil,
	// defaults to store.UUIDv7Generator.
	RunIDs store.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <connectome>",
		Short: "Run a connectome for a number of bursts",
		Long: `Build a connectome and run the burst engine on it.

Bursts run as fast as possible unless --hz sets a frequency. With --db
every burst and its fire queue are recorded under a new run id; with
--csv per-burst statistics are written as CSV. --sample-hz logs a
rate-limited copy of the fire queue, grouped by area, at debug level.
Ctrl-C stops the run after the current burst.

Example:
  npu run ./net.yaml --bursts 1000 --db ./runs.db
  npu run ./net.yaml --inject 0:2.5 --inject 3:1@10 --backend parallel`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnectome(cmd, opts, args[0])
		},
	}

	opts.engineFlags.register(cmd, true)
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run to this SQLite database (overrides store.path)")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "write per-burst statistics to this CSV file (overrides telemetry.csv)")
	cmd.Flags().Float64Var(&opts.SampleHz, "sample-hz", 0, "sample the fire queue at this rate, 0 disables (overrides telemetry.sample_hz)")
	cmd.Flags().StringArrayVar(&opts.Inject, "inject", nil, "sensory input id:potential[@burst], repeatable")

	return cmd
}

// RunSummary is the result of the run command.
type RunSummary struct {
	RunID       string              `json:"run_id,omitempty"`
	Connectome  string              `json:"connectome"`
	Precision   ir.Precision        `json:"precision"`
	Backend     backend.Decision    `json:"backend"`
	Stats       engine.Stats        `json:"stats"`
	Perf        telemetry.PerfStats `json:"perf"`
	Samples     uint64              `json:"samples,omitempty"`
	Interrupted bool                `json:"interrupted,omitempty"`
}

// WriteText renders the summary for terminals.
func (s RunSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, `connectome %s  precision=%s  backend=%s (%s)
bursts     %d  fired=%d  processed=%d  synapses=%d
dropped    fcl=%d  queue=%d  injections_skipped=%d
burst_us   mean=%.1f  p50=%.1f  p99=%.1f  (%.0f bursts/s)
`,
		s.Connectome, s.Precision, s.Backend.Kind, s.Backend.Reason,
		s.Stats.Bursts, s.Stats.NeuronsFired, s.Stats.NeuronsProcessed, s.Stats.SynapsesProcessed,
		s.Stats.FCLDropped, s.Stats.QueueDropped, s.Stats.InjectionsSkipped,
		s.Perf.Burst.Mean, s.Perf.Burst.P50, s.Perf.Burst.P99, s.Perf.BurstsPerSecond,
	)
	if err != nil {
		return err
	}
	if s.RunID != "" {
		if _, err := fmt.Fprintf(w, "run        %s\n", s.RunID); err != nil {
			return err
		}
	}
	if s.Interrupted {
		_, err = fmt.Fprintln(w, "interrupted")
	}
	return err
}

func runConnectome(cmd *cobra.Command, opts *RunOptions, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := opts.Logger

	cfg, spec, err := loadInputs(cmd, &opts.engineFlags, out, path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = opts.Database
	}
	if cmd.Flags().Changed("csv") {
		cfg.Telemetry.CSV = opts.CSV
	}
	if cmd.Flags().Changed("sample-hz") {
		cfg.Telemetry.SampleHz = opts.SampleHz
	}
	if cfg.Telemetry.SampleHz < 0 {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", fmt.Errorf("sample rate must be >= 0, got %g", cfg.Telemetry.SampleHz))
	}
	schedule, err := parseSchedule(opts.Inject)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "invalid --inject", err)
	}

	precision, err := cfg.Precision()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	engOpts, err := cfg.EngineOptions()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	perf := telemetry.NewPerfCollector(0)
	engOpts = append(engOpts, engine.WithLogger(logger), engine.WithObserver(perf))

	csvOut, err := telemetry.CreateCSV(cfg.Telemetry.CSV)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to create telemetry CSV", err)
	}
	defer csvOut.Close()
	if csvOut != nil {
		engOpts = append(engOpts, engine.WithObserver(csvOut))
	}

	var (
		sampler     *telemetry.Sampler
		samplerDone chan struct{}
	)
	if cfg.Telemetry.SampleHz > 0 {
		sampler = telemetry.NewSampler(cfg.Telemetry.SampleHz, 16)
		samplerDone = make(chan struct{})
		go logSamples(logger, sampler.Samples(), samplerDone)
		engOpts = append(engOpts, engine.WithObserver(sampler))
	}

	var (
		st  *store.Store
		rec *store.Recorder
	)
	if cfg.Store.Path != "" {
		logger.Info("opening database", "path", cfg.Store.Path)
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	// The schedule observer goes last so that it sees bursts only after
	// they are recorded.
	var eng engine.Runner
	feed := engine.ObserverFunc(func(r *engine.StepResult) {
		if batch := schedule[r.Burst+1]; len(batch) > 0 {
			eng.Inject(batch)
		}
	})

	runID := ""
	if st != nil {
		gen := opts.RunIDs
		if gen == nil {
			gen = store.UUIDv7Generator{}
		}
		runID = gen.Generate()
		// Writes outlive cancellation so the burst in flight at Ctrl-C is
		// still recorded.
		rec = st.Recorder(context.WithoutCancel(ctx), runID)
		engOpts = append(engOpts, engine.WithObserver(rec))
	}
	engOpts = append(engOpts, engine.WithObserver(feed))

	eng, err = engine.Open(precision, spec, engOpts...)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConnectome, "failed to build engine", err)
	}
	defer eng.Close()

	summary := RunSummary{
		RunID:      runID,
		Connectome: spec.Name,
		Precision:  eng.Precision(),
		Backend:    eng.Backend(),
	}
	if st != nil {
		if err := createRun(ctx, st, summary, cfg, spec); err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "failed to create run", err)
		}
	}

	if batch := schedule[eng.Burst()+1]; len(batch) > 0 {
		eng.Inject(batch)
	}

	logger.Info("engine starting", "connectome", spec.Name, "backend", summary.Backend.Kind, "max_bursts", cfg.Engine.MaxBursts)
	runErr := eng.Run(ctx, cfg.Engine.BurstHz, uint64(cfg.Engine.MaxBursts))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return out.Fail(ExitFailure, ErrCodeEngine, "engine error", runErr)
	}
	summary.Interrupted = runErr != nil
	if sampler != nil {
		sampler.Close()
		<-samplerDone
		summary.Samples = sampler.Taken()
		logger.Debug("fire queue sampler stopped", "sampler", sampler)
	}

	summary.Stats = eng.Stats()
	summary.Perf = perf.Stats()
	summary.Perf.LogStats(logger)

	if rec != nil && rec.Err() != nil {
		return out.Fail(ExitFailure, ErrCodeStore, "failed to record bursts", rec.Err())
	}
	if err := csvOut.Err(); err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "failed to write telemetry CSV", err)
	}
	return out.Success(summary)
}

// logSamples drains samples until the channel closes.
func logSamples(logger *slog.Logger, samples <-chan telemetry.Sample, done chan<- struct{}) {
	defer close(done)
	for s := range samples {
		attrs := make([]any, 0, 4+2*len(s.Areas))
		attrs = append(attrs, "burst", s.Burst, "total", s.Total)
		for _, id := range s.AreaIDs() {
			attrs = append(attrs, fmt.Sprintf("area_%d", id), len(s.Areas[id]))
		}
		logger.Debug("fire queue sample", attrs...)
	}
}

func createRun(ctx context.Context, st *store.Store, s RunSummary, cfg *config.Config, spec *connectome.Spec) error {
	configHash, err := cfg.Hash()
	if err != nil {
		return err
	}
	connHash, err := connectome.Hash(spec)
	if err != nil {
		return err
	}
	return st.CreateRun(ctx, store.Run{
		ID:             s.RunID,
		StartedAt:      time.Now().UTC(),
		Precision:      s.Precision,
		Backend:        s.Backend.Kind,
		ConfigHash:     configHash,
		ConnectomeHash: connHash,
	})
}

// signalContext derives a context cancelled by SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
