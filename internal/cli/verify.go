package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	engineFlags

	Drive     int
	Potential float32
	Epsilon   float64
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <connectome>",
		Short: "Check that the CPU and parallel backends agree burst by burst",
		Long: `Step a CPU engine and a parallel engine in lockstep with identical input
and compare their fire queues after every burst.

Exits 1 at the first burst where the fired neurons differ or a fired
neuron's potential differs by more than --epsilon.

Example:
  npu verify ./net.yaml --bursts 500 --precision int8`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args[0])
		},
	}

	opts.engineFlags.register(cmd, false)
	cmd.Flags().IntVar(&opts.Drive, "drive", 0, "neurons injected per burst (0 = a tenth of the network)")
	cmd.Flags().Float32Var(&opts.Potential, "potential", 1, "potential injected into each driven neuron")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", 1e-4, "tolerance for fired potentials")

	return cmd
}

// VerifyResult is the result of the verify command.
type VerifyResult struct {
	Connectome     string       `json:"connectome"`
	Precision      ir.Precision `json:"precision"`
	Bursts         uint64       `json:"bursts"`
	Fired          uint64       `json:"fired"`
	Match          bool         `json:"match"`
	DivergentBurst uint64       `json:"divergent_burst,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// WriteText renders the outcome for terminals.
func (r VerifyResult) WriteText(w io.Writer) error {
	if r.Match {
		_, err := fmt.Fprintf(w, "✓ %s: backends agree over %d bursts (%s, %d firings)\n",
			r.Connectome, r.Bursts, r.Precision, r.Fired)
		return err
	}
	_, err := fmt.Fprintf(w, "✗ %s: backends diverge at burst %d: %s\n", r.Connectome, r.DivergentBurst, r.Reason)
	return err
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, spec, err := loadInputs(cmd, &opts.engineFlags, out, path)
	if err != nil {
		return err
	}
	bursts := cfg.Engine.MaxBursts
	if bursts <= 0 {
		bursts = defaultDriveBursts
	}
	neurons, _ := spec.Counts()
	drive := opts.Drive
	if drive <= 0 {
		drive = max(1, neurons/10)
	}

	cpu, err := openBackend(cfg, spec, ir.BackendCPU, opts.Logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConnectome, "failed to build engine", err)
	}
	defer cpu.Close()
	par, err := openBackend(cfg, spec, ir.BackendParallel, opts.Logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConnectome, "failed to build engine", err)
	}
	defer par.Close()

	result := VerifyResult{Connectome: spec.Name, Precision: cpu.Precision(), Match: true}
	ctx := cmd.Context()
	for i := 0; i < bursts; i++ {
		batch := drivePattern(neurons, drive, opts.Potential, uint64(i))
		cpu.Inject(batch)
		par.Inject(batch)

		a, err := cpu.Step(ctx)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeEngine, "cpu backend failed", err)
		}
		b, err := par.Step(ctx)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeEngine, "parallel backend failed", err)
		}
		result.Bursts++
		result.Fired += uint64(len(a.Fired))

		if reason := compareBursts(a, b, opts.Epsilon); reason != "" {
			result.Match = false
			result.DivergentBurst = a.Burst
			result.Reason = reason
			opts.Logger.Warn("backends diverged", "burst", a.Burst, "reason", reason)
			break
		}
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if !result.Match {
		return NewExitError(ExitFailure, fmt.Sprintf("backends diverge at burst %d", result.DivergentBurst))
	}
	return nil
}

// compareBursts describes the first difference between two results of the
// same burst, or returns "" when they agree.
func compareBursts(a, b *engine.StepResult, epsilon float64) string {
	if ir.FireQueueDigest(a.Burst, a.Fired) != ir.FireQueueDigest(b.Burst, b.Fired) {
		return fmt.Sprintf("fire queues differ (%d vs %d fired)", len(a.Fired), len(b.Fired))
	}
	for i := range a.Fired {
		pa, pb := a.Fired[i].Potential, b.Fired[i].Potential
		if math.Abs(float64(pa-pb)) > epsilon {
			return fmt.Sprintf("neuron %d fired at potential %g vs %g", a.Fired[i].ID, pa, pb)
		}
	}
	return ""
}
