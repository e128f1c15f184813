package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Area int64  // area to list firings for; -1 disables
	From uint64 // first burst of the area listing
	To   uint64 // last burst of the area listing; 0 means the run's last
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <db> [run-a [run-b]]",
		Short: "Inspect recorded runs and compare them burst by burst",
		Long: `Read runs recorded with "npu run --db".

With only a database, lists its runs. With one run id, summarizes the
run's bursts; --area also lists which neurons of that area fired. With
two run ids, compares their fire queues burst by burst and reports the
first divergence.

Exit codes:
  0 - Runs match (or nothing to compare)
  1 - Runs diverge
  2 - Command error (database or run not found, etc.)

Examples:
  npu replay ./runs.db
  npu replay ./runs.db 0192f7a0-... --area 2 --from 10 --to 20
  npu replay ./runs.db 0192f7a0-... 0192f7b3-... --format json`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args)
		},
	}

	cmd.Flags().Int64Var(&opts.Area, "area", -1, "list firings of this area id")
	cmd.Flags().Uint64Var(&opts.From, "from", 0, "first burst for --area")
	cmd.Flags().Uint64Var(&opts.To, "to", 0, "last burst for --area (0 = end of run)")

	return cmd
}

// RunList is the result of replay with only a database.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// WriteText prints one line per run.
func (l RunList) WriteText(w io.Writer) error {
	if len(l.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found in database.")
		return err
	}
	for _, r := range l.Runs {
		fmt.Fprintf(w, "%s  %s  %s/%s  connectome=%.12s\n",
			r.ID, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), r.Precision, r.Backend, r.ConnectomeHash)
	}
	return nil
}

// AreaBurst is one burst of an area listing.
type AreaBurst struct {
	Burst uint64        `json:"burst"`
	Fired []ir.NeuronID `json:"fired"`
}

// RunDetail is the result of replay with one run id.
type RunDetail struct {
	Run      store.Run   `json:"run"`
	Bursts   int         `json:"bursts"`
	Last     uint64      `json:"last_burst"`
	Fired    uint64      `json:"fired"`
	Synapses uint64      `json:"synapses"`
	Area     *ir.AreaID  `json:"area,omitempty"`
	Firings  []AreaBurst `json:"firings,omitempty"`
}

// WriteText summarizes the run and prints the area listing if any.
func (d RunDetail) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "run        %s\n", d.Run.ID)
	fmt.Fprintf(w, "precision  %s  backend=%s  engine=%s\n", d.Run.Precision, d.Run.Backend, d.Run.EngineVersion)
	fmt.Fprintf(w, "bursts     %d (last %d)  fired=%d  synapses=%d\n", d.Bursts, d.Last, d.Fired, d.Synapses)
	if d.Area != nil {
		fmt.Fprintf(w, "area %d:\n", *d.Area)
		for _, b := range d.Firings {
			fmt.Fprintf(w, "  %6d  %v\n", b.Burst, b.Fired)
		}
	}
	return nil
}

// ReplayResult is the result of replay with two run ids.
type ReplayResult struct {
	store.Comparison
}

// WriteText reports match or the first divergence.
func (r ReplayResult) WriteText(w io.Writer) error {
	if r.Match {
		_, err := fmt.Fprintf(w, "✓ %s and %s match over %d bursts\n", r.RunA, r.RunB, r.Compared)
		return err
	}
	_, err := fmt.Fprintf(w, "✗ %s and %s diverge at burst %d: %s\n", r.RunA, r.RunB, r.DivergentBurst, r.Reason)
	return err
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, args []string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	path := args[0]

	// Opening a missing path would create an empty database.
	if _, err := os.Stat(path); err != nil {
		return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	runFailure := func(err error) error {
		if errors.Is(err, store.ErrRunNotFound) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
		}
		return out.Fail(ExitCommandError, ErrCodeStore, "failed to read runs", err)
	}

	switch len(args) {
	case 1:
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return runFailure(err)
		}
		if runs == nil {
			runs = []store.Run{}
		}
		return out.Success(RunList{Runs: runs})

	case 2:
		detail, err := describeRun(cmd, st, args[1], opts)
		if err != nil {
			return runFailure(err)
		}
		return out.Success(detail)

	default:
		cmp, err := st.CompareRuns(ctx, args[1], args[2])
		if err != nil {
			return runFailure(err)
		}
		if err := out.Success(ReplayResult{cmp}); err != nil {
			return err
		}
		if !cmp.Match {
			return NewExitError(ExitFailure, fmt.Sprintf("runs diverge at burst %d", cmp.DivergentBurst))
		}
		return nil
	}
}

func describeRun(cmd *cobra.Command, st *store.Store, runID string, opts *ReplayOptions) (RunDetail, error) {
	ctx := cmd.Context()
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	bursts, err := st.ListBursts(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}

	d := RunDetail{Run: run, Bursts: len(bursts)}
	for _, b := range bursts {
		d.Fired += uint64(b.Fired)
		d.Synapses += uint64(b.Synapses)
		d.Last = max(d.Last, b.Burst)
	}
	if opts.Area < 0 {
		return d, nil
	}

	area := ir.AreaID(opts.Area)
	to := opts.To
	if to == 0 {
		to = d.Last
	}
	firings, err := st.ReadAreaFirings(ctx, runID, area, opts.From, to)
	if err != nil {
		return RunDetail{}, err
	}
	d.Area = &area
	d.Firings = []AreaBurst{}
	for _, b := range bursts {
		if b.Burst < opts.From || b.Burst > to {
			continue
		}
		ab := AreaBurst{Burst: b.Burst, Fired: []ir.NeuronID{}}
		for _, f := range firings[b.Burst] {
			ab.Fired = append(ab.Fired, f.ID)
		}
		d.Firings = append(d.Firings, ab)
	}
	return d, nil
}
