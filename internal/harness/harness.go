package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/store"
	"github.com/roach88/npu/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and a fixed run id.
type Harness struct {
	store    *store.Store
	engine   engine.Runner
	recorder *store.Recorder
	runID    string
	logger   *slog.Logger
}

// Run executes a scenario on its configured backend.
func Run(scenario *Scenario) (*Result, error) {
	kind, err := scenario.backend()
	if err != nil {
		return nil, err
	}
	return RunOn(scenario, kind)
}

// RunOn executes a scenario on the given backend, overriding the one the
// scenario names.
//
// Execution flow:
// 1. Create fresh in-memory database and a run under a fixed id
// 2. Build the connectome and an engine recording into the run
// 3. Execute steps, checking expectations after each
// 4. Read the trace back from the store
func RunOn(scenario *Scenario, kind ir.BackendKind) (*Result, error) {
	return RunContext(context.Background(), scenario, kind, nil)
}

// RunContext is RunOn with a context and logger. An empty kind runs the
// scenario's own backend; a nil logger discards.
func RunContext(ctx context.Context, scenario *Scenario, kind ir.BackendKind, logger *slog.Logger) (*Result, error) {
	if kind == "" {
		var err error
		if kind, err = scenario.backend(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario, kind, logger)
	if err != nil {
		return nil, err
	}
	defer h.engine.Close()

	result := NewResult(kind)
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	if err := h.recorder.Err(); err != nil {
		return nil, fmt.Errorf("failed to record bursts: %w", err)
	}

	trace, err := h.readTrace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = trace
	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, scenario *Scenario, kind ir.BackendKind, logger *slog.Logger) (*Harness, error) {
	spec, err := scenario.network()
	if err != nil {
		return nil, fmt.Errorf("failed to load connectome: %w", err)
	}
	cfg, err := scenario.config()
	if err != nil {
		return nil, err
	}
	precision, err := cfg.Precision()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	configHash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}
	connectomeHash, err := connectome.Hash(spec)
	if err != nil {
		return nil, err
	}

	runID := testutil.NewFixedRunIDGenerator(scenario.Name).Generate()
	run := store.Run{
		ID:             runID,
		StartedAt:      testutil.NewDeterministicClock().Now(),
		Precision:      precision,
		Backend:        kind,
		ConfigHash:     configHash,
		ConnectomeHash: connectomeHash,
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	rec := st.Recorder(ctx, runID)

	opts = append(opts,
		engine.WithBackend(kind),
		engine.WithLogger(logger),
		engine.WithObserver(rec),
	)
	eng, err := engine.Open(precision, spec, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	return &Harness{
		store:    st,
		engine:   eng,
		recorder: rec,
		runID:    runID,
		logger:   logger,
	}, nil
}

// executeSteps runs every step and records failed expectations.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		repeat := max(step.Repeat, 1)

		var res *engine.StepResult
		for r := 0; r < repeat; r++ {
			if len(step.Inject) > 0 && !h.engine.Inject(step.Inject) {
				return fmt.Errorf("step %d: engine stopped", i)
			}
			var err error
			res, err = h.engine.Step(ctx)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}

		for _, msg := range EvaluateAssertions(step.Expect, res, h.engine) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}

		h.logger.Debug("step completed",
			"step", i,
			"burst", res.Burst,
			"fired", len(res.Fired),
		)
	}
	return nil
}

// readTrace rebuilds the trace from the recorded run.
func (h *Harness) readTrace(ctx context.Context) ([]TraceEvent, error) {
	bursts, err := h.store.ListBursts(ctx, h.runID)
	if err != nil {
		return nil, err
	}
	trace := make([]TraceEvent, 0, len(bursts))
	for _, b := range bursts {
		firings, err := h.store.ReadFirings(ctx, h.runID, b.Burst)
		if err != nil {
			return nil, err
		}
		ids := make([]ir.NeuronID, len(firings))
		for i, f := range firings {
			ids[i] = f.ID
		}
		trace = append(trace, TraceEvent{Burst: b.Burst, Fired: ids})
	}
	return trace, nil
}
