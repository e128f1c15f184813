package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/state"
)

// StepResult describes one completed burst.
type StepResult struct {
	Burst uint64            `json:"burst"`
	Fired []ir.FiringNeuron `json:"fired"`

	backend.BurstResult

	Injected          int `json:"injected"`
	InjectionsSkipped int `json:"injections_skipped"`
	FCLSize           int `json:"fcl_size"`
	FCLDropped        int `json:"fcl_dropped"`
	QueueDropped      int `json:"queue_dropped"`
}

// Observer consumes completed bursts. Observers run after the burst's
// lock is released, in registration order, on the stepping goroutine.
// The result is theirs to keep.
type Observer interface {
	ObserveBurst(r *StepResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r *StepResult)

func (f ObserverFunc) ObserveBurst(r *StepResult) { f(r) }

// Engine is the burst engine for one precision.
//
// Thread-safety model:
//   - Inject, Stats, Burst, LastFireQueue, Stop: safe from any goroutine
//   - Step, Mutate, OnConnectomeChange: serialized by the step lock
//   - Run: one goroutine at a time
type Engine[T numeric.Value[T]] struct {
	mu       sync.Mutex
	net      *backend.Network[T]
	backend  backend.Backend[T]
	decision backend.Decision
	selector backend.Config
	dynamics backend.Dynamics
	fcl      *fire.FCL
	queue    *fire.FireQueue
	ledger   *fire.FireLedger
	clock    *Clock
	inputs   *injectionQueue

	prevFired []ir.FiringNeuron
	injected  []ir.Injection
	dirty     bool

	lastMu sync.RWMutex
	last   *fire.FireQueue

	stats     counters
	logger    *slog.Logger
	observers []Observer

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds an engine over the given stores. The engine takes ownership
// of them; mutate them afterwards only through Mutate.
//
// The backend is selected here from the backend configuration and the
// network size, and again only when the connectome changes. Any
// configuration or backend initialization failure is returned as an
// *EngineError before the first burst.
func New[T numeric.Value[T]](neurons *state.NeuronArray[T], synapses *state.SynapseArray, areas *state.AreaTable, opts ...Option) (*Engine[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if neurons == nil || synapses == nil {
		return nil, newConfigError("neuron and synapse stores are required")
	}
	if areas == nil {
		areas = state.NewAreaTable()
	}

	net := &backend.Network[T]{
		Neurons:  neurons,
		Synapses: synapses,
		Index:    state.BuildSourceIndex(synapses),
		Areas:    areas,
	}

	decision := backend.Select(o.backendCfg, neurons.Count(), synapses.Count())
	dyn := backend.Dynamics{
		Random:                o.random,
		FailedRollResetsCount: o.failedRollDrop,
		ScanAll:               o.scanAll,
	}
	b, err := backend.New[T](decision.Kind, o.backendCfg, dyn)
	if err != nil {
		return nil, newInitError(err)
	}
	if err := b.Initialize(net); err != nil {
		_ = b.Close()
		return nil, newInitError(err)
	}

	e := &Engine[T]{
		net:       net,
		backend:   b,
		decision:  decision,
		selector:  o.backendCfg,
		dynamics:  dyn,
		fcl:       fire.NewFCL(o.fclCapacity, o.policy),
		queue:     fire.NewFireQueue(o.queueCapacity, o.policy),
		clock:     NewClockAt(o.startBurst),
		inputs:    newInjectionQueue(),
		last:      fire.NewFireQueue(0, o.policy),
		logger:    o.logger,
		observers: o.observers,
		stopCh:    make(chan struct{}),
	}
	e.last.Reset(o.startBurst)

	if o.ledgerWindow > 0 {
		e.ledger = fire.NewFireLedger()
		for _, id := range ledgerAreas(neurons, areas) {
			if err := e.ledger.Track(id, o.ledgerWindow); err != nil {
				_ = b.Close()
				return nil, newConfigError("ledger: %v", err)
			}
		}
	}

	e.logger.Info("engine ready",
		"precision", numeric.PrecisionOf[T](),
		"backend", decision.Kind,
		"reason", decision.Reason,
		"neurons", neurons.Count(),
		"synapses", synapses.Count(),
	)
	return e, nil
}

// Inject queues sensory input for the next burst. Contributions merge
// additively into the FCL after propagation. Ids that are out of range or
// invalid when the burst runs are skipped. Returns false after Stop.
func (e *Engine[T]) Inject(batch []ir.Injection) bool {
	return e.inputs.Enqueue(batch)
}

// Step runs one burst.
//
// Cancellation is honored only before the burst starts; a started burst
// always runs to completion. Capacity overflows under the fail policy and
// backend failures abort the burst with an *EngineError. The burst number
// is consumed either way, and the failed burst's fired set does not
// propagate.
func (e *Engine[T]) Step(ctx context.Context) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.stopped.Load() {
		return nil, &EngineError{Code: ErrCodeStopped, Message: "engine stopped", Burst: e.clock.Current()}
	}

	res, err := e.step(context.WithoutCancel(ctx))
	if err != nil {
		e.stats.failed.Add(1)
		return nil, err
	}

	e.stats.record(res)
	if res.FCLDropped > 0 || res.QueueDropped > 0 {
		e.logger.Warn("burst capacity exceeded",
			"burst", res.Burst,
			"fcl_dropped", res.FCLDropped,
			"queue_dropped", res.QueueDropped,
		)
	}
	e.logger.Debug("burst complete",
		"burst", res.Burst,
		"fired", res.Dynamics.Fired,
		"processed", res.Dynamics.Processed,
		"synapses", res.Propagation.Synapses,
		"duration", res.Timing.Total,
	)

	for _, obs := range e.observers {
		obs.ObserveBurst(res)
	}
	return res, nil
}

func (e *Engine[T]) step(ctx context.Context) (*StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dirty {
		if err := e.reinitialize(); err != nil {
			return nil, err
		}
	}

	burst := e.clock.Next()
	res := &StepResult{Burst: burst}

	e.injected = e.inputs.Drain(e.injected[:0])
	valid := e.injected[:0]
	for _, in := range e.injected {
		if e.net.Neurons.IsValid(in.ID) {
			valid = append(valid, in)
		}
	}
	res.Injected = len(valid)
	res.InjectionsSkipped = len(e.injected) - len(valid)

	br, err := backend.Step(ctx, e.backend, e.prevFired, valid, e.fcl, burst, e.queue)
	if err != nil {
		e.prevFired = e.prevFired[:0]
		return nil, classify(burst, err)
	}
	res.BurstResult = br
	res.FCLSize = e.fcl.Len()
	res.FCLDropped = e.fcl.Dropped()
	res.QueueDropped = e.queue.Dropped()

	e.prevFired = append(e.prevFired[:0], e.queue.Neurons...)
	res.Fired = slices.Clone(e.queue.Neurons)

	if e.ledger != nil {
		if err := e.ledger.Record(burst, e.queue); err != nil {
			return nil, &EngineError{Code: ErrCodeBackendFailure, Message: "fire ledger rejected burst", Burst: burst, Err: err}
		}
	}

	e.lastMu.Lock()
	e.last = e.queue.Clone()
	e.lastMu.Unlock()
	return res, nil
}

// ledgerAreas lists registered areas plus any area a neuron is placed in.
func ledgerAreas[T numeric.Value[T]](neurons *state.NeuronArray[T], areas *state.AreaTable) []ir.AreaID {
	seen := make(map[ir.AreaID]struct{})
	for _, id := range areas.IDs() {
		seen[id] = struct{}{}
	}
	for i := 0; i < neurons.Len(); i++ {
		if neurons.Valid[i] {
			seen[neurons.Area[i]] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func classify(burst uint64, err error) *EngineError {
	if errors.Is(err, fire.ErrFCLOverflow) || errors.Is(err, fire.ErrFireQueueOverflow) {
		return &EngineError{Code: ErrCodeCapacityExceeded, Message: "capacity exceeded", Burst: burst, Err: err}
	}
	return &EngineError{Code: ErrCodeBackendFailure, Message: "backend phase failed", Burst: burst, Err: err}
}

// reinitialize rebuilds derived data after a store mutation and repeats
// backend selection for the new network size. A different choice swaps
// in a freshly initialized backend; the old one is closed only after the
// new one is ready. Caller holds mu.
func (e *Engine[T]) reinitialize() error {
	e.net.Index.Rebuild(e.net.Synapses)
	neurons, synapses := e.net.Neurons.Count(), e.net.Synapses.Count()
	decision := backend.Select(e.selector, neurons, synapses)

	if decision.Kind == e.backend.Kind() {
		if err := e.backend.Initialize(e.net); err != nil {
			return newInitError(err)
		}
	} else {
		b, err := backend.New[T](decision.Kind, e.selector, e.dynamics)
		if err != nil {
			return newInitError(err)
		}
		if err := b.Initialize(e.net); err != nil {
			_ = b.Close()
			return newInitError(err)
		}
		if err := e.backend.Close(); err != nil {
			e.logger.Warn("closing replaced backend", "backend", e.backend.Kind(), "error", err)
		}
		e.backend = b
		e.logger.Info("backend reselected",
			"backend", decision.Kind,
			"reason", decision.Reason,
			"neurons", neurons,
			"synapses", synapses,
		)
	}

	e.lastMu.Lock()
	e.decision = decision
	e.lastMu.Unlock()
	e.dirty = false
	return nil
}

// Run steps the engine until ctx is cancelled, Stop is called, or
// maxBursts bursts have run (0 means no limit). With hz > 0 bursts are
// paced by a ticker; with hz == 0 they run back to back. It never waits
// for input and stops only between bursts.
//
// A cancelled context returns ctx.Err(); Stop and the burst limit return
// nil; a failed burst returns its *EngineError.
func (e *Engine[T]) Run(ctx context.Context, hz float64, maxBursts uint64) error {
	if hz < 0 {
		return newConfigError("burst frequency %v is negative", hz)
	}
	e.logger.Info("engine starting", "hz", hz, "max_bursts", maxBursts, "backend", e.Backend().Kind)

	var tick <-chan time.Time
	if hz > 0 {
		t := time.NewTicker(time.Duration(float64(time.Second) / hz))
		defer t.Stop()
		tick = t.C
	}

	for n := uint64(0); maxBursts == 0 || n < maxBursts; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				e.logger.Info("engine stopping: context cancelled", "burst", e.Burst())
				return ctx.Err()
			case <-e.stopCh:
				e.logger.Info("engine stopping: stopped", "burst", e.Burst())
				return nil
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				e.logger.Info("engine stopping: context cancelled", "burst", e.Burst())
				return ctx.Err()
			case <-e.stopCh:
				e.logger.Info("engine stopping: stopped", "burst", e.Burst())
				return nil
			default:
			}
		}

		if _, err := e.Step(ctx); err != nil {
			if IsStopped(err) {
				return nil
			}
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return err
			}
			e.logger.Error("burst failed", "error", err)
			return err
		}
	}
	e.logger.Info("engine stopping: burst limit reached", "burst", e.Burst())
	return nil
}

// Stop ends the run at the next burst boundary. A burst in flight
// completes. Further steps and injections are rejected.
func (e *Engine[T]) Stop() {
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		e.inputs.Close()
		close(e.stopCh)
	})
}

// Close stops the engine and releases the backend.
func (e *Engine[T]) Close() error {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}

// LastFireQueue returns a copy of the most recent burst's fire queue.
func (e *Engine[T]) LastFireQueue() *fire.FireQueue {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last.Clone()
}

// Stats returns a snapshot of the aggregate counters.
func (e *Engine[T]) Stats() Stats {
	return e.stats.snapshot()
}

// Burst returns the latest burst number.
func (e *Engine[T]) Burst() uint64 {
	return e.clock.Current()
}

// Precision reports the membrane representation.
func (e *Engine[T]) Precision() ir.Precision {
	return numeric.PrecisionOf[T]()
}

// Backend reports the current backend selection: the one made in New, or
// the latest one after a connectome change.
func (e *Engine[T]) Backend() backend.Decision {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.decision
}

// Neuron returns a neuron's mutable state between bursts.
func (e *Engine[T]) Neuron(id ir.NeuronID) state.NeuronState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Neurons.State(id)
}

// History returns the area's fired sets for bursts (end-depth, end],
// oldest first.
func (e *Engine[T]) History(area ir.AreaID, end uint64, depth int) ([]fire.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ledger == nil {
		return nil, fmt.Errorf("%w: ledger disabled", fire.ErrAreaNotTracked)
	}
	return e.ledger.History(area, end, depth)
}

// Mutate runs fn with exclusive access to the network between bursts, for
// plasticity and topology edits. The source index and backend are rebuilt
// before the next burst.
func (e *Engine[T]) Mutate(fn func(net *backend.Network[T]) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty = true
	return fn(e.net)
}

// OnConnectomeChange rebuilds the source index and re-initializes the
// backend now, reporting any initialization failure.
func (e *Engine[T]) OnConnectomeChange() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reinitialize()
}
