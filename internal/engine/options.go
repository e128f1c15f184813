package engine

import (
	"log/slog"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/rng"
)

// DefaultLedgerWindow is the number of bursts of fire history kept per
// area.
const DefaultLedgerWindow = 64

type options struct {
	backendCfg     backend.Config
	fclCapacity    int
	queueCapacity  int
	policy         fire.OverflowPolicy
	random         rng.Func
	ledgerWindow   int
	failedRollDrop bool
	scanAll        bool
	startBurst     uint64
	logger         *slog.Logger
	observers      []Observer
}

func defaultOptions() options {
	return options{
		backendCfg:   backend.DefaultConfig(),
		policy:       fire.PolicyReject,
		random:       rng.Excitability,
		ledgerWindow: DefaultLedgerWindow,
	}
}

// Option configures an Engine.
type Option func(*options)

// WithBackend forces a backend kind. ir.BackendAuto restores automatic
// selection.
func WithBackend(kind ir.BackendKind) Option {
	return func(o *options) {
		o.backendCfg.Kind = kind
		o.backendCfg.ForceCPU = false
		o.backendCfg.ForceParallel = false
	}
}

// WithBackendConfig replaces the backend selection and tuning settings.
func WithBackendConfig(cfg backend.Config) Option {
	return func(o *options) { o.backendCfg = cfg }
}

// WithFCLCapacity bounds the number of distinct FCL entries per burst.
// 0 (the default) is unbounded.
func WithFCLCapacity(n int) Option {
	return func(o *options) { o.fclCapacity = n }
}

// WithFireQueueCapacity bounds the number of fired neurons recorded per
// burst. 0 (the default) is unbounded.
func WithFireQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// WithOverflowPolicy selects what happens when a capacity is exceeded.
func WithOverflowPolicy(p fire.OverflowPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithRNG replaces the excitability draw.
func WithRNG(f rng.Func) Option {
	return func(o *options) { o.random = f }
}

// WithLedgerWindow sets the per-area fire history depth. 0 disables the
// ledger.
func WithLedgerWindow(n int) Option {
	return func(o *options) { o.ledgerWindow = n }
}

// WithFailedRollResetsCount makes a failed excitability roll above
// threshold reset the consecutive fire count.
func WithFailedRollResetsCount(on bool) Option {
	return func(o *options) { o.failedRollDrop = on }
}

// WithScanAll processes every valid neuron each burst, so neurons without
// input still leak and count down.
func WithScanAll(on bool) Option {
	return func(o *options) { o.scanAll = on }
}

// WithStartBurst resumes the burst clock at n; the first step is n+1.
func WithStartBurst(n uint64) Option {
	return func(o *options) { o.startBurst = n }
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers a consumer of completed bursts.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

func (o *options) validate() error {
	if o.fclCapacity < 0 {
		return newConfigError("fcl capacity %d is negative", o.fclCapacity)
	}
	if o.queueCapacity < 0 {
		return newConfigError("fire queue capacity %d is negative", o.queueCapacity)
	}
	if o.ledgerWindow < 0 {
		return newConfigError("ledger window %d is negative", o.ledgerWindow)
	}
	if _, err := fire.ParseOverflowPolicy(string(o.policy)); err != nil {
		return newConfigError("%v", err)
	}
	if err := o.backendCfg.Validate(); err != nil {
		return newConfigError("%v", err)
	}
	if o.random == nil {
		o.random = rng.Excitability
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return nil
}
