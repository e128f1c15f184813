package engine

import (
	"context"
	"fmt"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/connectome"
	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/state"
)

// Runner is the precision-free view of an Engine, for callers that pick
// the precision from configuration.
type Runner interface {
	Inject(batch []ir.Injection) bool
	Step(ctx context.Context) (*StepResult, error)
	Run(ctx context.Context, hz float64, maxBursts uint64) error
	Stop()
	Close() error

	LastFireQueue() *fire.FireQueue
	Stats() Stats
	Burst() uint64
	Precision() ir.Precision
	Backend() backend.Decision
	Neuron(id ir.NeuronID) state.NeuronState
	History(area ir.AreaID, end uint64, depth int) ([]fire.Frame, error)
	OnConnectomeChange() error
}

var (
	_ Runner = (*Engine[numeric.Float32])(nil)
	_ Runner = (*Engine[numeric.Int8])(nil)
)

// Open builds the connectome at the requested precision and returns its
// engine.
func Open(precision ir.Precision, spec *connectome.Spec, opts ...Option) (Runner, error) {
	switch precision {
	case ir.PrecisionFP32, "":
		return open[numeric.Float32](spec, opts)
	case ir.PrecisionInt8:
		return open[numeric.Int8](spec, opts)
	default:
		return nil, newConfigError("unknown precision %q", precision)
	}
}

func open[T numeric.Value[T]](spec *connectome.Spec, opts []Option) (Runner, error) {
	net, err := connectome.Build[T](spec)
	if err != nil {
		return nil, &EngineError{Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("connectome %q", spec.Name), Err: err}
	}
	e, err := New(net.Neurons, net.Synapses, net.Areas, opts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}
