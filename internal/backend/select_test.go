package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		neurons  int
		synapses int
		want     ir.BackendKind
	}{
		{"small network stays on cpu", Config{Workers: 8}, 1000, 10_000, ir.BackendCPU},
		{"neuron threshold", Config{Workers: 8}, 600_000, 0, ir.BackendParallel},
		{"synapse threshold", Config{Workers: 8}, 10, 60_000_000, ir.BackendParallel},
		{"custom thresholds", Config{Workers: 8, NeuronThreshold: 100_000}, 200_000, 0, ir.BackendParallel},
		{"single worker gives no speedup", Config{Workers: 1}, 1_000_000, 100_000_000, ir.BackendCPU},
		{"force cpu wins", Config{Workers: 8, ForceCPU: true}, 1_000_000, 100_000_000, ir.BackendCPU},
		{"kind cpu", Config{Workers: 8, Kind: ir.BackendCPU}, 1_000_000, 0, ir.BackendCPU},
		{"force parallel on tiny network", Config{Workers: 8, ForceParallel: true}, 1, 0, ir.BackendParallel},
		{"kind parallel", Config{Workers: 8, Kind: ir.BackendParallel}, 1, 0, ir.BackendParallel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Select(tt.cfg, tt.neurons, tt.synapses)
			assert.Equal(t, tt.want, d.Kind)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestEstimateSpeedup(t *testing.T) {
	assert.Equal(t, 1.0, EstimateSpeedup(1_000_000, 0, 1))
	assert.Less(t, EstimateSpeedup(10, 10, 8), 1.0, "dispatch overhead dominates tiny networks")
	big := EstimateSpeedup(1_000_000, 100_000_000, 8)
	assert.Greater(t, big, 7.0)
	assert.LessOrEqual(t, big, 8.0)
	assert.GreaterOrEqual(t, EstimateSpeedup(0, 0, 8), 0.1)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{ForceCPU: true, ForceParallel: true}.Validate())
	assert.Error(t, Config{Workers: -1}.Validate())
	assert.Error(t, Config{Kind: "tpu"}.Validate())
	assert.NoError(t, Config{Kind: "gpu"}.Validate())
}

func TestNew(t *testing.T) {
	b, err := New[numeric.Float32](ir.BackendCPU, DefaultConfig(), Dynamics{})
	require.NoError(t, err)
	assert.Equal(t, ir.BackendCPU, b.Kind())

	bi, err := New[numeric.Int8](ir.BackendParallel, Config{Workers: 2}, Dynamics{})
	require.NoError(t, err)
	assert.Equal(t, ir.BackendParallel, bi.Kind())
	require.NoError(t, bi.Close())

	_, err = New[numeric.Float32](ir.BackendAuto, DefaultConfig(), Dynamics{})
	assert.Error(t, err)
}
