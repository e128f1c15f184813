package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
)

// TestScenarios_Golden runs every shipped scenario on both backends
// against the same golden trace.
func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		for _, kind := range []ir.BackendKind{ir.BackendCPU, ir.BackendParallel} {
			t.Run(s.Name+"/"+string(kind), func(t *testing.T) {
				result, err := RunOn(s, kind)
				require.NoError(t, err)
				assert.True(t, result.Pass, "%v", result.Errors)
				require.NoError(t, AssertGolden(t, s.Name, result))
			})
		}
	}
}

func TestRunWithGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "leak_formula.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestMarshalTrace(t *testing.T) {
	data, err := MarshalTrace([]TraceEvent{
		{Burst: 1, Fired: []ir.NeuronID{0, 4}},
		{Burst: 2, Fired: []ir.NeuronID{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"burst\":1,\"fired\":[0,4]}\n{\"burst\":2,\"fired\":[]}\n", string(data))
}
