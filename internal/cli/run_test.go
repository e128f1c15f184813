package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/store"
	"github.com/roach88/npu/internal/telemetry"
)

func firedPerBurst(t *testing.T, dbPath, runID string) []int {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	bursts, err := st.ListBursts(context.Background(), runID)
	require.NoError(t, err)
	fired := make([]int, len(bursts))
	for i, b := range bursts {
		fired[i] = b.Fired
	}
	return fired
}

func TestRun_RecordsToDatabase(t *testing.T) {
	chain := writeChain(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", chain, "--bursts", "4", "--inject", "0:1", "--db", db, "--backend", "cpu", "--format", "json")
	require.NoError(t, err)

	summary := decodeData[RunSummary](t, out)
	require.NotEmpty(t, summary.RunID)
	assert.Equal(t, "chain", summary.Connectome)
	assert.Equal(t, ir.PrecisionFP32, summary.Precision)
	assert.Equal(t, ir.BackendCPU, summary.Backend.Kind)
	assert.Equal(t, uint64(4), summary.Stats.Bursts)
	assert.Equal(t, uint64(3), summary.Stats.NeuronsFired)
	assert.Equal(t, 4, summary.Perf.Samples)
	assert.False(t, summary.Interrupted)

	assert.Equal(t, []int{1, 1, 1, 0}, firedPerBurst(t, db, summary.RunID))
}

func TestRun_InjectionSchedule(t *testing.T) {
	chain := writeChain(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", chain, "--bursts", "6", "--inject", "0:1@3", "--inject", "2:1@3", "--db", db, "--format", "json")
	require.NoError(t, err)

	summary := decodeData[RunSummary](t, out)
	assert.Equal(t, []int{0, 0, 2, 1, 1, 0}, firedPerBurst(t, db, summary.RunID))
}

func TestRun_WritesCSV(t *testing.T) {
	chain := writeChain(t)
	csvPath := filepath.Join(t.TempDir(), "out", "bursts.csv")

	_, err := execute(t, "run", chain, "--bursts", "4", "--inject", "0:1", "--csv", csvPath)
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := telemetry.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, want := range []int{1, 1, 1, 0} {
		assert.Equal(t, uint64(i+1), records[i].Burst)
		assert.Equal(t, want, records[i].Fired, "burst %d", i+1)
	}
	assert.Equal(t, 1, records[0].Injected)
}

func TestRun_SamplesFireQueue(t *testing.T) {
	chain := writeChain(t)

	out, err := execute(t, "run", chain, "--bursts", "4", "--inject", "0:1", "--sample-hz", "1e6", "--format", "json")
	require.NoError(t, err)
	summary := decodeData[RunSummary](t, out)
	// Bursts 1-3 fire one neuron each; the first is always sampled and the
	// empty fourth never is.
	assert.GreaterOrEqual(t, summary.Samples, uint64(1))
	assert.LessOrEqual(t, summary.Samples, uint64(3))

	out, err = execute(t, "run", chain, "--bursts", "4", "--inject", "0:1", "--format", "json")
	require.NoError(t, err)
	assert.Zero(t, decodeData[RunSummary](t, out).Samples, "sampling is off by default")
}

func TestRun_TextOutput(t *testing.T) {
	out, err := execute(t, "run", writeChain(t), "--bursts", "2", "--precision", "int8")
	require.NoError(t, err)
	assert.Contains(t, out, "connectome chain")
	assert.Contains(t, out, "precision=int8")
	assert.Contains(t, out, "bursts     2")
	assert.NotContains(t, out, "run        ", "no database, no run id")
}

func TestRun_Errors(t *testing.T) {
	chain := writeChain(t)
	badConfig := writeFile(t, t.TempDir(), "bad.yaml", "engine: {precision: fp64}\n")

	tests := []struct {
		name string
		args []string
	}{
		{"missing connectome", []string{"run", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"bad injection", []string{"run", chain, "--inject", "zero:1"}},
		{"burst zero", []string{"run", chain, "--inject", "0:1@0"}},
		{"bad backend", []string{"run", chain, "--backend", "tpu"}},
		{"negative sample rate", []string{"run", chain, "--sample-hz", "-1"}},
		{"bad config", []string{"run", chain, "--config", badConfig}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestParseSchedule(t *testing.T) {
	schedule, err := parseSchedule([]string{"0:1", "4:-0.5@3", "2:2.5@3"})
	require.NoError(t, err)
	assert.Equal(t, map[uint64][]ir.Injection{
		1: {{ID: 0, Potential: 1}},
		3: {{ID: 4, Potential: -0.5}, {ID: 2, Potential: 2.5}},
	}, schedule)

	for _, bad := range []string{"1", "x:1", "1:y", "1:1@", "1:1@-2", "1:1@0"} {
		_, err := parseSchedule([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestDrivePattern(t *testing.T) {
	ids := func(batch []ir.Injection) []ir.NeuronID {
		out := make([]ir.NeuronID, len(batch))
		for i, in := range batch {
			out[i] = in.ID
		}
		return out
	}

	assert.Equal(t, []ir.NeuronID{0, 1}, ids(drivePattern(5, 2, 1, 0)))
	assert.Equal(t, []ir.NeuronID{2, 3}, ids(drivePattern(5, 2, 1, 1)))
	assert.Equal(t, []ir.NeuronID{4, 0}, ids(drivePattern(5, 2, 1, 2)))
	assert.Equal(t, []ir.NeuronID{0, 1, 2}, ids(drivePattern(3, 10, 1, 7)), "width clamps to the network")
	assert.Nil(t, drivePattern(0, 2, 1, 0))
}
