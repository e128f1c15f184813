package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run with fixed hashes.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{
		ID:             id,
		StartedAt:      testutil.Epoch,
		Precision:      ir.PrecisionFP32,
		Backend:        ir.BackendCPU,
		ConfigHash:     "config-hash",
		ConnectomeHash: "connectome-hash",
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun(%s) failed: %v", id, err)
	}
	run.EngineVersion = ir.EngineVersion
	return run
}

// createTestBurst builds a burst row for the given fired ids.
func createTestBurst(runID string, burst uint64, ids ...ir.NeuronID) Burst {
	firings := make([]ir.FiringNeuron, len(ids))
	for i, id := range ids {
		firings[i] = ir.FiringNeuron{ID: id, Potential: 1.5, Area: 1, X: uint32(id), Y: 2, Z: 3}
	}
	return Burst{
		RunID:     runID,
		Burst:     burst,
		Fired:     len(ids),
		Processed: len(ids) + 1,
		Synapses:  2 * len(ids),
		Firings:   firings,
	}
}
