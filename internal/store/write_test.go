package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
)

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	assert.Regexp(t, pattern, a)
	assert.NotEqual(t, a, b)
}

func TestCreateRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestRun(t, s, "run-a")
	got, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	got.StartedAt = want.StartedAt
	assert.Equal(t, want, got)
}

func TestCreateRun_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.CreateRun(ctx, Run{}), "empty id")

	createTestRun(t, s, "run-a")
	assert.Error(t, s.CreateRun(ctx, Run{ID: "run-a"}), "duplicate id")
}

func TestWriteBurst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	b := createTestBurst("run-a", 1, 3, 7)
	b.Duration = 1500 * time.Microsecond
	inserted, err := s.WriteBurst(ctx, b)
	require.NoError(t, err)
	assert.True(t, inserted)

	bursts, err := s.ListBursts(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, bursts, 1)
	assert.Equal(t, uint64(1), bursts[0].Burst)
	assert.Equal(t, 2, bursts[0].Fired)
	assert.Equal(t, 3, bursts[0].Processed)
	assert.Equal(t, 4, bursts[0].Synapses)
	assert.Equal(t, 1500*time.Microsecond, bursts[0].Duration)
	assert.Equal(t, ir.FireQueueDigest(1, b.Firings), bursts[0].Digest, "digest filled when empty")
	assert.Nil(t, bursts[0].Firings)

	firings, err := s.ReadFirings(ctx, "run-a", 1)
	require.NoError(t, err)
	assert.Equal(t, b.Firings, firings)
}

func TestWriteBurst_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	_, err := s.WriteBurst(ctx, createTestBurst("run-a", 1, 3))
	require.NoError(t, err)

	inserted, err := s.WriteBurst(ctx, createTestBurst("run-a", 1, 4, 5))
	require.NoError(t, err)
	assert.False(t, inserted)

	firings, err := s.ReadFirings(ctx, "run-a", 1)
	require.NoError(t, err)
	require.Len(t, firings, 1, "first write wins")
	assert.Equal(t, ir.NeuronID(3), firings[0].ID)
}

func TestWriteBurst_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.WriteBurst(context.Background(), createTestBurst("missing", 1, 3))
	assert.Error(t, err)
}

func TestWriteBurst_SilentBurst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	inserted, err := s.WriteBurst(ctx, createTestBurst("run-a", 4))
	require.NoError(t, err)
	assert.True(t, inserted)

	firings, err := s.ReadFirings(ctx, "run-a", 4)
	require.NoError(t, err)
	assert.NotNil(t, firings)
	assert.Empty(t, firings)
}

func TestBurstFromStep(t *testing.T) {
	fired := []ir.FiringNeuron{{ID: 2, Potential: 1}, {ID: 9, Potential: 3}}
	res := &engine.StepResult{
		Burst: 12,
		Fired: fired,
		BurstResult: backend.BurstResult{
			Propagation: backend.PropagationStats{Synapses: 40},
			Dynamics:    backend.DynamicsResult{Processed: 11, Fired: 2, Refractory: 5},
			Timing:      backend.Timing{Total: 3 * time.Millisecond},
		},
	}

	b := BurstFromStep("run-a", res)
	assert.Equal(t, Burst{
		RunID:      "run-a",
		Burst:      12,
		Fired:      2,
		Processed:  11,
		Refractory: 5,
		Synapses:   40,
		Duration:   3 * time.Millisecond,
		Digest:     ir.FireQueueDigest(12, fired),
		Firings:    fired,
	}, b)
}
