package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
)

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	for _, id := range []string{"run-c", "run-a", "run-b"} {
		createTestRun(t, s, id)
	}

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"run-a", "run-b", "run-c"}, ids)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestListBursts_OrderedByBurst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")
	createTestRun(t, s, "run-b")

	for _, n := range []uint64{3, 1, 2} {
		_, err := s.WriteBurst(ctx, createTestBurst("run-a", n, ir.NeuronID(n)))
		require.NoError(t, err)
	}
	_, err := s.WriteBurst(ctx, createTestBurst("run-b", 1, 1))
	require.NoError(t, err)

	bursts, err := s.ListBursts(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, bursts, 3)
	for i, b := range bursts {
		assert.Equal(t, uint64(i+1), b.Burst)
		assert.Equal(t, "run-a", b.RunID)
	}
}

func TestReadFirings_OrderedByNeuron(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	_, err := s.WriteBurst(ctx, createTestBurst("run-a", 1, 9, 2, 5))
	require.NoError(t, err)

	firings, err := s.ReadFirings(ctx, "run-a", 1)
	require.NoError(t, err)

	ids := make([]ir.NeuronID, len(firings))
	for i, f := range firings {
		ids[i] = f.ID
	}
	assert.Equal(t, []ir.NeuronID{2, 5, 9}, ids)
	assert.Equal(t, float32(1.5), firings[0].Potential)
	assert.Equal(t, ir.AreaID(1), firings[0].Area)
	assert.Equal(t, [3]uint32{2, 2, 3}, [3]uint32{firings[0].X, firings[0].Y, firings[0].Z})
}

func TestReadAreaFirings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	other := createTestBurst("run-a", 2, 4)
	other.Firings[0].Area = 2
	for _, b := range []Burst{
		createTestBurst("run-a", 1, 1),
		other,
		createTestBurst("run-a", 3, 6, 7),
		createTestBurst("run-a", 4, 8),
	} {
		_, err := s.WriteBurst(ctx, b)
		require.NoError(t, err)
	}

	got, err := s.ReadAreaFirings(ctx, "run-a", 1, 1, 3)
	require.NoError(t, err)
	assert.Len(t, got, 2, "burst 2 fired only in area 2 and burst 4 is out of range")
	assert.Len(t, got[1], 1)
	assert.Len(t, got[3], 2)
}
