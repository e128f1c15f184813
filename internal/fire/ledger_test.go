package fire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
)

func queueOf(burst uint64, neurons ...ir.FiringNeuron) *FireQueue {
	q := NewFireQueue(0, PolicyReject)
	q.Reset(burst)
	for _, n := range neurons {
		_ = q.Push(n)
	}
	return q
}

func TestFireLedger_DenseHistoryIncludesSilence(t *testing.T) {
	l := NewFireLedger()
	require.NoError(t, l.Track(1, 5))

	require.NoError(t, l.Record(1, queueOf(1,
		ir.FiringNeuron{ID: 200, Area: 1},
		ir.FiringNeuron{ID: 100, Area: 1},
		ir.FiringNeuron{ID: 7, Area: 2},
	)))
	require.NoError(t, l.Record(2, queueOf(2)))
	require.NoError(t, l.Record(3, queueOf(3, ir.FiringNeuron{ID: 200, Area: 1})))

	frames, err := l.History(1, 3, 3)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, Frame{Burst: 1, IDs: []ir.NeuronID{100, 200}}, frames[0])
	assert.Equal(t, uint64(2), frames[1].Burst)
	assert.Empty(t, frames[1].IDs)
	assert.Equal(t, []ir.NeuronID{200}, frames[2].IDs)
}

func TestFireLedger_FillsGaps(t *testing.T) {
	l := NewFireLedger()
	require.NoError(t, l.Track(1, 10))
	require.NoError(t, l.Record(1, queueOf(1, ir.FiringNeuron{ID: 1, Area: 1})))
	require.NoError(t, l.Record(4, queueOf(4, ir.FiringNeuron{ID: 2, Area: 1})))

	frames, err := l.History(1, 4, 4)
	require.NoError(t, err)
	assert.Empty(t, frames[1].IDs)
	assert.Empty(t, frames[2].IDs)
	assert.Equal(t, uint64(3), frames[2].Burst)
}

func TestFireLedger_WindowEviction(t *testing.T) {
	l := NewFireLedger()
	require.NoError(t, l.Track(1, 2))
	for b := uint64(1); b <= 5; b++ {
		require.NoError(t, l.Record(b, queueOf(b)))
	}
	_, err := l.History(1, 5, 2)
	require.NoError(t, err)
	_, err = l.History(1, 3, 1)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	require.NoError(t, l.Track(1, 1))
	w, err := l.Window(1)
	require.NoError(t, err)
	assert.Equal(t, 1, w)
	_, err = l.History(1, 4, 1)
	require.ErrorIs(t, err, ErrInsufficientHistory, "shrinking drops older frames")
}

func TestFireLedger_Errors(t *testing.T) {
	l := NewFireLedger()
	require.ErrorIs(t, l.Track(1, 0), ErrInvalidWindow)
	require.NoError(t, l.Track(1, 3))
	require.NoError(t, l.Record(5, queueOf(5)))

	require.ErrorIs(t, l.Record(5, queueOf(5)), ErrNonMonotonic)
	require.ErrorIs(t, l.Record(4, queueOf(4)), ErrNonMonotonic)

	_, err := l.History(1, 5, 0)
	require.ErrorIs(t, err, ErrInvalidDepth)
	_, err = l.History(1, 6, 1)
	require.ErrorIs(t, err, ErrEndInFuture)
	_, err = l.History(2, 5, 1)
	require.ErrorIs(t, err, ErrAreaNotTracked)
	_, err = l.History(1, 5, 4)
	require.ErrorIs(t, err, ErrDepthExceedsWindow)
	_, err = l.History(1, 5, 2)
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = l.Window(9)
	require.ErrorIs(t, err, ErrAreaNotTracked)
	assert.True(t, l.Untrack(1))
	assert.False(t, l.Untrack(1))
}

func TestFireLedger_UntrackedRecordsAdvanceClock(t *testing.T) {
	l := NewFireLedger()
	require.NoError(t, l.Record(3, nil))
	assert.Equal(t, uint64(3), l.Current())
	require.ErrorIs(t, l.Record(2, nil), ErrNonMonotonic)
}
