package fire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
)

func TestFCL_Accumulates(t *testing.T) {
	f := NewFCL(0, PolicyReject)
	require.NoError(t, f.Add(3, 1.0))
	require.NoError(t, f.Add(3, 0.5))
	require.NoError(t, f.Add(1, -2.0))

	v, ok := f.Get(3)
	require.True(t, ok)
	assert.Equal(t, float32(1.5), v)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []ir.NeuronID{1, 3}, f.IDs())

	f.Clear()
	assert.Equal(t, 0, f.Len())
	_, ok = f.Get(3)
	assert.False(t, ok)
}

func TestFCL_RejectPolicy(t *testing.T) {
	f := NewFCL(2, PolicyReject)
	require.NoError(t, f.Add(1, 1))
	require.NoError(t, f.Add(2, 1))
	require.NoError(t, f.Add(3, 1), "reject policy never errors")
	require.NoError(t, f.Add(1, 1), "existing entries still accumulate")
	require.NoError(t, f.Add(3, 2))
	require.NoError(t, f.Merge([]ir.Injection{{ID: 3, Potential: 1}}))

	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 1, f.Dropped(), "a rejected id counts once however many contributions reach it")
	require.NoError(t, f.Add(4, 1))
	assert.Equal(t, 2, f.Dropped())
	v, _ := f.Get(1)
	assert.Equal(t, float32(2), v)
	_, ok := f.Get(3)
	assert.False(t, ok)

	f.Clear()
	assert.Equal(t, 0, f.Dropped())
}

func TestFCL_FailPolicy(t *testing.T) {
	f := NewFCL(1, PolicyFail)
	require.NoError(t, f.Add(1, 1))
	require.ErrorIs(t, f.Add(2, 1), ErrFCLOverflow)
	v, _ := f.Get(1)
	assert.Equal(t, float32(1), v, "overflow must not disturb existing entries")
}

func TestFCL_Merge(t *testing.T) {
	f := NewFCL(0, "")
	require.NoError(t, f.Merge([]ir.Injection{{ID: 4, Potential: 1}, {ID: 4, Potential: 2}, {ID: 5, Potential: 1}}))
	v, _ := f.Get(4)
	assert.Equal(t, float32(3), v)

	snap := f.Snapshot()
	snap[4] = 100
	v, _ = f.Get(4)
	assert.Equal(t, float32(3), v, "snapshot is a copy")
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)
	p, err = ParseOverflowPolicy("FAIL")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)
	_, err = ParseOverflowPolicy("truncate")
	assert.Error(t, err)
}

func TestFireQueue(t *testing.T) {
	q := NewFireQueue(2, PolicyReject)
	q.Reset(7)
	require.NoError(t, q.Push(ir.FiringNeuron{ID: 9, Area: 1}))
	require.NoError(t, q.Push(ir.FiringNeuron{ID: 2, Area: 2}))
	require.NoError(t, q.Push(ir.FiringNeuron{ID: 5, Area: 1}))
	assert.Equal(t, 1, q.Dropped())

	q.Sort()
	assert.Equal(t, []ir.NeuronID{2, 9}, q.IDs())
	assert.Len(t, q.ByArea()[1], 1)

	c := q.Clone()
	q.Reset(8)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(7), c.Burst)
	assert.Equal(t, 2, c.Len())

	failing := NewFireQueue(1, PolicyFail)
	require.NoError(t, failing.Push(ir.FiringNeuron{ID: 1}))
	require.ErrorIs(t, failing.Push(ir.FiringNeuron{ID: 2}), ErrFireQueueOverflow)
}
