package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
)

func defaultParams() NeuronParams {
	return NeuronParams{
		Area:             1,
		Coord:            ir.Coord{X: 1, Y: 2, Z: 3},
		Threshold:        1.0,
		Leak:             0.1,
		Excitability:     1.0,
		RefractoryPeriod: 2,
	}
}

func TestNeuronArray_AddAndCapacity(t *testing.T) {
	a := NewNeuronArray[numeric.Float32](2)
	id0, err := a.Add(defaultParams())
	require.NoError(t, err)
	id1, err := a.Add(defaultParams())
	require.NoError(t, err)
	assert.Equal(t, ir.NeuronID(0), id0)
	assert.Equal(t, ir.NeuronID(1), id1)

	_, err = a.Add(defaultParams())
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, a.Capacity())
}

func TestNeuronArray_Validate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*NeuronParams)
	}{
		{"leak above one", func(p *NeuronParams) { p.Leak = 1.5 }},
		{"negative excitability", func(p *NeuronParams) { p.Excitability = -0.1 }},
		{"limit below threshold", func(p *NeuronParams) { p.ThresholdLimit = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewNeuronArray[numeric.Float32](1)
			p := defaultParams()
			tt.mod(&p)
			_, err := a.Add(p)
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Equal(t, 0, a.Len(), "failed add must not consume a slot")
		})
	}
}

func TestNeuronArray_InvalidateAndState(t *testing.T) {
	a := NewNeuronArray[numeric.Float32](4)
	id, err := a.Add(defaultParams())
	require.NoError(t, err)

	assert.True(t, a.IsValid(id))
	assert.True(t, a.Invalidate(id))
	assert.False(t, a.Invalidate(id), "second invalidate is a no-op")
	assert.False(t, a.IsValid(id))
	assert.Equal(t, 0, a.Count())
	assert.Equal(t, 1, a.Len())

	assert.False(t, a.State(id).Valid)
	assert.Equal(t, NeuronState{}, a.State(99), "out-of-range ids read as empty")
	assert.False(t, a.IsValid(99))
}

func TestNeuronArray_ParamsRoundTrip(t *testing.T) {
	a := NewNeuronArray[numeric.Float32](1)
	p := defaultParams()
	p.ThresholdLimit = 4
	p.Potential = 0.25
	id, err := a.Add(p)
	require.NoError(t, err)

	got, ok := a.Params(id)
	require.True(t, ok)
	assert.Equal(t, p, got)

	p.ThresholdLimit = 0
	require.NoError(t, a.SetParams(id, p))
	got, _ = a.Params(id)
	assert.Equal(t, float32(0), got.ThresholdLimit, "unbounded limit reads back as zero")
}

func TestNeuronArray_UpdateArea(t *testing.T) {
	a := NewNeuronArray[numeric.Float32](3)
	p := defaultParams()
	_, _ = a.Add(p)
	_, _ = a.Add(p)
	p.Area = 2
	other, _ := a.Add(p)

	n := a.UpdateArea(1, func(p *NeuronParams) { p.Threshold = 5 })
	assert.Equal(t, 2, n)
	got, _ := a.Params(other)
	assert.Equal(t, float32(1), got.Threshold)
	assert.Equal(t, []ir.NeuronID{0, 1}, a.InArea(1))
}

func TestNeuronArray_CloneIsDeep(t *testing.T) {
	a := NewNeuronArray[numeric.Int8](1)
	id, _ := a.Add(defaultParams())
	b := a.Clone()
	b.SetPotential(id, 20)
	assert.NotEqual(t, a.State(id).Potential, b.State(id).Potential)
}
