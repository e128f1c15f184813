package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/npu/internal/ir"
)

func TestFloat32_SaturatingAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Float32
		want Float32
	}{
		{"plain", 1.0, 0.5, 1.5},
		{"negative", 1.0, -3.0, -2.0},
		{"overflow clamps", math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		{"underflow clamps", -math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		{"nan operand ignored", 2.0, Float32(math.NaN()), 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.SaturatingAdd(tt.b))
		})
	}
}

func TestFloat32_Leak(t *testing.T) {
	// (1.0 + 0.1) relaxed halfway toward 0
	mp := Float32(1.0).SaturatingAdd(0.1)
	assert.InDelta(t, 0.55, float64(mp.Leak(0, 0.5)), 1e-3)

	assert.Equal(t, Float32(7), Float32(7).Leak(0, 0), "zero coefficient means no decay")
	assert.InDelta(t, 0.0, float64(Float32(1000).Leak(0, 1)), 1e-6)
	assert.InDelta(t, 1.0, float64(Float32(1000).Leak(0, 0.999)), 1e-3)

	extreme := Float32(math.MaxFloat32).Leak(-math.MaxFloat32, 0.5)
	assert.False(t, math.IsNaN(float64(extreme)))
	assert.False(t, math.IsInf(float64(extreme), 0))
}

func TestFloat32_FromFloat(t *testing.T) {
	assert.Equal(t, Float32(0), From[Float32](float32(math.NaN())))
	assert.Equal(t, Float32(math.MaxFloat32), From[Float32](float32(math.Inf(1))))
	assert.Equal(t, Float32(-math.MaxFloat32), From[Float32](float32(math.Inf(-1))))
	assert.Equal(t, Float32(0), Zero[Float32]())
	assert.Equal(t, ir.PrecisionFP32, PrecisionOf[Float32]())
}

func TestInt8_RangeMapping(t *testing.T) {
	assert.Equal(t, int8(-127), QuantizeInt8(MembraneMin).Raw())
	assert.Equal(t, int8(127), QuantizeInt8(MembraneMax).Raw())
	assert.Equal(t, int8(-127), QuantizeInt8(-5000).Raw(), "below range saturates")
	assert.Equal(t, int8(127), QuantizeInt8(5000).Raw(), "above range saturates")
	assert.Equal(t, int8(127), QuantizeInt8(float32(math.Inf(1))).Raw())
}

func TestInt8_RoundTrip(t *testing.T) {
	for _, f := range []float32{-100, -70, -55.5, 0, 12.25, 50} {
		got := QuantizeInt8(f).Float()
		assert.InDelta(t, f, got, float64(Int8Resolution/2)+1e-4, "value %v", f)
	}
}

func TestInt8_SaturatingAdd(t *testing.T) {
	a := From[Int8](40)
	b := From[Int8](40)
	assert.Equal(t, int8(127), a.SaturatingAdd(b).Raw())

	lo := From[Int8](-90)
	assert.Equal(t, int8(-127), lo.SaturatingAdd(lo).Raw())

	sum := From[Int8](10).SaturatingAdd(From[Int8](5))
	assert.InDelta(t, 15, sum.Float(), float64(Int8Resolution))
}

func TestInt8_LeakAndCompare(t *testing.T) {
	mp := From[Int8](20)
	rest := Zero[Int8]()
	leaked := mp.Leak(rest, 0.5)
	assert.InDelta(t, 10, leaked.Float(), float64(Int8Resolution))
	assert.True(t, mp.GreaterEq(leaked))
	assert.True(t, leaked.LessEq(mp))
	assert.Equal(t, mp, mp.Leak(rest, 0))
	assert.Equal(t, ir.PrecisionInt8, PrecisionOf[Int8]())
}
