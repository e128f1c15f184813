package numeric

import (
	"math"

	"github.com/goki/mat32"

	"github.com/roach88/npu/internal/ir"
)

// Float32 is the full-precision membrane representation.
type Float32 float32

// clampFinite maps a float64 intermediate result back into the finite
// float32 range. NaN yields fallback.
func clampFinite(r float64, fallback float32) Float32 {
	if math.IsNaN(r) {
		return Float32(fallback)
	}
	if r > math.MaxFloat32 {
		return Float32(math.MaxFloat32)
	}
	if r < -math.MaxFloat32 {
		return Float32(-math.MaxFloat32)
	}
	return Float32(r)
}

func (v Float32) SaturatingAdd(o Float32) Float32 {
	if mat32.IsNaN(float32(o)) {
		return v
	}
	return clampFinite(float64(v)+float64(o), float32(v))
}

func (v Float32) Leak(resting Float32, coeff float32) Float32 {
	if coeff == 0 || mat32.IsNaN(coeff) {
		return v
	}
	r := float64(v) + float64(coeff)*(float64(resting)-float64(v))
	return clampFinite(r, float32(v))
}

func (v Float32) GreaterEq(o Float32) bool { return v >= o }

func (v Float32) LessEq(o Float32) bool { return v <= o }

func (v Float32) Float() float32 { return float32(v) }

func (Float32) FromFloat(f float32) Float32 {
	if mat32.IsNaN(f) {
		return 0
	}
	if mat32.IsInf(f, 1) {
		return Float32(math.MaxFloat32)
	}
	if mat32.IsInf(f, -1) {
		return Float32(-math.MaxFloat32)
	}
	return Float32(f)
}

func (Float32) Precision() ir.Precision { return ir.PrecisionFP32 }
