package numeric

import (
	"github.com/goki/mat32"

	"github.com/roach88/npu/internal/ir"
)

// Quantization range of Int8. Membrane potentials outside
// [MembraneMin, MembraneMax] saturate at the ends.
const (
	MembraneMin   float32 = -100.0
	MembraneMax   float32 = 50.0
	membraneRange         = MembraneMax - MembraneMin
	int8Levels    float32 = 254.0

	// Int8Resolution is the potential step between adjacent levels (~0.59).
	Int8Resolution = membraneRange / int8Levels
)

// Int8 is a quantized membrane representation: 254 levels spread over
// [MembraneMin, MembraneMax] with raw values in [-127, 127].
//
// Arithmetic happens in the canonical float domain and is requantized, so
// sums saturate at the range ends instead of wrapping. Raw order equals
// potential order, so comparisons use the raw value.
type Int8 int8

// QuantizeInt8 maps a canonical potential onto the nearest level,
// rounding half away from zero.
func QuantizeInt8(f float32) Int8 {
	if mat32.IsNaN(f) {
		f = 0
	}
	scaled := (f-MembraneMin)/membraneRange*int8Levels - 127
	q := mat32.Round(scaled)
	q = mat32.Max(-127, mat32.Min(127, q))
	return Int8(int8(q))
}

// Raw returns the stored level.
func (v Int8) Raw() int8 { return int8(v) }

func (v Int8) SaturatingAdd(o Int8) Int8 {
	return QuantizeInt8(v.Float() + o.Float())
}

func (v Int8) Leak(resting Int8, coeff float32) Int8 {
	if coeff == 0 || mat32.IsNaN(coeff) {
		return v
	}
	mp := v.Float()
	return QuantizeInt8(mp + coeff*(resting.Float()-mp))
}

func (v Int8) GreaterEq(o Int8) bool { return v >= o }

func (v Int8) LessEq(o Int8) bool { return v <= o }

func (v Int8) Float() float32 {
	return (float32(v)+127)/int8Levels*membraneRange + MembraneMin
}

func (Int8) FromFloat(f float32) Int8 { return QuantizeInt8(f) }

func (Int8) Precision() ir.Precision { return ir.PrecisionInt8 }
