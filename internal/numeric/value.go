// Package numeric defines the membrane-potential value types the burst
// engine is generic over.
//
// Stores, backends and the engine are instantiated once per precision
// (Engine[Float32] or Engine[Int8]); the hot loop never inspects a
// precision tag. Operations that the dynamics kernel needs are methods on
// the value type so the compiler resolves them per instantiation.
package numeric

import "github.com/roach88/npu/internal/ir"

// Value is the constraint satisfied by every membrane-potential
// representation.
//
// All arithmetic saturates: no operation may produce NaN, infinity or a
// silent wrap. Comparisons are total.
type Value[T any] interface {
	comparable

	// SaturatingAdd returns v + o clamped to the representable range.
	SaturatingAdd(o T) T

	// Leak relaxes v toward resting: v + coeff*(resting - v).
	Leak(resting T, coeff float32) T

	// GreaterEq reports v >= o.
	GreaterEq(o T) bool

	// LessEq reports v <= o.
	LessEq(o T) bool

	// Float converts to the canonical float32 representation.
	Float() float32

	// FromFloat converts a canonical float32 into this representation.
	// The receiver is ignored; call it on the zero value.
	FromFloat(f float32) T

	// Precision names the representation.
	Precision() ir.Precision
}

// From converts a canonical float into T.
func From[T Value[T]](f float32) T {
	var z T
	return z.FromFloat(f)
}

// Zero returns the representation of 0.0 in T. For quantized types this is
// not the Go zero value.
func Zero[T Value[T]]() T {
	return From[T](0)
}

// PrecisionOf reports the precision of T.
func PrecisionOf[T Value[T]]() ir.Precision {
	var z T
	return z.Precision()
}
