// Package rng provides the stateless random draws used by the excitability
// check.
//
// Every function here is pure: the output depends only on (neuron id, burst)
// and is the same on every backend, worker and run. There is no seeded
// generator to share or synchronize between workers.
package rng

import (
	"fmt"
	"strings"
)

// Func maps (neuron id, burst) to a uniform float in [0, 1).
type Func func(id uint32, burst uint64) float32

// Kind names a Func for configuration.
type Kind string

const (
	KindPCG    Kind = "pcg"
	KindPhilox Kind = "philox"
)

// ByName resolves a configured generator. An empty name selects PCG.
func ByName(name string) (Func, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case "", KindPCG:
		return Excitability, nil
	case KindPhilox:
		return Philox, nil
	default:
		return nil, fmt.Errorf("unknown rng %q (want pcg or philox)", name)
	}
}

// toUnit keeps the top 24 bits, which a float32 represents exactly, so the
// result is strictly below 1.
func toUnit(h uint32) float32 {
	return float32(h>>8) * (1.0 / (1 << 24))
}

// pcgHash is the PCG-RXS-M-XS output permutation applied to a single word.
func pcgHash(in uint32) uint32 {
	state := in*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// Excitability is the default draw: both inputs are mixed with distinct
// odd multipliers and passed through a PCG hash. Only the low 32 bits of
// the burst participate, so the sequence for a neuron repeats every 2^32
// bursts.
func Excitability(id uint32, burst uint64) float32 {
	seed := id*2654435761 + uint32(burst)*1597334677
	return toUnit(pcgHash(seed))
}

// Philox2x32 constants.
const (
	philoxMultiplier = 0xD256D193
	philoxWeyl       = 0x9E3779B9
	philoxRounds     = 10
)

// philox2x32 runs the ten-round Philox2x32 bijection on a 64-bit counter
// under a 32-bit key.
func philox2x32(x, y, key uint32) (uint32, uint32) {
	for i := 0; i < philoxRounds; i++ {
		prod := uint64(philoxMultiplier) * uint64(x)
		hi, lo := uint32(prod>>32), uint32(prod)
		x, y = hi^key^y, lo
		key += philoxWeyl
	}
	return x, y
}

// Philox is a counter-based draw keyed by the neuron id with the burst as
// the 64-bit counter. It is slower than Excitability but uses the full
// burst width.
func Philox(id uint32, burst uint64) float32 {
	x, _ := philox2x32(uint32(burst), uint32(burst>>32), id)
	return toUnit(x)
}
