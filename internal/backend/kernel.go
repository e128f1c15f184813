package backend

import (
	"math"

	"github.com/roach88/npu/internal/fire"
	"github.com/roach88/npu/internal/ir"
	"github.com/roach88/npu/internal/numeric"
	"github.com/roach88/npu/internal/state"
)

// Excitability bounds that bypass the random draw.
const (
	alwaysFire = 0.999
	neverFire  = 0.0
)

// contribution is the signed potential one synapse delivers. divisor > 1
// splits a source's output evenly across its outgoing synapses.
func contribution(weight uint8, psp float32, t ir.SynapseType, divisor int) float32 {
	c := t.Sign() * float32(weight) * psp
	if divisor > 1 {
		c /= float32(divisor)
	}
	return c
}

// mpDrivenPSP converts a source's potential at fire into a PSP scalar in
// the same 0-255 integer range as static PSPs.
func mpDrivenPSP(potential float32) float32 {
	if !(potential > 0) {
		return 0
	}
	if potential >= 255 {
		return 255
	}
	return float32(uint8(potential))
}

// sourcePSP resolves the per-source propagation parameters from its area:
// the PSP override (negative when the synapse's own PSP applies) and
// whether contributions are divided.
func sourcePSP(areas *state.AreaTable, area ir.AreaID, potential float32) (override float32, divide bool) {
	override = -1
	divide = true
	if areas == nil {
		return override, divide
	}
	if p, ok := areas.Get(area); ok {
		if p.MPDrivenPSP {
			override = mpDrivenPSP(potential)
		}
		divide = !p.PSPUniform
	}
	return override, divide
}

func satAddU16(a, b uint16) uint16 {
	if s := uint32(a) + uint32(b); s <= math.MaxUint16 {
		return uint16(s)
	}
	return math.MaxUint16
}

// neuronOutcome is what processNeuron reports for one candidate.
type neuronOutcome struct {
	processed  bool
	fired      bool
	refractory bool
	record     ir.FiringNeuron
}

// processNeuron advances one neuron by one burst. It is the only code that
// mutates neuron state during dynamics, and both backends call it.
func processNeuron[T numeric.Value[T]](n *state.NeuronArray[T], id ir.NeuronID, candidate float32, burst uint64, d *Dynamics) neuronOutcome {
	var out neuronOutcome
	if int(id) >= n.Len() || !n.Valid[id] {
		return out
	}
	out.processed = true

	limit := n.ConsecutiveFireLimit[id]

	if cd := n.RefractoryCountdown[id]; cd > 0 {
		cd--
		n.RefractoryCountdown[id] = cd
		if cd == 0 && limit > 0 && n.ConsecutiveFireCount[id] >= limit {
			n.ConsecutiveFireCount[id] = 0
		}
		out.refractory = cd > 0
		return out
	}

	mp := n.Potential[id].SaturatingAdd(numeric.From[T](candidate))

	if mp.GreaterEq(n.Threshold[id]) && mp.LessEq(n.ThresholdLimit[id]) {
		if limit > 0 && n.ConsecutiveFireCount[id] >= limit {
			// Blocked by the consecutive fire limit: no fire, no leak.
			n.ConsecutiveFireCount[id] = 0
			n.Potential[id] = mp
			return out
		}

		if excitable(n.Excitability[id], id, burst, d) {
			count := satAddU16(n.ConsecutiveFireCount[id], 1)
			n.ConsecutiveFireCount[id] = count
			n.Potential[id] = numeric.Zero[T]()

			period := n.RefractoryPeriod[id]
			if limit > 0 && count >= limit {
				period = satAddU16(period, n.SnoozePeriod[id])
			}
			n.RefractoryCountdown[id] = period

			c := n.Coord[id]
			out.fired = true
			out.refractory = period > 0
			out.record = ir.FiringNeuron{
				ID:        id,
				Potential: mp.Float(),
				Area:      n.Area[id],
				X:         c.X,
				Y:         c.Y,
				Z:         c.Z,
			}
			return out
		}

		if d.FailedRollResetsCount && limit > 0 {
			n.ConsecutiveFireCount[id] = 0
		}
	} else if limit > 0 {
		n.ConsecutiveFireCount[id] = 0
	}

	n.Potential[id] = mp.Leak(n.Resting[id], n.Leak[id])
	return out
}

func excitable(e float32, id ir.NeuronID, burst uint64, d *Dynamics) bool {
	switch {
	case e >= alwaysFire:
		return true
	case e <= neverFire:
		return false
	default:
		return d.random()(uint32(id), burst) < e
	}
}

// candidates lists the ids dynamics visits: FCL ids, or every assigned
// slot when ScanAll is set. Both are in ascending order.
func candidates[T numeric.Value[T]](n *state.NeuronArray[T], fcl *fire.FCL, d *Dynamics) []ir.NeuronID {
	if !d.ScanAll {
		return fcl.IDs()
	}
	ids := make([]ir.NeuronID, 0, n.Len())
	for i := 0; i < n.Len(); i++ {
		if n.Valid[i] {
			ids = append(ids, ir.NeuronID(i))
		}
	}
	return ids
}
