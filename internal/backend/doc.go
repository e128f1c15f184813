// Package backend implements the two compute phases of a burst: synaptic
// propagation and neural dynamics.
//
// ARCHITECTURE:
//
//	fired (step N-1) -> Propagate -> FCL -> [injection] -> AdvanceDynamics -> FireQueue (step N)
//
// Two interchangeable implementations exist:
//
//   - CPU: the scalar reference. Walks the source index for each fired
//     neuron and accumulates into the FCL, then processes candidates one by
//     one in ascending id order.
//   - Parallel: the accelerated backend. At Initialize it packs the synapse
//     store into flat device-style buffers addressed through an
//     open-addressing source hash table, then runs both phases on a
//     persistent worker pool with a barrier at the end of each phase.
//
// Both share the per-neuron kernel (processNeuron) and the contribution
// formula, so for identical store state and inputs they produce identical
// fired sets and bit-identical potentials.
//
// CRITICAL PATTERNS:
//
//  1. Propagation writes to a target are serialized. The parallel backend
//     shards the reduction by target and sums every target's contributions
//     in gather order, the same order the CPU backend adds them.
//  2. Dynamics touches each neuron exactly once per step. The FCL holds one
//     entry per target, so candidates can be split across workers freely.
//  3. Nothing a backend writes is observable before the phase barrier.
//  4. Randomness comes from a pure rng.Func of (id, burst); no backend owns
//     generator state.
//
// Backends are selected once, at engine construction, by Select.
package backend
