// Package engine implements the burst engine of the neuromorphic runtime.
//
// The engine owns the neuron and synapse stores, the fire candidate list and
// the fire queue, and advances them one burst at a time through a compute
// backend.
//
// ARCHITECTURE:
//
// Single-Writer Step:
// A burst is atomic. Step holds one coarse lock for its whole duration, so:
//   - propagation completes before dynamics begins
//   - dynamics completes, fire queue included, before the next propagation
//   - injections and store mutations land strictly between bursts
//
// Burst Flow:
//  1. The burst clock advances
//  2. The FCL is cleared
//  3. The previous burst's fired neurons propagate into the FCL
//  4. Queued sensory injections merge additively into the FCL
//  5. Dynamics consumes the FCL and fills the fire queue
//  6. The fire queue is published: ledger, stats, observers
//
// Backend choice happens in New and is repeated only after the connectome
// changes (Mutate or OnConnectomeChange), never per burst. Configuration
// errors (bad options, a backend that cannot hold the network) surface in
// New, before any burst.
//
// The engine never blocks waiting for input. A burst with an empty FCL is
// valid and cheap. Run stops only between bursts.
//
// Per-run state (burst clock, stats) lives on the Engine instance, so any
// number of engines can coexist in one process.
package engine
