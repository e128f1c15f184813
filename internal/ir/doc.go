// Package ir provides the shared vocabulary types of the NPU runtime.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps neuron ids, synapse
// types and fired-neuron records identical across the stores, the compute
// backends, the engine and the persistence layer.
//
// Key design constraints:
//   - Neuron and area ids are dense uint32 indexes, never pointers
//   - Burst counters are uint64 and strictly increasing per engine
//   - FiringNeuron carries potentials as canonical float32 regardless of the
//     precision the engine was instantiated with
//   - All JSON/YAML tags use snake_case
package ir
