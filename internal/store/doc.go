// Package store provides SQLite-backed durable storage for burst ledgers.
//
// A run is one engine session. Every completed burst of a run is appended
// as one bursts row plus one firings row per neuron in its Fire Queue:
//   - Runs: run identity, precision, backend, configuration and
//     connectome hashes
//   - Bursts: per-burst counters and the Fire Queue digest
//   - Firings: the fired neurons of a burst, in id order
//
// # Patterns
//
// Idempotent appends
//   - PRIMARY KEY(run_id, burst) with ON CONFLICT DO NOTHING
//   - Writing a burst twice leaves the first copy untouched
//
// Logical time
//   - All ordering uses the burst number, never timestamps
//   - Firings within a burst are ordered by neuron id
//
// Replay verification
//   - CompareRuns walks two runs' digests and reports the first burst
//     whose Fire Queue differs
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Digests are computed by ir.FireQueueDigest.
package store
