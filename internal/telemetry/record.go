// Package telemetry exports per-burst statistics as CSV and aggregates
// phase timings for benchmarks.
package telemetry

import (
	"github.com/roach88/npu/internal/engine"
)

// BurstRecord is one CSV row.
type BurstRecord struct {
	Burst        uint64 `csv:"burst"`
	Fired        int    `csv:"fired"`
	Processed    int    `csv:"processed"`
	Refractory   int    `csv:"refractory"`
	Synapses     int    `csv:"synapses"`
	Injected     int    `csv:"injected"`
	FCLSize      int    `csv:"fcl_size"`
	FCLDropped   int    `csv:"fcl_dropped"`
	QueueDropped int    `csv:"queue_dropped"`
	SynapticUS   int64  `csv:"synaptic_us"`
	DynamicsUS   int64  `csv:"dynamics_us"`
	TotalUS      int64  `csv:"total_us"`
}

// RecordFromStep flattens a step result.
func RecordFromStep(r *engine.StepResult) BurstRecord {
	return BurstRecord{
		Burst:        r.Burst,
		Fired:        len(r.Fired),
		Processed:    r.Dynamics.Processed,
		Refractory:   r.Dynamics.Refractory,
		Synapses:     r.Propagation.Synapses,
		Injected:     r.Injected,
		FCLSize:      r.FCLSize,
		FCLDropped:   r.FCLDropped,
		QueueDropped: r.QueueDropped,
		SynapticUS:   r.Timing.Synaptic.Microseconds(),
		DynamicsUS:   r.Timing.Dynamics.Microseconds(),
		TotalUS:      r.Timing.Total.Microseconds(),
	}
}
