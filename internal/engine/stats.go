package engine

import "sync/atomic"

// Stats is a snapshot of the engine's aggregate counters. Totals
// accumulate over the engine's lifetime; NeuronsInRefractory describes
// the latest burst.
type Stats struct {
	Bursts              uint64 `json:"bursts"`
	NeuronsProcessed    uint64 `json:"neurons_processed"`
	NeuronsFired        uint64 `json:"neurons_fired"`
	NeuronsInRefractory uint64 `json:"neurons_in_refractory"`
	SynapsesProcessed   uint64 `json:"synapses_processed"`
	InjectionsSkipped   uint64 `json:"injections_skipped"`
	FCLDropped          uint64 `json:"fcl_dropped"`
	QueueDropped        uint64 `json:"queue_dropped"`
	FailedBursts        uint64 `json:"failed_bursts"`
}

type counters struct {
	bursts            atomic.Uint64
	processed         atomic.Uint64
	fired             atomic.Uint64
	refractory        atomic.Uint64
	synapses          atomic.Uint64
	injectionsSkipped atomic.Uint64
	fclDropped        atomic.Uint64
	queueDropped      atomic.Uint64
	failed            atomic.Uint64
}

func (c *counters) record(r *StepResult) {
	c.bursts.Add(1)
	c.processed.Add(uint64(r.Dynamics.Processed))
	c.fired.Add(uint64(r.Dynamics.Fired))
	c.refractory.Store(uint64(r.Dynamics.Refractory))
	c.synapses.Add(uint64(r.Propagation.Synapses))
	c.injectionsSkipped.Add(uint64(r.InjectionsSkipped))
	c.fclDropped.Add(uint64(r.FCLDropped))
	c.queueDropped.Add(uint64(r.QueueDropped))
}

func (c *counters) snapshot() Stats {
	return Stats{
		Bursts:              c.bursts.Load(),
		NeuronsProcessed:    c.processed.Load(),
		NeuronsFired:        c.fired.Load(),
		NeuronsInRefractory: c.refractory.Load(),
		SynapsesProcessed:   c.synapses.Load(),
		InjectionsSkipped:   c.injectionsSkipped.Load(),
		FCLDropped:          c.fclDropped.Load(),
		QueueDropped:        c.queueDropped.Load(),
		FailedBursts:        c.failed.Load(),
	}
}
