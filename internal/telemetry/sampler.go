package telemetry

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/npu/internal/engine"
	"github.com/roach88/npu/internal/ir"
)

// defaultSampleInterval applies when the sampler is given no rate.
const defaultSampleInterval = 100 * time.Millisecond

// Sample is a copy of one burst's fire queue grouped by area, for
// visualization and motor consumers that run slower than the engine.
type Sample struct {
	Burst uint64                          `json:"burst"`
	Areas map[ir.AreaID][]ir.FiringNeuron `json:"areas"`
	Total int                             `json:"total"`
}

// AreaIDs returns the sampled areas in ascending order.
func (s Sample) AreaIDs() []ir.AreaID {
	ids := make([]ir.AreaID, 0, len(s.Areas))
	for id := range s.Areas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Sampler rate-limits fire queues for consumers between bursts. As an
// engine.Observer it takes at most one sample per interval, skips empty
// queues and never samples a burst twice. Samples go to a buffered
// channel without blocking the engine: when the consumer falls behind,
// new samples are dropped and counted.
type Sampler struct {
	mu        sync.Mutex
	interval  time.Duration
	last      time.Time
	sampled   bool
	lastBurst uint64
	taken     uint64
	dropped   uint64

	out chan Sample
	now func() time.Time
}

var _ engine.Observer = (*Sampler)(nil)

// NewSampler creates a sampler taking at most hz samples per second
// (10 when hz <= 0) and buffering up to buffer samples (at least 1).
func NewSampler(hz float64, buffer int) *Sampler {
	s := &Sampler{
		interval: defaultSampleInterval,
		out:      make(chan Sample, max(buffer, 1)),
		now:      time.Now,
	}
	s.SetRate(hz)
	return s
}

// SetRate changes the sampling frequency. Non-positive rates are ignored.
func (s *Sampler) SetRate(hz float64) {
	if hz <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = time.Duration(float64(time.Second) / hz)
	s.mu.Unlock()
}

// Samples is the delivery channel. It is closed by Close.
func (s *Sampler) Samples() <-chan Sample { return s.out }

// ObserveBurst offers the burst's fire queue to the sampler.
func (s *Sampler) ObserveBurst(r *engine.StepResult) {
	sample, ok := s.Take(r.Burst, r.Fired)
	if !ok {
		return
	}
	select {
	case s.out <- sample:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Take samples fired for burst if the interval has elapsed, the queue is
// non-empty and the burst was not sampled before. The sample owns its
// slices.
func (s *Sampler) Take(burst uint64, fired []ir.FiringNeuron) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fired) == 0 || (s.sampled && burst == s.lastBurst) {
		return Sample{}, false
	}
	now := s.now()
	if s.sampled && now.Sub(s.last) < s.interval {
		return Sample{}, false
	}

	sample := Sample{Burst: burst, Areas: make(map[ir.AreaID][]ir.FiringNeuron), Total: len(fired)}
	for _, n := range fired {
		sample.Areas[n.Area] = append(sample.Areas[n.Area], n)
	}
	s.last = now
	s.sampled = true
	s.lastBurst = burst
	s.taken++
	return sample, true
}

// Taken counts samples produced, delivered or not.
func (s *Sampler) Taken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken
}

// Dropped counts samples the consumer was too slow to receive.
func (s *Sampler) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close closes the delivery channel. Call it after the engine has
// stopped stepping.
func (s *Sampler) Close() {
	close(s.out)
}

// LogValue summarizes the sampler for slog.
func (s *Sampler) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("taken", s.Taken()),
		slog.Uint64("dropped", s.Dropped()),
	)
}
