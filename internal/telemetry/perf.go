package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/npu/internal/backend"
	"github.com/roach88/npu/internal/engine"
)

// Phase names for one burst.
const (
	PhaseSynaptic = "synaptic"
	PhaseDynamics = "dynamics"
)

// PerfSample holds timing data for a single burst.
type PerfSample struct {
	Total  time.Duration
	Phases map[string]time.Duration
}

// PerfCollector tracks burst timings over a rolling window. Samples come
// either from the backend's own Timing (as an engine.Observer) or from
// explicit StartBurst/StartPhase/EndPhase/EndBurst calls.
//
// Not safe for concurrent use; the engine calls observers from the
// stepping goroutine.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int

	current    map[string]time.Duration
	burstStart time.Time
	phaseStart time.Time
	phase      string
	now        func() time.Time
}

var _ engine.Observer = (*PerfCollector)(nil)

// NewPerfCollector creates a collector keeping the last windowSize
// samples. A windowSize below 1 keeps 1024.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 1024
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
		current:    make(map[string]time.Duration),
		now:        time.Now,
	}
}

// StartBurst begins timing a burst.
func (p *PerfCollector) StartBurst() {
	p.burstStart = p.now()
	p.current = make(map[string]time.Duration)
	p.phase = ""
}

// StartPhase begins timing phase, ending the previous phase if any.
func (p *PerfCollector) StartPhase(phase string) {
	now := p.now()
	if p.phase != "" {
		p.current[p.phase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.phase = phase
}

// EndPhase ends the running phase.
func (p *PerfCollector) EndPhase() {
	if p.phase == "" {
		return
	}
	p.current[p.phase] += p.now().Sub(p.phaseStart)
	p.phase = ""
}

// EndBurst ends the running phase and records the sample.
func (p *PerfCollector) EndBurst() {
	p.EndPhase()
	p.add(PerfSample{Total: p.now().Sub(p.burstStart), Phases: p.current})
}

// Record adds a sample measured by a backend.
func (p *PerfCollector) Record(t backend.Timing) {
	p.add(PerfSample{
		Total: t.Total,
		Phases: map[string]time.Duration{
			PhaseSynaptic: t.Synaptic,
			PhaseDynamics: t.Dynamics,
		},
	})
}

// ObserveBurst implements engine.Observer.
func (p *PerfCollector) ObserveBurst(r *engine.StepResult) {
	p.Record(r.Timing)
}

func (p *PerfCollector) add(s PerfSample) {
	p.samples[p.writeIndex] = s
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// Len returns the number of samples in the window.
func (p *PerfCollector) Len() int {
	return p.sampleCount
}

// PerfStats holds aggregated timings in microseconds.
type PerfStats struct {
	Samples         int                `json:"samples"`
	Burst           Summary            `json:"burst_us"`
	Phases          map[string]Summary `json:"phases_us"`
	BurstsPerSecond float64            `json:"bursts_per_second"`
}

// Stats summarizes the current window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{Samples: p.sampleCount, Phases: make(map[string]Summary)}
	if p.sampleCount == 0 {
		return stats
	}

	totals := make([]float64, p.sampleCount)
	phases := make(map[string][]float64)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totals[i] = micros(s.Total)
		for name, d := range s.Phases {
			phases[name] = append(phases[name], micros(d))
		}
	}

	stats.Burst = Summarize(totals)
	for name, samples := range phases {
		stats.Phases[name] = Summarize(samples)
	}
	if stats.Burst.Mean > 0 {
		stats.BurstsPerSecond = 1e6 / stats.Burst.Mean
	}
	return stats
}

// LogStats logs the summary at Info.
func (s PerfStats) LogStats(logger *slog.Logger) {
	attrs := []any{
		"samples", s.Samples,
		"burst_us", s.Burst,
		"bursts_per_sec", int(s.BurstsPerSecond),
	}
	names := make([]string, 0, len(s.Phases))
	for name := range s.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, name+"_us", s.Phases[name])
	}
	logger.Info("perf", attrs...)
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
