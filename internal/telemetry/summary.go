package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Summary describes a sample distribution.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P99    float64 `json:"p99"`
}

// Summarize computes mean, sample standard deviation and empirical
// quantiles. An empty input gives the zero Summary; a single sample has
// zero deviation.
func Summarize(samples []float64) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if n == 1 || math.IsNaN(std) {
		std = 0
	}
	return Summary{
		N:      n,
		Mean:   mean,
		StdDev: std,
		Min:    sorted[0],
		Max:    sorted[n-1],
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("n", s.N),
		slog.Float64("mean", s.Mean),
		slog.Float64("stddev", s.StdDev),
		slog.Float64("p50", s.P50),
		slog.Float64("p99", s.P99),
	)
}
