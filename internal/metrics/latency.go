package metrics

import (
	"math"
	"sort"
	"sync"
)

// LatencyStats accumulates latency samples for one phase of the pipeline and
// computes summary statistics at the end of a run. Trials run sequentially so
// sample counts stay small; all samples are retained for exact percentiles.
type LatencyStats struct {
	mu      sync.Mutex
	samples []float64
	sum     float64
	min     float64
	max     float64
}

// Summary holds the computed statistics for one phase, in milliseconds.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Avg   float64
	P50   float64
	P90   float64
	P99   float64
}

// NewLatencyStats creates an empty latency accumulator.
func NewLatencyStats() *LatencyStats {
	return &LatencyStats{min: math.MaxFloat64}
}

// Add records a latency sample in milliseconds.
func (s *LatencyStats) Add(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, latencyMs)
	s.sum += latencyMs
	if latencyMs < s.min {
		s.min = latencyMs
	}
	if latencyMs > s.max {
		s.max = latencyMs
	}
}

// Count returns the number of samples recorded.
func (s *LatencyStats) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Compute returns the summary statistics, or nil when no samples exist.
func (s *LatencyStats) Compute() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return nil
	}

	sorted := make([]float64, len(s.samples))
	copy(sorted, s.samples)
	sort.Float64s(sorted)

	return &Summary{
		Count: len(sorted),
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(len(sorted)),
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile calculates the p-th percentile from a sorted slice using
// linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
