package metrics

import "testing"

func TestLatencyStatsCompute(t *testing.T) {
	s := NewLatencyStats()
	for _, v := range []float64{100, 200, 300, 400, 500} {
		s.Add(v)
	}

	got := s.Compute()
	if got == nil {
		t.Fatal("Compute returned nil")
	}
	if got.Count != 5 {
		t.Errorf("Count = %d, want 5", got.Count)
	}
	if got.Min != 100 {
		t.Errorf("Min = %v, want 100", got.Min)
	}
	if got.Max != 500 {
		t.Errorf("Max = %v, want 500", got.Max)
	}
	if got.Avg != 300 {
		t.Errorf("Avg = %v, want 300", got.Avg)
	}
	if got.P50 != 300 {
		t.Errorf("P50 = %v, want 300", got.P50)
	}
}

func TestLatencyStatsEmpty(t *testing.T) {
	s := NewLatencyStats()
	if got := s.Compute(); got != nil {
		t.Errorf("Compute on empty stats = %+v, want nil", got)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestLatencyStatsSingleSample(t *testing.T) {
	s := NewLatencyStats()
	s.Add(842.1)

	got := s.Compute()
	if got.P50 != 842.1 || got.P90 != 842.1 || got.P99 != 842.1 {
		t.Errorf("single-sample percentiles = %v/%v/%v, want all 842.1", got.P50, got.P90, got.P99)
	}
}
