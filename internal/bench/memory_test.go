package bench

import "testing"

func TestMemoryProfile_LeakRateNeedsThreeSamples(t *testing.T) {
	m := NewMemoryProfile()
	m.Samples = []MemorySample{{}, {}}
	if rate, leaking := m.LeakRateMiBPerMin(); rate != 0 || leaking {
		t.Fatalf("expected zero rate below three samples, got %v/%v", rate, leaking)
	}
}

func TestLeastSquaresSlopeXY_FlatSeriesIsZero(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{10, 10, 10, 10}
	if slope := leastSquaresSlopeXY(xs, ys); slope != 0 {
		t.Fatalf("slope = %v, want 0 for a flat series", slope)
	}
}

func TestLeastSquaresSlopeXY_RisingSeries(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{0, 2, 4, 6}
	if slope := leastSquaresSlopeXY(xs, ys); slope != 2 {
		t.Fatalf("slope = %v, want 2", slope)
	}
}
