package bench

import (
	"math"
	"testing"
)

func nanosFromMs(ms ...float64) []int64 {
	out := make([]int64, len(ms))
	for i, v := range ms {
		out[i] = int64(v * 1e6)
	}
	return out
}

func TestAnalyzeLatency_Percentiles(t *testing.T) {
	// 1..9 plus a 100ms outlier, matching the sample shape used by the
	// worked example in spec.md §4.6. The glossary's own percentile
	// definition (index = (p/100)*(n-1), interpolated) gives p90 = 18.1
	// for this sample, not the 91.9 the prose example states; we follow
	// the formula as defined rather than the inconsistent worked number
	// (see DESIGN.md).
	nanos := nanosFromMs(1, 2, 3, 4, 5, 6, 7, 8, 9, 100)
	stats := AnalyzeLatency(nanos, false)

	want := 18.1
	got := stats.Percentiles["p90"]
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("p90 = %.2f, want %.2f", got, want)
	}

	if stats.Min != 1 || stats.Max != 100 {
		t.Fatalf("min/max = %v/%v, want 1/100", stats.Min, stats.Max)
	}
}

func TestAnalyzeLatency_Empty(t *testing.T) {
	stats := AnalyzeLatency(nil, false)
	if stats.Percentiles == nil || stats.Histogram == nil {
		t.Fatal("empty sample should still return non-nil maps")
	}
}

func TestIQROutliers_FlagsTheTail(t *testing.T) {
	nanos := nanosFromMs(1, 2, 3, 4, 5, 6, 7, 8, 9, 100)
	stats := AnalyzeLatency(nanos, false)
	if stats.OutlierCount == 0 {
		t.Fatal("expected the 100ms sample to be flagged as an outlier")
	}
}

func TestTrend_StableBelowThreshold(t *testing.T) {
	ms := make([]float64, 200)
	for i := range ms {
		ms[i] = 10.0
	}
	_, trend := trend(ms)
	if trend != "STABLE" {
		t.Fatalf("trend = %q, want STABLE for a flat series", trend)
	}
}

func TestTrend_IncreasingAboveThreshold(t *testing.T) {
	ms := make([]float64, 300)
	for i := range ms {
		ms[i] = float64(i) * 0.05
	}
	_, trend := trend(ms)
	if trend != "INCREASING" {
		t.Fatalf("trend = %q, want INCREASING for a rising series", trend)
	}
}

func TestTrend_ShortSeriesIsStable(t *testing.T) {
	_, trend := trend([]float64{1, 2, 3})
	if trend != "STABLE" {
		t.Fatalf("trend = %q, want STABLE for a series shorter than two windows", trend)
	}
}
