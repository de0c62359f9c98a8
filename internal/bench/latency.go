package bench

import (
	"math"
	"sort"
)

var percentileLevels = []float64{50, 75, 90, 95, 99, 99.9}

var histogramBucketsMs = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000}

// AnalyzeLatency derives LatencyStats from response times in
// nanoseconds, per spec.md §3 and §4.6 ("Latency analysis").
func AnalyzeLatency(nanos []int64, windowed bool) LatencyStats {
	if len(nanos) == 0 {
		return LatencyStats{Percentiles: map[string]float64{}, Histogram: map[string]int{}}
	}

	ms := make([]float64, len(nanos))
	for i, n := range nanos {
		ms[i] = float64(n) / 1e6
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)

	stats := LatencyStats{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
	stats.Mean = mean(sorted)
	stats.Median = percentile(sorted, 50)
	stats.Stdev = stdev(sorted, stats.Mean)

	stats.Percentiles = make(map[string]float64, len(percentileLevels))
	for _, p := range percentileLevels {
		stats.Percentiles[percentileLabel(p)] = percentile(sorted, p)
	}

	stats.Histogram = histogram(sorted)
	stats.OutlierCount = iqrOutliers(sorted)

	if windowed {
		stats.TrendSlopeMsPerWindow, stats.Trend = trend(ms)
	}

	return stats
}

// percentile computes the pth percentile of a pre-sorted sample by
// linear interpolation between the two surrounding order statistics, per
// the GLOSSARY definition: index (p/100)*(n-1), interpolating between
// floor and ceil.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	idx := (p / 100) * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func percentileLabel(p float64) string {
	switch p {
	case 50:
		return "p50"
	case 75:
		return "p75"
	case 90:
		return "p90"
	case 95:
		return "p95"
	case 99:
		return "p99"
	case 99.9:
		return "p99.9"
	default:
		return "p"
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// histogram buckets a sorted ms sample into the fixed bucket set of
// spec.md §3.
func histogram(sorted []float64) map[string]int {
	labels := []string{"<1", "1-2", "2-5", "5-10", "10-20", "20-50", "50-100",
		"100-200", "200-500", "500-1000", "1-2s", "2-5s", "5-10s", ">=10s"}
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l] = 0
	}

	for _, v := range sorted {
		idx := 0
		for idx < len(histogramBucketsMs) && v >= histogramBucketsMs[idx] {
			idx++
		}
		counts[labels[idx]]++
	}
	return counts
}

// iqrOutliers counts samples outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR], per
// the GLOSSARY's IQR outlier definition.
func iqrOutliers(sorted []float64) int {
	if len(sorted) < 4 {
		return 0
	}
	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	count := 0
	for _, v := range sorted {
		if v < lo || v > hi {
			count++
		}
	}
	return count
}

// trend fits a least-squares line over 60-sample windows of the
// (unsorted, arrival-ordered) latency series and classifies the slope,
// per spec.md §4.6: |slope| < 0.1 ms/window -> STABLE.
func trend(arrivalOrderMs []float64) (float64, string) {
	const windowSize = 60
	if len(arrivalOrderMs) < windowSize*2 {
		return 0, "STABLE"
	}

	windows := len(arrivalOrderMs) / windowSize
	avgs := make([]float64, windows)
	for w := 0; w < windows; w++ {
		avgs[w] = mean(arrivalOrderMs[w*windowSize : (w+1)*windowSize])
	}

	slope := leastSquaresSlope(avgs)
	switch {
	case slope > 0.1:
		return slope, "INCREASING"
	case slope < -0.1:
		return slope, "DECREASING"
	default:
		return slope, "STABLE"
	}
}

func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
