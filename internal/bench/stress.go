package bench

import (
	"context"
	"time"
)

// StressResult is the outcome of the binary-search stress mode of
// spec.md §4.6.
type StressResult struct {
	MaxSustainableConcurrency int
	AtErrorRate               float64
	AtAvgLatencyMs            float64
}

// FindMaxSustainableConcurrency binary-searches concurrency in
// [1, maxConcurrency] for the largest level at which errorRate < 5% and
// avgLatency < 5s, per spec.md §4.6 ("Stress mode").
func FindMaxSustainableConcurrency(ctx context.Context, client *LoadClient, url string, maxConcurrency int, requestsPerTrial int) StressResult {
	lo, hi := 1, maxConcurrency
	best := StressResult{MaxSustainableConcurrency: 0}

	for lo <= hi {
		mid := lo + (hi-lo)/2
		results := client.RunConcurrentCount(ctx, url, mid, requestsPerTrial)
		errRate, avgMs := summarize(results)

		if errRate < 0.05 && avgMs < 5000 {
			best = StressResult{MaxSustainableConcurrency: mid, AtErrorRate: errRate, AtAvgLatencyMs: avgMs}
			lo = mid + 1
		} else {
			hi = mid - 1
		}

		// Let the target recover briefly between trials, matching the
		// teardown pause used between regular suite sub-tests.
		time.Sleep(1 * time.Second)
	}
	return best
}

func summarize(results []RequestResult) (errorRate, avgLatencyMs float64) {
	if len(results) == 0 {
		return 1, 0
	}
	var failures int
	var sumNs int64
	for _, r := range results {
		if !r.Success {
			failures++
		}
		sumNs += r.Nanoseconds
	}
	errorRate = float64(failures) / float64(len(results))
	avgLatencyMs = float64(sumNs) / float64(len(results)) / 1e6
	return
}
