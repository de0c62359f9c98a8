// Package bench implements the Benchmark Engine (C6): a load client, a
// fixed-order suite of six test types run against each of the three
// pipelines, latency/memory analysis, and multi-format reporting
// (spec.md §4.6). Structured logging uses go.uber.org/zap, run IDs use
// github.com/google/uuid, and process/memory sampling uses
// github.com/shirou/gopsutil/v3.
package bench

import "time"

// RequestResult is one completed (or failed) request's outcome, per
// spec.md §4.6 step 2.
type RequestResult struct {
	ID           uint64
	Success      bool
	Status       int
	Nanoseconds  int64
	BodyLen      int
	ErrorMessage string
}

// StatusHistogram buckets results by HTTP status class.
type StatusHistogram map[string]int

// TestResult is the immutable per-(server,test) record of spec.md §3.
type TestResult struct {
	Server           string
	Test             string
	Concurrency      int
	TotalRequests    int
	SuccessfulReqs   int
	DurationMs       float64
	Throughput       float64 // requests/sec
	AvgLatencyMs     float64
	Latency          LatencyStats
	ErrorRate        float64
	StatusHistogram  StatusHistogram
}

// LatencyStats is derived from a sorted sample of per-request response
// times, per spec.md §3.
type LatencyStats struct {
	Min, Max, Mean, Median, Stdev float64
	Percentiles                   map[string]float64 // "p50","p75","p90","p95","p99","p99.9"
	Histogram                     map[string]int
	OutlierCount                  int
	TrendSlopeMsPerWindow          float64
	Trend                          string // INCREASING | STABLE | DECREASING
}

// ServerTarget is one pipeline the benchmark engine drives over loopback
// HTTP, per spec.md §4.6 ("bound to three different ports").
type ServerTarget struct {
	Name    string
	BaseURL string
}

// Config bundles the load-generation parameters of spec.md §6.
type Config struct {
	WarmupRequests      int
	MaxConcurrency      int
	TestDurationSeconds int
	TimeoutSeconds      int
	EnableMemoryProfile bool
	EnableLatencyTrend  bool
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
