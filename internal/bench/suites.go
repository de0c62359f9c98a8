package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/searchktools/compare-server/internal/logging"
)

// Runner drives the six fixed-order suites of spec.md §4.6 against one
// or more ServerTargets.
type Runner struct {
	cfg Config
	log *logging.Logger
}

// NewRunner builds a Runner.
func NewRunner(cfg Config, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// concurrencyLevels is the fixed ramp of spec.md §4.6.
var concurrencyLevels = []int{10, 50, 100, 500, 1000}

// RunAll executes every suite against every healthy target, in the fixed
// order: basic, ramp, CPU-intensive, I/O-intensive, memory pressure,
// endurance. Results for unhealthy targets are skipped with a log line
// rather than silently dropped.
func (r *Runner) RunAll(ctx context.Context, targets []ServerTarget) []TestResult {
	client := NewLoadClient(r.cfg.timeout())
	var all []TestResult

	for _, target := range targets {
		if !client.HealthCheck(ctx, target.BaseURL) {
			r.log.Warnw("target failed health check, skipping", "server", target.Name)
			continue
		}

		all = append(all, r.basic(ctx, client, target))
		all = append(all, r.ramp(ctx, client, target)...)
		all = append(all, r.cpuIntensive(ctx, client, target))
		all = append(all, r.ioIntensive(ctx, client, target))
		all = append(all, r.memoryPressure(ctx, client, target))
		all = append(all, r.endurance(ctx, client, target))

		time.Sleep(1 * time.Second) // recovery pause between targets
	}
	return all
}

func (r *Runner) warmup(ctx context.Context, client *LoadClient, url string, concurrency int) {
	n := concurrency
	if n > 10 {
		n = 10
	}
	if n < 1 {
		n = 1
	}
	client.RunConcurrentCount(ctx, url, n, n)
}

func (r *Runner) basic(ctx context.Context, client *LoadClient, target ServerTarget) TestResult {
	url := target.BaseURL + "/hello"
	r.warmup(ctx, client, url, 10)

	start := time.Now()
	results := client.RunConcurrentCount(ctx, url, 10, 100)
	elapsed := time.Since(start)
	time.Sleep(1 * time.Second)

	return buildResult(target.Name, "basic", 10, results, elapsed)
}

func (r *Runner) ramp(ctx context.Context, client *LoadClient, target ServerTarget) []TestResult {
	url := target.BaseURL + "/hello"
	var out []TestResult
	for _, c := range concurrencyLevels {
		if c > r.cfg.MaxConcurrency {
			continue
		}
		r.warmup(ctx, client, url, c)

		start := time.Now()
		results := client.RunConcurrentCount(ctx, url, c, c*10)
		elapsed := time.Since(start)
		out = append(out, buildResult(target.Name, fmt.Sprintf("ramp-%d", c), c, results, elapsed))

		time.Sleep(1 * time.Second)
	}
	return out
}

func (r *Runner) cpuIntensive(ctx context.Context, client *LoadClient, target ServerTarget) TestResult {
	url := target.BaseURL + "/cpu-intensive"
	r.warmup(ctx, client, url, 10)

	start := time.Now()
	results := client.RunConcurrentCount(ctx, url, 50, 200)
	elapsed := time.Since(start)
	time.Sleep(1 * time.Second)

	return buildResult(target.Name, "cpu-intensive", 50, results, elapsed)
}

func (r *Runner) ioIntensive(ctx context.Context, client *LoadClient, target ServerTarget) TestResult {
	url := target.BaseURL + "/io-simulation"
	r.warmup(ctx, client, url, 10)

	start := time.Now()
	results := client.RunConcurrentCount(ctx, url, 50, 200)
	elapsed := time.Since(start)
	time.Sleep(1 * time.Second)

	return buildResult(target.Name, "io-intensive", 50, results, elapsed)
}

func (r *Runner) memoryPressure(ctx context.Context, client *LoadClient, target ServerTarget) TestResult {
	url := target.BaseURL + "/hello"
	concurrency := 2000
	if concurrency > r.cfg.MaxConcurrency {
		concurrency = r.cfg.MaxConcurrency
	}
	r.warmup(ctx, client, url, concurrency)

	start := time.Now()
	results := client.RunConcurrentCount(ctx, url, concurrency, 5000)
	elapsed := time.Since(start)
	time.Sleep(2 * time.Second)

	return buildResult(target.Name, "memory-pressure", concurrency, results, elapsed)
}

func (r *Runner) endurance(ctx context.Context, client *LoadClient, target ServerTarget) TestResult {
	url := target.BaseURL + "/hello"
	r.warmup(ctx, client, url, 50)

	start := time.Now()
	results := client.RunConcurrentDuration(ctx, url, 50, 10*time.Minute)
	elapsed := time.Since(start)
	time.Sleep(3 * time.Second)

	return buildResult(target.Name, "endurance", 50, results, elapsed)
}

func buildResult(server, test string, concurrency int, results []RequestResult, elapsed time.Duration) TestResult {
	nanos := make([]int64, 0, len(results))
	hist := StatusHistogram{}
	success := 0
	for _, res := range results {
		nanos = append(nanos, res.Nanoseconds)
		if res.Success {
			success++
		}
		hist[statusClassOf(res.Status)]++
	}

	total := len(results)
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(total-success) / float64(total)
	}

	latency := AnalyzeLatency(nanos, true)
	durationMs := float64(elapsed.Milliseconds())
	throughput := 0.0
	if durationMs > 0 {
		throughput = float64(total) / (durationMs / 1000)
	}

	return TestResult{
		Server:          server,
		Test:            test,
		Concurrency:     concurrency,
		TotalRequests:   total,
		SuccessfulReqs:  success,
		DurationMs:      durationMs,
		Throughput:      throughput,
		AvgLatencyMs:    latency.Mean,
		Latency:         latency,
		ErrorRate:       errorRate,
		StatusHistogram: hist,
	}
}

func statusClassOf(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
