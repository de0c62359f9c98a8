package bench

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleResults() []TestResult {
	fast := TestResult{
		Server: "threaded", Test: "basic", Concurrency: 10,
		TotalRequests: 100, SuccessfulReqs: 100,
		Throughput: 500, AvgLatencyMs: 5, ErrorRate: 0,
		Latency: LatencyStats{Percentiles: map[string]float64{"p95": 8}},
	}
	slow := TestResult{
		Server: "eventloop", Test: "basic", Concurrency: 10,
		TotalRequests: 100, SuccessfulReqs: 90,
		Throughput: 250, AvgLatencyMs: 10, ErrorRate: 0.1,
		Latency: LatencyStats{Percentiles: map[string]float64{"p95": 20}},
	}
	return []TestResult{fast, slow}
}

func TestRank_BestThroughputWins(t *testing.T) {
	ranked := Rank(sampleResults())
	if len(ranked) != 2 {
		t.Fatalf("got %d ranked servers, want 2", len(ranked))
	}
	if ranked[0].Server != "threaded" {
		t.Fatalf("top ranked server = %q, want threaded", ranked[0].Server)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Fatalf("expected threaded score %.1f to exceed eventloop score %.1f", ranked[0].Score, ranked[1].Score)
	}
}

func TestReport_WriteJSON_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	rep := NewReport(sampleResults())

	path, err := rep.WriteJSON(dir)
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if filepath.Base(path) != "benchmark_results.json" {
		t.Fatalf("json report filename = %q, want benchmark_results.json", filepath.Base(path))
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back report: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.RunID != rep.RunID || len(decoded.Results) != 2 {
		t.Fatalf("round-tripped report mismatch: %+v", decoded)
	}
}

func TestReport_WriteCSV(t *testing.T) {
	dir := t.TempDir()
	rep := NewReport(sampleResults())

	path, err := rep.WriteCSV(dir)
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(body), "threaded") {
		t.Fatal("csv body missing expected server name")
	}
}

func TestReport_WriteHTML(t *testing.T) {
	dir := t.TempDir()
	rep := NewReport(sampleResults())

	path, err := rep.WriteHTML(dir)
	if err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	if filepath.Base(path) != "benchmark_results.html" {
		t.Fatalf("html report filename = %q, want benchmark_results.html", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !bytes.Contains(body, []byte("threaded")) {
		t.Fatal("html body missing expected server name")
	}
}

func TestReport_WriteConsole(t *testing.T) {
	rep := NewReport(sampleResults())
	var buf bytes.Buffer
	if err := rep.WriteConsole(&buf); err != nil {
		t.Fatalf("WriteConsole: %v", err)
	}
	if !strings.Contains(buf.String(), "threaded") {
		t.Fatal("console output missing expected server name")
	}
}
