package bench

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
)

// RankedServer is one server's aggregate ranking score, per spec.md
// §4.6 ("Reporting"): 0.4*throughputScore + 0.3*latencyScore +
// 0.3*successScore, each normalised to [0, 100].
type RankedServer struct {
	Server          string
	Score           float64
	AvgThroughput   float64
	AvgLatencyMs    float64
	AvgSuccessRate  float64
}

// Rank aggregates results per server and scores them relative to the
// best performer in each dimension.
func Rank(results []TestResult) []RankedServer {
	byServer := map[string][]TestResult{}
	for _, r := range results {
		byServer[r.Server] = append(byServer[r.Server], r)
	}

	var ranked []RankedServer
	var maxThroughput, minLatency = 0.0, -1.0
	agg := map[string]*RankedServer{}

	for server, rs := range byServer {
		var throughput, latency, success float64
		for _, r := range rs {
			throughput += r.Throughput
			latency += r.AvgLatencyMs
			success += 1 - r.ErrorRate
		}
		n := float64(len(rs))
		rk := &RankedServer{
			Server:         server,
			AvgThroughput:  throughput / n,
			AvgLatencyMs:   latency / n,
			AvgSuccessRate: success / n,
		}
		agg[server] = rk
		if rk.AvgThroughput > maxThroughput {
			maxThroughput = rk.AvgThroughput
		}
		if minLatency < 0 || (rk.AvgLatencyMs > 0 && rk.AvgLatencyMs < minLatency) {
			minLatency = rk.AvgLatencyMs
		}
	}

	for _, rk := range agg {
		throughputScore := normalize(rk.AvgThroughput, maxThroughput)
		latencyScore := 100.0
		if rk.AvgLatencyMs > 0 && minLatency > 0 {
			latencyScore = normalize(minLatency, rk.AvgLatencyMs)
		}
		successScore := rk.AvgSuccessRate * 100

		rk.Score = 0.4*throughputScore + 0.3*latencyScore + 0.3*successScore
		ranked = append(ranked, *rk)
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

func normalize(value, best float64) float64 {
	if best <= 0 {
		return 0
	}
	pct := (value / best) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Report bundles a benchmark run's results and ranking under a stable
// run ID, tagged with github.com/google/uuid the way a load-test run
// gets a correlation ID in the rest of the example pack.
type Report struct {
	RunID   string         `json:"runId"`
	Results []TestResult   `json:"results"`
	Ranking []RankedServer `json:"ranking"`
}

// NewReport builds a Report with a fresh UUID.
func NewReport(results []TestResult) Report {
	return Report{
		RunID:   uuid.NewString(),
		Results: results,
		Ranking: Rank(results),
	}
}

// WriteJSON writes the report as indented JSON to <dir>/benchmark_results.json,
// per spec.md §6's CLI contract.
func (rep Report) WriteJSON(dir string) (string, error) {
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("bench: encode json report: %w", err)
	}
	path := filepath.Join(dir, "benchmark_results.json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("bench: write json report: %w", err)
	}
	return path, nil
}

// WriteCSV writes one row per TestResult to <dir>/benchmark_results_<runId>.csv.
func (rep Report) WriteCSV(dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("benchmark_results_%s.csv", rep.RunID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("bench: create csv report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"server", "test", "concurrency", "total", "successful",
		"throughput", "avgLatencyMs", "p95Ms", "p99Ms", "errorRate"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, r := range rep.Results {
		row := []string{
			r.Server, r.Test,
			strconv.Itoa(r.Concurrency),
			strconv.Itoa(r.TotalRequests),
			strconv.Itoa(r.SuccessfulReqs),
			strconv.FormatFloat(r.Throughput, 'f', 2, 64),
			strconv.FormatFloat(r.AvgLatencyMs, 'f', 2, 64),
			strconv.FormatFloat(r.Latency.Percentiles["p95"], 'f', 2, 64),
			strconv.FormatFloat(r.Latency.Percentiles["p99"], 'f', 2, 64),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WriteHTML renders a summary page with a bar chart (plain div bars whose
// CSS width is sized from throughput, avoiding a JS charting dependency)
// to <dir>/benchmark_results.html, per spec.md §6.
func (rep Report) WriteHTML(dir string) (string, error) {
	tmpl := template.Must(template.New("report").Funcs(template.FuncMap{
		"barWidth": func(throughput, max float64) int {
			if max <= 0 {
				return 0
			}
			return int((throughput / max) * 400)
		},
	}).Parse(htmlReportTemplate))

	maxThroughput := 0.0
	for _, rk := range rep.Ranking {
		if rk.AvgThroughput > maxThroughput {
			maxThroughput = rk.AvgThroughput
		}
	}

	var buf bytes.Buffer
	data := struct {
		Report
		MaxThroughput float64
	}{rep, maxThroughput}

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("bench: render html report: %w", err)
	}

	path := filepath.Join(dir, "benchmark_results.html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("bench: write html report: %w", err)
	}
	return path, nil
}

// WriteConsole prints a tab-aligned ranking summary followed by one line
// per TestResult, the console counterpart to WriteHTML/WriteJSON/WriteCSV.
func (rep Report) WriteConsole(w io.Writer) error {
	fmt.Fprintf(w, "Benchmark run %s\n\n", rep.RunID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSERVER\tSCORE\tTHROUGHPUT\tAVG LATENCY\tSUCCESS")
	for i, rk := range rep.Ranking {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f req/s\t%.1f ms\t%.1f%%\n",
			i+1, rk.Server, rk.Score, rk.AvgThroughput, rk.AvgLatencyMs, rk.AvgSuccessRate*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nTEST RESULTS")
	tw2 := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw2, "SERVER\tTEST\tCONCURRENCY\tTHROUGHPUT\tP95\tERROR RATE")
	for _, r := range rep.Results {
		fmt.Fprintf(tw2, "%s\t%s\t%d\t%.1f req/s\t%.1f ms\t%.2f%%\n",
			r.Server, r.Test, r.Concurrency, r.Throughput, r.Latency.Percentiles["p95"], r.ErrorRate*100)
	}
	return tw2.Flush()
}

const htmlReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Benchmark Results {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
.bar-row { display: flex; align-items: center; margin: 0.25rem 0; }
.bar { background: #3b82f6; height: 1.1rem; margin-right: 0.5rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
td, th { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: right; }
th { background: #f3f4f6; }
</style>
</head>
<body>
<h1>Benchmark Run {{.RunID}}</h1>
<h2>Ranking</h2>
{{range .Ranking}}
<div class="bar-row">
  <div class="bar" style="width: {{barWidth .AvgThroughput $.MaxThroughput}}px"></div>
  <span>{{.Server}} — score {{printf "%.1f" .Score}}, {{printf "%.1f" .AvgThroughput}} req/s</span>
</div>
{{end}}
<h2>Results</h2>
<table>
<tr><th>Server</th><th>Test</th><th>Concurrency</th><th>Throughput</th><th>Avg ms</th><th>p95 ms</th><th>Error rate</th></tr>
{{range .Results}}
<tr>
<td>{{.Server}}</td><td>{{.Test}}</td><td>{{.Concurrency}}</td>
<td>{{printf "%.1f" .Throughput}}</td><td>{{printf "%.1f" .AvgLatencyMs}}</td>
<td>{{printf "%.1f" (index .Latency.Percentiles "p95")}}</td>
<td>{{printf "%.2f" .ErrorRate}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`
