package bench

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// MemorySample is one point-in-time reading, per spec.md §4.6 ("Periodic
// sampling of heap used/committed/max ... and GC counts/times").
type MemorySample struct {
	At           time.Time
	HeapAllocMiB float64
	HeapSysMiB   float64
	RSSMiB       float64
	NumGC        uint32
	GCPauseNs    uint64
}

// MemoryProfile accumulates samples and derives a leak signal.
type MemoryProfile struct {
	Samples []MemorySample
	proc    *process.Process
}

// NewMemoryProfile opens a gopsutil handle on the current process for
// RSS sampling alongside Go's own runtime.MemStats.
func NewMemoryProfile() *MemoryProfile {
	p, _ := process.NewProcess(int32(os.Getpid()))
	return &MemoryProfile{proc: p}
}

// Sample takes one reading.
func (m *MemoryProfile) Sample() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := MemorySample{
		At:           time.Now(),
		HeapAllocMiB: float64(ms.HeapAlloc) / (1 << 20),
		HeapSysMiB:   float64(ms.HeapSys) / (1 << 20),
		NumGC:        ms.NumGC,
		GCPauseNs:    ms.PauseNs[(ms.NumGC+255)%256],
	}
	if m.proc != nil {
		if info, err := m.proc.MemoryInfo(); err == nil && info != nil {
			s.RSSMiB = float64(info.RSS) / (1 << 20)
		}
	}

	m.Samples = append(m.Samples, s)
	return s
}

// LeakRateMiBPerMin fits a least-squares line through HeapAllocMiB over
// time and reports the slope in MiB/min; a leak is flagged when it
// exceeds 1 (spec.md §4.6).
func (m *MemoryProfile) LeakRateMiBPerMin() (rate float64, leaking bool) {
	if len(m.Samples) < 3 {
		return 0, false
	}
	first := m.Samples[0].At
	ys := make([]float64, len(m.Samples))
	xs := make([]float64, len(m.Samples))
	for i, s := range m.Samples {
		xs[i] = s.At.Sub(first).Minutes()
		ys[i] = s.HeapAllocMiB
	}
	rate = leastSquaresSlopeXY(xs, ys)
	return rate, rate > 1.0
}

func leastSquaresSlopeXY(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
