package poolctl

import (
	"runtime"
	"runtime/debug"
)

// GCConfig holds the process-wide GC tuning knobs. The benchmark engine
// applies these before starting all three pipelines so that GC behavior
// is comparable across runs rather than an artifact of Go's defaults.
type GCConfig struct {
	GOGCPercent    int
	MemoryLimit    int64
	MinRetainExtra int64
}

// DefaultGCConfig returns settings tuned for throughput-oriented benchmark
// runs: less frequent GC, a retained baseline to avoid early collections.
func DefaultGCConfig() GCConfig {
	return GCConfig{GOGCPercent: 200, MinRetainExtra: 50 << 20}
}

// Apply installs the GC configuration.
func Apply(cfg GCConfig) {
	if cfg.GOGCPercent > 0 {
		debug.SetGCPercent(cfg.GOGCPercent)
	}
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	if cfg.MinRetainExtra > 0 {
		runtime.GC()
		_ = make([]byte, cfg.MinRetainExtra)
	}
}
