package poolctl

import (
	"sync"
	"sync/atomic"
	"time"
)

// ObjectPoolConfig configures a SmartPool. The Threaded pipeline uses
// SmartPool to recycle protocol.Request objects off the hot path,
// avoiding a per-request allocation.
type ObjectPoolConfig struct {
	New           func() any
	Reset         func(any)
	WarmupSize    int
	TargetHitRate float64
}

// SmartPool is a sync.Pool wrapper that tracks hit-rate statistics and can
// warm itself up ahead of load.
type SmartPool struct {
	pool      sync.Pool
	newFunc   func() any
	resetFunc func(any)

	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64

	warmupSize    int
	targetHitRate float64
	startTime     time.Time
}

// NewSmartPool builds and warms up a SmartPool per cfg.
func NewSmartPool(cfg ObjectPoolConfig) *SmartPool {
	if cfg.WarmupSize == 0 {
		cfg.WarmupSize = 100
	}
	if cfg.TargetHitRate == 0 {
		cfg.TargetHitRate = 0.90
	}

	sp := &SmartPool{
		newFunc:       cfg.New,
		resetFunc:     cfg.Reset,
		warmupSize:    cfg.WarmupSize,
		targetHitRate: cfg.TargetHitRate,
		startTime:     time.Now(),
	}
	sp.pool.New = func() any {
		sp.news.Add(1)
		return cfg.New()
	}
	sp.warmup()
	return sp
}

func (sp *SmartPool) warmup() {
	for i := 0; i < sp.warmupSize; i++ {
		sp.pool.Put(sp.newFunc())
	}
}

// Get acquires an object from the pool.
func (sp *SmartPool) Get() any {
	sp.gets.Add(1)
	return sp.pool.Get()
}

// Put resets and returns an object to the pool.
func (sp *SmartPool) Put(obj any) {
	if obj == nil {
		return
	}
	sp.puts.Add(1)
	if sp.resetFunc != nil {
		sp.resetFunc(obj)
	}
	sp.pool.Put(obj)
}

// ObjectPoolStats is a point-in-time snapshot of a SmartPool's usage.
type ObjectPoolStats struct {
	Gets    uint64
	Puts    uint64
	News    uint64
	HitRate float64
	Uptime  time.Duration
}

// Stats returns the pool's current hit-rate statistics.
func (sp *SmartPool) Stats() ObjectPoolStats {
	gets, puts, news := sp.gets.Load(), sp.puts.Load(), sp.news.Load()
	hitRate := 0.0
	if gets > 0 && gets > news {
		hitRate = float64(gets-news) / float64(gets)
	}
	return ObjectPoolStats{Gets: gets, Puts: puts, News: news, HitRate: hitRate, Uptime: time.Since(sp.startTime)}
}

// Optimize tops up the pool when the hit rate falls below target, under
// sustained load.
func (sp *SmartPool) Optimize() {
	stats := sp.Stats()
	if stats.HitRate < sp.targetHitRate && stats.Gets > 1000 {
		extra := sp.warmupSize / 10
		for i := 0; i < extra; i++ {
			sp.pool.Put(sp.newFunc())
		}
	}
}

// StartAutoOptimize runs Optimize on a ticker until stop is closed.
func (sp *SmartPool) StartAutoOptimize(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sp.Optimize()
			case <-stop:
				return
			}
		}
	}()
}
