package poolctl

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_CallerRunsUnderSaturation(t *testing.T) {
	// S6: core=1, max=1, queueCapacity=0, a handler that sleeps 200ms;
	// submitting three requests concurrently, all three complete, and at
	// least one runs on the submitting goroutine.
	p := New(Config{CorePoolSize: 1, MaximumPoolSize: 1, QueueCapacity: 0})
	defer p.Shutdown(context.Background())

	var completed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(func() {
				time.Sleep(200 * time.Millisecond)
				completed.Add(1)
			})
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for completed.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if completed.Load() != 3 {
		t.Fatalf("expected 3 completions, got %d", completed.Load())
	}

	stats := p.Stats()
	if stats.RejectedCount == 0 {
		t.Fatal("expected at least one caller-runs rejection under saturation")
	}
}

func TestWorkerPool_CoreNeverExceedsMax(t *testing.T) {
	p := New(Config{CorePoolSize: 2, MaximumPoolSize: 4, QueueCapacity: 1})
	defer p.Shutdown(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			time.Sleep(20 * time.Millisecond)
		})
	}

	stats := p.Stats()
	if stats.CorePoolSize > stats.MaximumPoolSize {
		t.Fatalf("core %d exceeded max %d", stats.CorePoolSize, stats.MaximumPoolSize)
	}
	if stats.CurrentPoolSize > stats.MaximumPoolSize {
		t.Fatalf("current %d exceeded max %d", stats.CurrentPoolSize, stats.MaximumPoolSize)
	}
	wg.Wait()
}

func TestWorkerPool_ShutdownIsIdempotent(t *testing.T) {
	p := New(Config{CorePoolSize: 1, MaximumPoolSize: 1})
	ctx := context.Background()
	p.Shutdown(ctx)
	p.Shutdown(ctx) // must not panic
}

func TestWorkerPool_HandlerPanicDoesNotKillWorker(t *testing.T) {
	p := New(Config{CorePoolSize: 1, MaximumPoolSize: 1, QueueCapacity: 4})
	defer p.Shutdown(context.Background())

	p.Submit(func() { panic("boom") })

	var done atomic.Bool
	p.Submit(func() { done.Store(true) })

	deadline := time.Now().Add(time.Second)
	for !done.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !done.Load() {
		t.Fatal("worker did not survive a panicking task")
	}
}
