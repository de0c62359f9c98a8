// Package poolctl implements the Tomcat-style adaptive worker pool that
// backs the Threaded pipeline's connection handling (spec.md §4.2.2), plus
// the fine-grained object pools (bytes, connections, smart-reset objects)
// used by the pipelines. The worker pool tracks pool size under a mutex
// and exposes Submit/Stats/Shutdown; there is no background reaper, and
// since Submit spawns every worker as a core worker, none exits on idle.
// While fewer than CorePoolSize tasks are active, Submit hands work to the
// standing workers; once the core is busy it favors spinning up a new
// worker over queuing, only queuing once the pool is at MaximumPoolSize
// (spec.md §9, "Tomcat-style queue trick").
package poolctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work submitted to the pool.
type Task func()

// Stats is a point-in-time snapshot of pool state, mirroring the Worker
// Pool observable state in spec.md §3.
type Stats struct {
	CorePoolSize    int
	MaximumPoolSize int
	CurrentPoolSize int
	ActiveCount     int
	QueueDepth      int
	CompletedCount  uint64
	RejectedCount   uint64
	PeakActive      int
}

// Config configures a WorkerPool.
type Config struct {
	CorePoolSize    int
	MaximumPoolSize int
	QueueCapacity   int
	KeepAliveTime   time.Duration
}

func (c Config) withDefaults() Config {
	if c.CorePoolSize <= 0 {
		c.CorePoolSize = 8
	}
	if c.MaximumPoolSize < c.CorePoolSize {
		c.MaximumPoolSize = c.CorePoolSize
	}
	if c.KeepAliveTime <= 0 {
		c.KeepAliveTime = 60 * time.Second
	}
	return c
}

// WorkerPool is a bounded, dynamically sized pool of goroutine workers
// implementing the core/max/queue/caller-runs algorithm from spec.md
// §4.2.2. Invariant: 0 < core <= current <= max at all times.
type WorkerPool struct {
	cfg Config

	mu      sync.Mutex // guards core/current bookkeeping below
	core    int
	current int
	active  int
	peak    int

	queue  chan Task
	closed atomic.Bool
	wg     sync.WaitGroup

	completed atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a WorkerPool and starts its core workers.
func New(cfg Config) *WorkerPool {
	cfg = cfg.withDefaults()
	p := &WorkerPool{
		cfg:   cfg,
		core:  cfg.CorePoolSize,
		queue: make(chan Task, cfg.QueueCapacity),
	}

	for i := 0; i < p.core; i++ {
		p.spawnWorker(true)
	}

	return p
}

// Submit implements the scheduling decision of spec.md §4.2.2:
//  1. active < core             -> hand to the standing pool (queue slot).
//  2. current < max             -> raise core, spawn a thread immediately.
//  3. otherwise                 -> try the bounded queue.
//  4. queue full too            -> caller-runs: execute inline, count rejected.
func (p *WorkerPool) Submit(task Task) {
	if p.closed.Load() {
		p.runCallerRuns(task)
		return
	}

	p.mu.Lock()
	active, current, core, max := p.active, p.current, p.core, p.cfg.MaximumPoolSize

	switch {
	case active < core:
		p.mu.Unlock()
		p.dispatch(task)
		return

	case current < max:
		newCore := current + 1
		if newCore > max {
			newCore = max
		}
		p.core = newCore
		p.mu.Unlock()
		// The newly created thread is, by construction, within the
		// raised core count: core drifts upward and is never shrunk
		// back (spec.md §9 Open Question), so this worker never
		// self-terminates on idle either.
		p.spawnWorker(true)
		p.dispatch(task)
		return

	default:
		p.mu.Unlock()
		select {
		case p.queue <- task:
			return
		default:
			p.runCallerRuns(task)
		}
	}
}

// dispatch hands a task to a worker via the shared queue. The
// active < core read that led here is advisory, not a reservation: active
// is only incremented once a worker actually receives and starts running
// a task, so a concurrent Submit can observe room that's already spoken
// for. Rather than block the caller on that stale belief (which can stall
// indefinitely and starves the caller-runs guarantee under saturation —
// see TestWorkerPool_CallerRunsUnderSaturation), a non-blocking send that
// fails falls straight to caller-runs, same as the queue-full path.
func (p *WorkerPool) dispatch(task Task) {
	select {
	case p.queue <- task:
	default:
		p.runCallerRuns(task)
	}
}

func (p *WorkerPool) runCallerRuns(task Task) {
	p.rejected.Add(1)
	task()
	p.completed.Add(1)
}

// spawnWorker starts one worker goroutine. core workers never self-
// terminate on idle; non-core workers exit after KeepAliveTime without a
// task, per spec.md §4.2.2 ("Keep-alive").
func (p *WorkerPool) spawnWorker(isCore bool) {
	p.mu.Lock()
	p.current++
	p.mu.Unlock()

	p.wg.Add(1)
	go p.workerLoop(isCore)
}

func (p *WorkerPool) workerLoop(isCore bool) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.current--
		p.mu.Unlock()
	}()

	idle := time.NewTimer(p.cfg.KeepAliveTime)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.runTask(task)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.cfg.KeepAliveTime)

		case <-idle.C:
			if !isCore {
				return
			}
			idle.Reset(p.cfg.KeepAliveTime)
		}
	}
}

func (p *WorkerPool) runTask(task Task) {
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.mu.Unlock()

	defer func() {
		recover() // a handler panic must not kill the worker goroutine
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.completed.Add(1)
	}()

	task()
}

// Stats returns a snapshot of the pool's observable state.
func (p *WorkerPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		CorePoolSize:    p.core,
		MaximumPoolSize: p.cfg.MaximumPoolSize,
		CurrentPoolSize: p.current,
		ActiveCount:     p.active,
		QueueDepth:      len(p.queue),
		CompletedCount:  p.completed.Load(),
		RejectedCount:   p.rejected.Load(),
		PeakActive:      p.peak,
	}
}

// Shutdown stops accepting new submissions and waits for in-flight/queued
// work, returning once all workers have exited or ctx is done, whichever
// comes first. The grace period is ctx's deadline; there is no built-in
// default, and workers still running when ctx ends are not interrupted.
func (p *WorkerPool) Shutdown(ctx context.Context) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
