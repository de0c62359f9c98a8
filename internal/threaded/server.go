// Package threaded implements the Threaded Pipeline (C2): a
// connection-per-task model where a single acceptor hands each accepted
// socket to poolctl.WorkerPool, and the worker assigned to a connection
// blocks on it end-to-end (spec.md §4.2). Accept failures are paced at a
// fixed backoff rather than spun on, since this pipeline's whole point
// is blocking-per-connection I/O on net.TCPListener.AcceptTCP.
package threaded

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/metrics"
	"github.com/searchktools/compare-server/internal/poolctl"
	"github.com/searchktools/compare-server/internal/protocol"
	"github.com/searchktools/compare-server/internal/servlet"
)

// Server ties a Router, an optional Servlet Container, and a
// poolctl.WorkerPool to a single listening socket.
type Server struct {
	cfg    config.Pipeline
	router *protocol.Router
	box    *servlet.Container
	log    *logging.Logger
	m      *metrics.PipelineMetrics

	pool    *poolctl.WorkerPool
	bufPool *poolctl.BytePool
	ln      *net.TCPListener

	running      atomic.Bool
	totalAccept  atomic.Uint64
	totalFailed  atomic.Uint64
	activeConns  atomic.Int64
}

// New builds a Server bound to cfg, not yet listening.
func New(cfg config.Pipeline, router *protocol.Router, box *servlet.Container, log *logging.Logger, m *metrics.PipelineMetrics) *Server {
	return &Server{
		cfg:    cfg,
		router: router,
		box:    box,
		log:    log,
		m:      m,
		pool: poolctl.New(poolctl.Config{
			CorePoolSize:    cfg.CorePoolSize,
			MaximumPoolSize: cfg.MaxPoolSize,
			QueueCapacity:   cfg.QueueCapacity,
			KeepAliveTime:   cfg.KeepAliveTime,
		}),
		bufPool: poolctl.NewBytePool(),
	}
}

// ListenAndServe binds the listen socket, marks the router started, and
// runs the accept loop until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("threaded: resolve %s: %w", addr, err)
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("threaded: listen %s: %w", addr, err)
	}
	s.ln = ln

	s.router.MarkStarted()
	s.running.Store(true)
	s.log.Infow("threaded pipeline listening", "addr", addr)

	go s.statisticsLoop(ctx)

	return s.acceptLoop(ctx)
}

// acceptLoop is the single accept() thread of spec.md §4.2.1: a short
// accept-timeout lets the running flag be re-checked for shutdown, and
// repeated accept failures are paced at 100ms so a transient resource
// shortage cannot spin the acceptor.
func (s *Server) acceptLoop(ctx context.Context) error {
	defer s.ln.Close()

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.ln.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.ln.AcceptTCP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !s.running.Load() {
				return nil
			}
			s.totalFailed.Add(1)
			s.log.Warnw("accept failed", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		s.totalAccept.Add(1)
		s.configureSocket(conn)

		s.pool.Submit(func() {
			s.activeConns.Add(1)
			defer s.activeConns.Add(-1)
			s.handleConnection(conn)
		})
	}
	return nil
}

func (s *Server) configureSocket(conn *net.TCPConn) {
	if s.cfg.TCPNoDelay {
		conn.SetNoDelay(true)
	}
	if s.cfg.KeepAlive {
		conn.SetKeepAlive(true)
		conn.SetKeepAlivePeriod(30 * time.Second)
	}
	if s.cfg.ReadBuffer > 0 {
		conn.SetReadBuffer(s.cfg.ReadBuffer)
	}
	if s.cfg.WriteBuffer > 0 {
		conn.SetWriteBuffer(s.cfg.WriteBuffer)
	}
}

// statisticsLoop periodically pushes pool stats into the metrics registry
// at cfg.StatisticsInterval, so a Prometheus-shaped in-process gauge
// tracks the pool without every Submit call touching the metrics package.
func (s *Server) statisticsLoop(ctx context.Context) {
	if s.cfg.StatisticsInterval <= 0 || s.m == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.StatisticsInterval)
	defer ticker.Stop()

	var lastCompleted, lastRejected uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.pool.Stats()
			s.m.RecordPool(metrics.PoolSnapshot{
				Core: st.CorePoolSize, Max: st.MaximumPoolSize,
				Current: st.CurrentPoolSize, Active: st.ActiveCount,
				QueueDepth:     st.QueueDepth,
				CompletedDelta: st.CompletedCount - lastCompleted,
				RejectedDelta:  st.RejectedCount - lastRejected,
			})
			lastCompleted, lastRejected = st.CompletedCount, st.RejectedCount
		}
	}
}

// StatusSnapshot implements handlers.StatusProvider.
func (s *Server) StatusSnapshot() map[string]any {
	st := s.pool.Stats()
	return map[string]any{
		"totalAccepted": s.totalAccept.Load(),
		"totalFailed":   s.totalFailed.Load(),
		"activeConns":   s.activeConns.Load(),
		"pool": map[string]any{
			"core": st.CorePoolSize, "max": st.MaximumPoolSize,
			"current": st.CurrentPoolSize, "active": st.ActiveCount,
			"queueDepth": st.QueueDepth, "completed": st.CompletedCount,
			"rejected": st.RejectedCount, "peakActive": st.PeakActive,
		},
	}
}

// Shutdown stops the accept loop and waits up to the configured grace
// period for in-flight connections to drain via the worker pool.
func (s *Server) Shutdown(ctx context.Context) {
	s.running.Store(false)
	if s.ln != nil {
		s.ln.Close()
	}
	s.pool.Shutdown(ctx)
}
