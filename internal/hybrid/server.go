// Package hybrid implements the Hybrid Pipeline (C3): a non-blocking
// acceptor/selector feeding a CPU-oriented worker pool, with an explicit
// switching primitive (Switcher) for handlers that need blocking I/O
// (spec.md §4.3). The non-blocking accept/read loop hands a complete
// request to poolctl.WorkerPool instead of processing it inline on the
// reactor thread.
package hybrid

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/metrics"
	"github.com/searchktools/compare-server/internal/poolctl"
	"github.com/searchktools/compare-server/internal/pollnet"
	"github.com/searchktools/compare-server/internal/protocol"
	"github.com/searchktools/compare-server/internal/servlet"
)

// Server is the Hybrid pipeline: one reader/selector thread, a CPU pool,
// an I/O pool, and a Switcher tying the two together.
type Server struct {
	cfg    config.Pipeline
	router *protocol.Router
	box    *servlet.Container
	log    *logging.Logger
	m      *metrics.PipelineMetrics

	cpuPool  *poolctl.WorkerPool
	ioPool   *poolctl.WorkerPool
	Switcher *Switcher
	bufPool  *poolctl.BytePool
	connPool *poolctl.ConnectionPool

	ln *net.TCPListener
	// lnFile keeps the *os.File backing the duplicated listener fd alive
	// for the server's lifetime: letting it be garbage-collected would
	// run its finalizer and close the fd out from under the poller.
	lnFile *os.File
	poller pollnet.Poller

	connsMu sync.RWMutex
	conns   map[int]*conn

	running     atomic.Bool
	totalAccept atomic.Uint64
	totalFailed atomic.Uint64
}

// New builds a Hybrid Server bound to cfg, not yet listening.
func New(cfg config.Pipeline, router *protocol.Router, box *servlet.Container, log *logging.Logger, m *metrics.PipelineMetrics) *Server {
	ioPool := poolctl.New(poolctl.Config{
		CorePoolSize:    max(2, cfg.CorePoolSize/2),
		MaximumPoolSize: max(4, cfg.MaxPoolSize/2),
		QueueCapacity:   cfg.QueueCapacity,
		KeepAliveTime:   cfg.KeepAliveTime,
	})
	s := &Server{
		cfg:    cfg,
		router: router,
		box:    box,
		log:    log,
		m:      m,
		cpuPool: poolctl.New(poolctl.Config{
			CorePoolSize:    cfg.CorePoolSize,
			MaximumPoolSize: cfg.MaxPoolSize,
			QueueCapacity:   cfg.QueueCapacity,
			KeepAliveTime:   cfg.KeepAliveTime,
		}),
		ioPool:  ioPool,
		conns:   make(map[int]*conn, 1024),
		bufPool: poolctl.NewBytePool(),
		connPool: poolctl.NewConnectionPool(func() any {
			return newConn(-1, pick(cfg.ReadBuffer, 8192))
		}),
	}
	s.Switcher = NewSwitcher(ioPool)
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ListenAndServe binds a non-blocking listen socket, registers it with
// the platform poller, and runs the reactor loop until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("hybrid: resolve %s: %w", addr, err)
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("hybrid: listen %s: %w", addr, err)
	}
	s.ln = ln

	lnFile, err := ln.File()
	if err != nil {
		return fmt.Errorf("hybrid: dup listener fd: %w", err)
	}
	s.lnFile = lnFile
	lfd := int(lnFile.Fd())
	if err := syscall.SetNonblock(lfd, true); err != nil {
		return fmt.Errorf("hybrid: set nonblock: %w", err)
	}

	p, err := pollnet.New()
	if err != nil {
		return fmt.Errorf("hybrid: poller: %w", err)
	}
	s.poller = p
	if err := s.poller.Add(lfd); err != nil {
		return fmt.Errorf("hybrid: register listener: %w", err)
	}

	s.router.MarkStarted()
	s.running.Store(true)
	s.log.Infow("hybrid pipeline listening", "addr", addr)

	go s.statisticsLoop(ctx)

	return s.reactorLoop(ctx, lfd)
}

func (s *Server) reactorLoop(ctx context.Context, lfd int) error {
	defer s.ln.Close()
	defer s.poller.Close()

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds, err := s.poller.Wait(100)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			if fd == lfd {
				s.acceptAll(lfd)
			} else {
				s.handleReadable(fd)
			}
		}
	}
	return nil
}

// acceptAll drains every pending connection off the listen backlog in
// one pass.
func (s *Server) acceptAll(lfd int) {
	for {
		nfd, _, err := syscall.Accept(lfd)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return
			}
			s.totalFailed.Add(1)
			return
		}

		syscall.SetNonblock(nfd, true)
		if s.cfg.TCPNoDelay {
			syscall.SetsockoptInt(nfd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
		}
		if s.cfg.KeepAlive {
			syscall.SetsockoptInt(nfd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}

		if err := s.poller.Add(nfd); err != nil {
			syscall.Close(nfd)
			continue
		}

		c := s.connPool.Get().(*conn)
		c.fd = nfd
		c.lastActive = time.Now()
		s.connsMu.Lock()
		s.conns[nfd] = c
		s.connsMu.Unlock()
		s.totalAccept.Add(1)
	}
}

func pick(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Server) handleReadable(fd int) {
	s.connsMu.RLock()
	c, ok := s.conns[fd]
	s.connsMu.RUnlock()
	if !ok || !c.busy.CompareAndSwap(false, true) {
		return
	}

	tmp := s.bufPool.Get(pick(s.cfg.ReadBuffer, 8192))
	n, err := syscall.Read(fd, tmp)
	if err != nil {
		s.bufPool.Put(tmp)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			c.busy.Store(false)
			return
		}
		s.closeConn(fd)
		return
	}
	if n == 0 {
		s.bufPool.Put(tmp)
		s.closeConn(fd)
		return
	}
	c.lastActive = time.Now()
	c.appendRead(tmp[:n])
	s.bufPool.Put(tmp)

	req, err := protocol.ParseRequest(c.readBuf, protocol.DefaultParseOptions())
	if err != nil {
		s.writeAndMaybeClose(c, protocol.BadRequest("malformed request"), true)
		s.closeConn(fd)
		return
	}
	if req == nil {
		// incomplete request: stay registered for more bytes.
		c.busy.Store(false)
		return
	}
	c.resetBuf()

	// Remove from the poller while the request is in flight so that
	// requests on this connection are serviced strictly in arrival
	// order (spec.md §4.3), then re-add once the response is written.
	s.poller.Remove(fd)

	s.cpuPool.Submit(func() {
		resp := s.dispatch(req)
		closeAfter := !req.KeepAliveRequested()
		s.writeAndMaybeClose(c, resp, closeAfter)

		if closeAfter || resp.ShouldClose() {
			s.closeConn(fd)
			return
		}
		c.busy.Store(false)
		if err := s.poller.Add(fd); err != nil {
			s.closeConn(fd)
		}
	})
}

func (s *Server) dispatch(req *protocol.Request) *protocol.Response {
	if s.box != nil {
		if lazy, handled := s.box.Handle(req); handled {
			resp, err := s.awaitLazy(lazy)
			if err != nil {
				return protocol.InternalServerError("internal server error")
			}
			if resp != nil {
				return resp
			}
		}
	}
	resp, _ := s.awaitLazy(s.router.Route(req))
	return resp
}

// awaitLazy forces lazy on the calling goroutine, unless lazy is flagged
// Blocking (e.g. handlers.IOSimulation's sleep), in which case it hops to
// the I/O pool via Switcher instead of blocking the CPU pool worker that
// called dispatch — the hand-off spec.md §4.3 requires.
func (s *Server) awaitLazy(lazy protocol.Lazy) (*protocol.Response, error) {
	if lazy.Blocking() {
		return s.Switcher.SwitchResponse(lazy.Await).Await()
	}
	return lazy.Await()
}

func (s *Server) writeAndMaybeClose(c *conn, resp *protocol.Response, forceClose bool) {
	resp.Finalize(forceClose)
	buf := resp.WriteTo(make([]byte, 0, 256+len(resp.Body)), false)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for len(buf) > 0 {
		n, err := syscall.Write(c.fd, buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			return
		}
		buf = buf[n:]
	}

	if s.m != nil {
		s.m.RecordRequest(statusClass(resp.Status), 0)
	}
}

func statusClass(status int) string {
	switch {
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

func (s *Server) closeConn(fd int) {
	s.connsMu.Lock()
	c, ok := s.conns[fd]
	delete(s.conns, fd)
	s.connsMu.Unlock()
	if ok {
		s.poller.Remove(fd)
		syscall.Close(fd)
		s.connPool.Put(c)
	}
}

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
			st := s.cpuPool.Stats()
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
	s.connsMu.RLock()
	activeConns := len(s.conns)
	s.connsMu.RUnlock()

	cpu := s.cpuPool.Stats()
	io := s.ioPool.Stats()
	return map[string]any{
		"totalAccepted": s.totalAccept.Load(),
		"totalFailed":   s.totalFailed.Load(),
		"activeConns":   activeConns,
		"cpuPool": map[string]any{
			"core": cpu.CorePoolSize, "max": cpu.MaximumPoolSize,
			"current": cpu.CurrentPoolSize, "active": cpu.ActiveCount,
			"queueDepth": cpu.QueueDepth, "completed": cpu.CompletedCount,
			"rejected": cpu.RejectedCount,
		},
		"ioPool": map[string]any{
			"core": io.CorePoolSize, "max": io.MaximumPoolSize,
			"current": io.CurrentPoolSize, "active": io.ActiveCount,
		},
	}
}

// Shutdown stops the reactor loop and drains both pools within ctx's
// deadline.
func (s *Server) Shutdown(ctx context.Context) {
	s.running.Store(false)
	if s.ln != nil {
		s.ln.Close()
	}
	s.cpuPool.Shutdown(ctx)
	s.ioPool.Shutdown(ctx)
}
