// Package eventloop implements the EventLoop Pipeline (C4): a single
// reactor thread owning the selector and a task queue, with an
// executeAsync escape hatch for genuinely blocking work (spec.md §4.4).
// The single-threaded accept/read loop runs a task queue, per-connection
// write buffering, and high/low-water backpressure, all driven from the
// one reactor goroutine rather than dispatched inline.
package eventloop

import (
	"context"
	"fmt"
	"net"
	"os"
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

const (
	highWaterMark = 1 << 20 // 1 MiB of unflushed output pauses reads
	lowWaterMark  = 64 << 10
)

// Server is the EventLoop pipeline: one reactor goroutine multiplexing
// every connection, plus a small background executor for handlers that
// call ExecuteAsync.
type Server struct {
	cfg    config.Pipeline
	router *protocol.Router
	box    *servlet.Container
	log    *logging.Logger
	m      *metrics.PipelineMetrics

	ln     *net.TCPListener
	lnFile *os.File
	poller pollnet.Poller

	conns map[int]*conn // loop-thread-local, no mutex needed

	// taskQueue carries follow-up work onto the loop thread: results from
	// the async executor, and any handler-scheduled executeAsync
	// continuation (spec.md §4.4 step 3).
	taskQueue chan func()
	asyncPool *poolctl.WorkerPool
	bufPool   *poolctl.BytePool
	connPool  *poolctl.ConnectionPool

	running     atomic.Bool
	totalAccept atomic.Uint64
	totalFailed atomic.Uint64
}

// New builds an EventLoop Server bound to cfg, not yet listening.
func New(cfg config.Pipeline, router *protocol.Router, box *servlet.Container, log *logging.Logger, m *metrics.PipelineMetrics) *Server {
	return &Server{
		cfg:       cfg,
		router:    router,
		box:       box,
		log:       log,
		m:         m,
		conns:     make(map[int]*conn, 1024),
		taskQueue: make(chan func(), 4096),
		asyncPool: poolctl.New(poolctl.Config{
			CorePoolSize:    max(2, cfg.CorePoolSize/4),
			MaximumPoolSize: max(4, cfg.MaxPoolSize/4),
			QueueCapacity:   cfg.QueueCapacity,
			KeepAliveTime:   cfg.KeepAliveTime,
		}),
		bufPool: poolctl.NewBytePool(),
		connPool: poolctl.NewConnectionPool(func() any {
			return newConn(-1, pick(cfg.ReadBuffer, 8192))
		}),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ExecuteAsync is the escape hatch of spec.md §4.4: fn runs on a
// background worker, and its response is written back on the loop thread
// once fn returns, without ever blocking the loop itself.
func (s *Server) ExecuteAsync(fd int, fn func() (*protocol.Response, error), closeAfter bool) {
	s.asyncPool.Submit(func() {
		resp, err := fn()
		s.taskQueue <- func() {
			s.finishRequest(fd, resp, err, closeAfter)
		}
	})
}

// ListenAndServe binds a non-blocking listen socket and runs the reactor
// loop until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventloop: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("eventloop: listen %s: %w", addr, err)
	}
	s.ln = ln

	lnFile, err := ln.File()
	if err != nil {
		return fmt.Errorf("eventloop: dup listener fd: %w", err)
	}
	s.lnFile = lnFile
	lfd := int(lnFile.Fd())
	if err := syscall.SetNonblock(lfd, true); err != nil {
		return fmt.Errorf("eventloop: set nonblock: %w", err)
	}

	p, err := pollnet.New()
	if err != nil {
		return fmt.Errorf("eventloop: poller: %w", err)
	}
	s.poller = p
	if err := s.poller.Add(lfd); err != nil {
		return fmt.Errorf("eventloop: register listener: %w", err)
	}

	s.router.MarkStarted()
	s.running.Store(true)
	s.log.Infow("eventloop pipeline listening", "addr", addr)

	return s.loop(ctx, lfd)
}

// loop is the single reactor thread of spec.md §4.4: select, handle
// ready keys, drain the task queue.
func (s *Server) loop(ctx context.Context, lfd int) error {
	defer s.ln.Close()
	defer s.poller.Close()

	statsTick := time.NewTicker(pickDuration(s.cfg.StatisticsInterval, 30*time.Second))
	defer statsTick.Stop()

	var lastCompleted, lastRejected uint64

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds, err := s.poller.Wait(50)
		if err == nil {
			for _, fd := range fds {
				if fd == lfd {
					s.acceptAll(lfd)
				} else {
					s.handleReadable(fd)
				}
			}
		}

		s.drainTaskQueue()
		s.flushBackpressured()

		select {
		case <-statsTick.C:
			if s.m != nil {
				st := s.asyncPool.Stats()
				s.m.RecordPool(metrics.PoolSnapshot{
					Core: st.CorePoolSize, Max: st.MaximumPoolSize,
					Current: st.CurrentPoolSize, Active: st.ActiveCount,
					QueueDepth:     st.QueueDepth,
					CompletedDelta: st.CompletedCount - lastCompleted,
					RejectedDelta:  st.RejectedCount - lastRejected,
				})
				lastCompleted, lastRejected = st.CompletedCount, st.RejectedCount
			}
		default:
		}
	}
	return nil
}

func pickDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// drainTaskQueue runs every follow-up currently queued, without blocking
// if the queue is empty.
func (s *Server) drainTaskQueue() {
	for {
		select {
		case fn := <-s.taskQueue:
			fn()
		default:
			return
		}
	}
}

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
		s.conns[nfd] = c
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
	c, ok := s.conns[fd]
	if !ok {
		return
	}

	tmp := s.bufPool.Get(pick(s.cfg.ReadBuffer, 8192))
	n, err := syscall.Read(fd, tmp)
	if err != nil {
		s.bufPool.Put(tmp)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
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
	c.readBuf = append(c.readBuf, tmp[:n]...)
	s.bufPool.Put(tmp)

	req, err := protocol.ParseRequest(c.readBuf, protocol.DefaultParseOptions())
	if err != nil {
		s.queueWrite(c, badRequestBytes())
		s.closeConn(fd)
		return
	}
	if req == nil {
		return // incomplete; wait for more bytes
	}
	c.readBuf = c.readBuf[:0]
	closeAfter := !req.KeepAliveRequested()

	// A Lazy flagged Blocking (e.g. handlers.IOSimulation's sleep) must
	// never run inline here — that would stall every other connection
	// on this goroutine. Hop it onto the async pool; finishRequest runs
	// once it completes, back on the loop thread via taskQueue.
	lazy := s.dispatch(req)
	if lazy.Blocking() {
		s.ExecuteAsync(fd, lazy.Await, closeAfter)
		return
	}

	resp, err := lazy.Await()
	s.finishRequest(fd, resp, err, closeAfter)
}

func badRequestBytes() []byte {
	resp := protocol.BadRequest("malformed request")
	resp.Finalize(true)
	return resp.WriteTo(make([]byte, 0, 128), false)
}

func (s *Server) dispatch(req *protocol.Request) protocol.Lazy {
	if s.box != nil {
		if lazy, handled := s.box.Handle(req); handled {
			return lazy
		}
	}
	return s.router.Route(req)
}

// finishRequest runs on the loop thread: it finalises and queues resp's
// bytes for writing, regardless of whether resp was produced inline or
// via ExecuteAsync.
func (s *Server) finishRequest(fd int, resp *protocol.Response, err error, closeAfter bool) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}

	if err != nil {
		resp = protocol.InternalServerError("internal server error")
	}
	resp.Finalize(closeAfter)
	if resp.ShouldClose() {
		c.closeAfter = true
	}

	buf := resp.WriteTo(make([]byte, 0, 256+len(resp.Body)), false)
	s.queueWrite(c, buf)

	if s.m != nil {
		s.m.RecordRequest(statusClass(resp.Status), 0)
	}
}

// queueWrite appends buf to the connection's pending output and attempts
// an immediate non-blocking flush; any remainder stays buffered for the
// loop's per-tick flushBackpressured pass.
func (s *Server) queueWrite(c *conn, buf []byte) {
	c.writeBuf = append(c.writeBuf, buf...)
	s.tryFlush(c)

	if len(c.writeBuf) > highWaterMark && !c.readDisabled {
		c.readDisabled = true
		s.poller.Remove(c.fd)
	}
}

func (s *Server) tryFlush(c *conn) {
	for len(c.writeBuf) > 0 {
		n, err := syscall.Write(c.fd, c.writeBuf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				break
			}
			s.closeConn(c.fd)
			return
		}
		c.writeBuf = c.writeBuf[n:]
	}

	if c.readDisabled && len(c.writeBuf) < lowWaterMark {
		c.readDisabled = false
		s.poller.Add(c.fd)
	}

	if len(c.writeBuf) == 0 && c.closeAfter {
		s.closeConn(c.fd)
	}
}

// flushBackpressured retries any connection with unflushed output, once
// per loop tick, so a slow client eventually drains without the loop
// blocking on it.
func (s *Server) flushBackpressured() {
	for _, c := range s.conns {
		if len(c.writeBuf) > 0 {
			s.tryFlush(c)
		}
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
	c, ok := s.conns[fd]
	if !ok {
		return
	}
	delete(s.conns, fd)
	s.poller.Remove(fd)
	syscall.Close(fd)
	s.connPool.Put(c)
}

// StatusSnapshot implements handlers.StatusProvider.
func (s *Server) StatusSnapshot() map[string]any {
	st := s.asyncPool.Stats()
	return map[string]any{
		"totalAccepted": s.totalAccept.Load(),
		"totalFailed":   s.totalFailed.Load(),
		"activeConns":   len(s.conns),
		"asyncPool": map[string]any{
			"core": st.CorePoolSize, "max": st.MaximumPoolSize,
			"current": st.CurrentPoolSize, "active": st.ActiveCount,
		},
	}
}

// Shutdown stops the reactor and drains the async pool within ctx's
// deadline.
func (s *Server) Shutdown(ctx context.Context) {
	s.running.Store(false)
	if s.ln != nil {
		s.ln.Close()
	}
	s.asyncPool.Shutdown(ctx)
}
