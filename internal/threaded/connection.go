package threaded

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/searchktools/compare-server/internal/poolctl"
	"github.com/searchktools/compare-server/internal/protocol"
)

// requestPool recycles protocol.Request objects across every connection
// this pipeline serves, via poolctl.SmartPool: one shared, warmed-up pool
// rather than one per connection, since requests are short-lived and
// uniformly shaped.
var requestPool = poolctl.NewSmartPool(poolctl.ObjectPoolConfig{
	New:   func() any { return protocol.NewRequest() },
	Reset: func(obj any) { obj.(*protocol.Request).Reset() },
})

// handleConnection runs the blocking per-connection loop of spec.md
// §4.2.3: parse, dispatch (servlet container first, then the router),
// write, and either loop on keep-alive or close. maxRequestsPerConnection
// and socketTimeout bound the loop; a socket-timeout read ends it
// silently, any other I/O error ends it and is logged at debug.
func (s *Server) handleConnection(conn *net.TCPConn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, pick(s.cfg.ReadBuffer, 8192))
	parseOpts := protocol.DefaultParseOptions()

	served := 0
	for served < s.cfg.MaxRequestsPerConnection {
		conn.SetReadDeadline(time.Now().Add(s.cfg.SocketTimeout))

		if _, err := reader.Peek(1); err != nil {
			if isTimeout(err) || err == io.EOF {
				return
			}
			s.log.Debugw("connection read error", "error", err)
			return
		}

		req, badReq, ok := s.readRequest(reader, parseOpts)
		if !ok {
			if badReq {
				resp := protocol.BadRequest("malformed request")
				resp.Finalize(true)
				conn.SetWriteDeadline(time.Now().Add(s.cfg.SocketTimeout))
				conn.Write(resp.WriteTo(make([]byte, 0, 128), false))
			}
			return
		}
		served++

		conn.SetWriteDeadline(time.Now().Add(s.cfg.SocketTimeout))
		resp := s.dispatch(req)

		forceClose := !req.KeepAliveRequested() || served >= s.cfg.MaxRequestsPerConnection
		resp.Finalize(forceClose)

		buf := resp.WriteTo(make([]byte, 0, 256+len(resp.Body)), req.Method == "HEAD")
		shouldClose := resp.ShouldClose()
		requestPool.Put(req)

		if _, err := conn.Write(buf); err != nil {
			s.log.Debugw("connection write error", "error", err)
			return
		}

		if s.m != nil {
			s.m.RecordRequest(statusClass(resp.Status), 0)
		}

		if shouldClose {
			conn.CloseWrite()
			return
		}
	}
}

// readRequest accumulates bytes from reader until ParseRequestInto yields
// a full message, a malformed-request error (badReq=true), or a terminal
// I/O error (badReq=false, ok=false). The returned Request comes from
// requestPool and must be returned there by the caller once the response
// has been written.
func (s *Server) readRequest(reader *bufio.Reader, opts protocol.ParseOptions) (req *protocol.Request, badReq bool, ok bool) {
	pooled := requestPool.Get().(*protocol.Request)
	var buf []byte
	tmp := s.bufPool.Get(4096)
	defer s.bufPool.Put(tmp)

	for {
		parsed, err := protocol.ParseRequestInto(pooled, buf, opts)
		if err != nil {
			requestPool.Put(pooled)
			return nil, true, false
		}
		if parsed != nil {
			return parsed, false, true
		}

		n, err := reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			requestPool.Put(pooled)
			return nil, false, false
		}
	}
}

// dispatch asks the servlet container first, falling back to the router,
// per spec.md §4.2.3 step 3.
func (s *Server) dispatch(req *protocol.Request) *protocol.Response {
	if s.box != nil {
		if lazy, handled := s.box.Handle(req); handled {
			resp, err := lazy.Await()
			if err != nil {
				return protocol.InternalServerError("internal server error")
			}
			if resp != nil {
				return resp
			}
		}
	}

	resp, _ := s.router.Route(req).Await()
	return resp
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func pick(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
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

