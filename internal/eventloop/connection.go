package eventloop

import "time"

// conn holds one connection's state. Per spec.md §5 ("All per-connection
// state is loop-thread-local"), every field here is touched only by the
// reactor goroutine; async work never mutates a conn directly, it posts a
// closure onto the task queue that the loop runs on its own thread.
type conn struct {
	fd         int
	readBuf    []byte
	writeBuf   []byte
	lastActive time.Time

	readDisabled bool // backpressure: reads paused until writeBuf drains
	closeAfter   bool // response asked for Connection: close
}

func newConn(fd int, readBufCap int) *conn {
	return &conn{fd: fd, readBuf: make([]byte, 0, readBufCap), lastActive: time.Now()}
}

// Reset implements poolctl.Poolable so a conn can be recycled through a
// poolctl.ConnectionPool between sockets instead of being reallocated.
func (c *conn) Reset() {
	c.fd = -1
	c.readBuf = c.readBuf[:0]
	c.writeBuf = c.writeBuf[:0]
	c.lastActive = time.Time{}
	c.readDisabled = false
	c.closeAfter = false
}
