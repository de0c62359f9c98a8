package poolctl

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by connection objects that can be recycled.
type Poolable interface {
	Reset()
}

// ConnectionPool recycles per-connection state objects. Used by the
// EventLoop and Hybrid acceptors to avoid allocating a new connection
// struct per accepted socket.
type ConnectionPool struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// NewConnectionPool builds a ConnectionPool using newFunc to mint objects.
func NewConnectionPool(newFunc func() any) *ConnectionPool {
	cp := &ConnectionPool{}
	cp.pool.New = newFunc
	return cp
}

// Get acquires a pooled connection object.
func (cp *ConnectionPool) Get() any {
	cp.gets.Add(1)
	return cp.pool.Get()
}

// Put resets and returns a connection object to the pool.
func (cp *ConnectionPool) Put(obj any) {
	if poolable, ok := obj.(Poolable); ok {
		poolable.Reset()
	}
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats reports gets/puts/hit-rate for the pool.
func (cp *ConnectionPool) Stats() (gets, puts uint64, hitRate float64) {
	gets, puts = cp.gets.Load(), cp.puts.Load()
	if gets > 0 {
		hitRate = float64(puts) / float64(gets)
	}
	return
}
