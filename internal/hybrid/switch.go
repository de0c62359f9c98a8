package hybrid

import (
	"github.com/searchktools/compare-server/internal/poolctl"
	"github.com/searchktools/compare-server/internal/protocol"
)

// Switcher is the explicit hand-off primitive named in spec.md §4.3: a
// handler running on the CPU pool calls SwitchAndExecute to run a
// blocking body on the I/O pool, then resumes. Per the Open Question in
// spec.md §9, switchAndExecute and executeDbOperation are treated as one
// primitive: both names run on the same I/O pool, and neither takes a
// pool hint.
type Switcher struct {
	ioPool *poolctl.WorkerPool
}

// NewSwitcher binds a Switcher to the pipeline's I/O-oriented pool.
func NewSwitcher(ioPool *poolctl.WorkerPool) *Switcher {
	return &Switcher{ioPool: ioPool}
}

type switchResult struct {
	val any
	err error
}

// SwitchAndExecute runs fn on the I/O pool and blocks the caller until it
// completes, returning fn's result. The caller is expected to be running
// on the CPU pool; this is the pipeline's only suspension point besides
// the acceptor's select().
func (s *Switcher) SwitchAndExecute(fn func() (any, error)) (any, error) {
	done := make(chan switchResult, 1)
	s.ioPool.Submit(func() {
		v, err := fn()
		done <- switchResult{val: v, err: err}
	})
	r := <-done
	return r.val, r.err
}

// ExecuteDBOperation is the dedicated alias for blocking DB-style calls
// named in spec.md §4.3; it is the same primitive as SwitchAndExecute,
// kept as a distinct name so handlers can document intent at call sites.
func (s *Switcher) ExecuteDBOperation(fn func() (any, error)) (any, error) {
	return s.SwitchAndExecute(fn)
}

// SwitchResponse is the handler-facing convenience: it hops fn to the I/O
// pool and wraps the result as a Lazy, for handlers that want to return
// protocol.Lazy directly rather than unwrap the any-typed primitive.
func (s *Switcher) SwitchResponse(fn func() (*protocol.Response, error)) protocol.Lazy {
	return protocol.Defer(func() (*protocol.Response, error) {
		v, err := s.SwitchAndExecute(func() (any, error) {
			return fn()
		})
		if err != nil {
			return nil, err
		}
		resp, _ := v.(*protocol.Response)
		return resp, nil
	})
}
