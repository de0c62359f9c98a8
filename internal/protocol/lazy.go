package protocol

// Lazy models a lazily-produced asynchronous result, per spec.md §9
// ("Future-returning handlers ... a lazy asynchronous result (task/promise)
// with then and thenCompose equivalents"). It is deliberately minimal: a
// Lazy either already holds a value (the synchronous fast path used by the
// Threaded and EventLoop pipelines) or defers production to a Run callback
// invoked on whatever executor the caller chooses (the Hybrid pipeline's
// pool hand-off).
type Lazy struct {
	run      func() (*Response, error)
	blocking bool
}

// Now wraps an already-computed result.
func Now(resp *Response, err error) Lazy {
	return Lazy{run: func() (*Response, error) { return resp, err }}
}

// Defer builds a Lazy whose value is produced by fn when Await is called.
func Defer(fn func() (*Response, error)) Lazy {
	return Lazy{run: fn}
}

// DeferBlocking builds a Lazy like Defer, but flags fn as genuinely
// blocking (a sleep, a synchronous network/DB call). Pipelines that may
// never block their own serving thread (EventLoop's reactor, Hybrid's
// CPU pool) check Blocking and hop fn onto a dedicated executor instead
// of calling Await inline.
func DeferBlocking(fn func() (*Response, error)) Lazy {
	return Lazy{run: fn, blocking: true}
}

// Blocking reports whether this Lazy's production may block the calling
// goroutine for a non-trivial duration, per spec.md §4.3/§4.4's
// requirement that no such work run on the reactor thread.
func (l Lazy) Blocking() bool {
	return l.blocking
}

// Await forces the value. Pipelines decide which goroutine/thread calls
// Await; Lazy itself carries no concurrency policy.
func (l Lazy) Await() (*Response, error) {
	if l.run == nil {
		return nil, nil
	}
	return l.run()
}

// Then chains a transformation over a successfully produced response.
func (l Lazy) Then(fn func(*Response) (*Response, error)) Lazy {
	return Defer(func() (*Response, error) {
		resp, err := l.Await()
		if err != nil {
			return nil, err
		}
		return fn(resp)
	})
}

// ThenCompose chains a continuation that itself returns a Lazy, flattening
// the result (the monadic bind / flatMap equivalent).
func (l Lazy) ThenCompose(fn func(*Response) Lazy) Lazy {
	return Defer(func() (*Response, error) {
		resp, err := l.Await()
		if err != nil {
			return nil, err
		}
		return fn(resp).Await()
	})
}
