// Package servlet implements the Mini-Servlet Container (C5): a
// lifecycle-managed handler registry layered over the C1 router, with an
// explicit Unstarted/Running/Destroyed state machine per spec.md §4.5.
package servlet

import (
	"fmt"
	"sync"

	"github.com/searchktools/compare-server/internal/protocol"
)

type state int

const (
	stateUnstarted state = iota
	stateRunning
	stateDestroyed
)

// Lifecycle is the extra capability set a servlet-style handler offers on
// top of protocol.Handler, per spec.md §9.
type Lifecycle interface {
	Init(ctx InitContext) error
	Destroy() error
}

// InitContext is handed to a handler's Init callback: the union of the
// container's global init params and the handler's own, plus the pattern
// it was registered under.
type InitContext struct {
	Params  map[string]string
	Pattern string
}

// entry pairs a registered handler with its optional lifecycle hooks.
type entry struct {
	pattern    string
	handler    protocol.Handler
	lifecycle  Lifecycle
	initParams map[string]string
	compiled   *protocol.Route
}

// Container is an ordered registry of pattern -> lifecycle-managed handler,
// resolved the same way C1's router resolves patterns (exact, then
// parameterised in registration order, then longest-prefix, then
// wildcard), but as a private table so a miss here falls through to the
// caller's router instead of producing a 404 itself.
type Container struct {
	mu           sync.RWMutex
	st           state
	globalParams map[string]string

	exact    map[string]*entry
	params   []*entry
	prefixes []*entry
	wildcard *entry
	order    int
}

// New builds an empty, Unstarted container.
func New(globalParams map[string]string) *Container {
	if globalParams == nil {
		globalParams = map[string]string{}
	}
	return &Container{
		st:           stateUnstarted,
		globalParams: globalParams,
		exact:        make(map[string]*entry),
	}
}

// Register adds a synchronous handler under pattern. Only legal while
// Unstarted.
func (c *Container) Register(pattern string, h protocol.Handler, initParams map[string]string) error {
	return c.register(pattern, h, initParams)
}

// RegisterAsync adds a handler whose Handle already returns a lazy result;
// functionally identical to Register since protocol.Handler is already
// async-shaped, kept as a distinct entry point to mirror spec.md §4.5's
// register/registerAsync pair.
func (c *Container) RegisterAsync(pattern string, h protocol.Handler, initParams map[string]string) error {
	return c.register(pattern, h, initParams)
}

func (c *Container) register(pattern string, h protocol.Handler, initParams map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateUnstarted {
		return fmt.Errorf("servlet: cannot register %q after container has started", pattern)
	}
	if initParams == nil {
		initParams = map[string]string{}
	}

	var lc Lifecycle
	if l, ok := h.(Lifecycle); ok {
		lc = l
	}

	e := &entry{pattern: pattern, handler: h, lifecycle: lc, initParams: initParams}
	e.compiled = protocol.CompileStandalone(pattern, c.order)
	c.order++

	switch e.compiled.Kind() {
	case protocol.KindExact:
		c.exact[pattern] = e
	case protocol.KindParam:
		c.params = append(c.params, e)
	case protocol.KindPrefix:
		c.insertPrefix(e)
	case protocol.KindWildcard:
		c.wildcard = e
	}
	return nil
}

func (c *Container) insertPrefix(e *entry) {
	prefix := e.compiled.Prefix()
	for i, existing := range c.prefixes {
		if len(prefix) > len(existing.compiled.Prefix()) {
			c.prefixes = append(c.prefixes, nil)
			copy(c.prefixes[i+1:], c.prefixes[i:])
			c.prefixes[i] = e
			return
		}
	}
	c.prefixes = append(c.prefixes, e)
}

// Initialize transitions Unstarted -> Running, calling every handler's
// Init with the merged global+handler params. A failing Init aborts
// startup and the container stays Unstarted.
func (c *Container) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateUnstarted {
		return fmt.Errorf("servlet: Initialize called outside Unstarted state")
	}

	all := c.allEntries()
	for _, e := range all {
		if e.lifecycle == nil {
			continue
		}
		merged := make(map[string]string, len(c.globalParams)+len(e.initParams))
		for k, v := range c.globalParams {
			merged[k] = v
		}
		for k, v := range e.initParams {
			merged[k] = v
		}
		merged["servlet.pattern"] = e.pattern

		if err := e.lifecycle.Init(InitContext{Params: merged, Pattern: e.pattern}); err != nil {
			return fmt.Errorf("servlet: init %q: %w", e.pattern, err)
		}
	}

	c.st = stateRunning
	return nil
}

func (c *Container) allEntries() []*entry {
	var all []*entry
	for _, e := range c.exact {
		all = append(all, e)
	}
	all = append(all, c.params...)
	all = append(all, c.prefixes...)
	if c.wildcard != nil {
		all = append(all, c.wildcard)
	}
	return all
}

// Handle resolves req against the container's own table. It returns a
// zero Lazy and false when nothing matches, signalling the caller to fall back
// to its router, per spec.md §4.5.
func (c *Container) Handle(req *protocol.Request) (protocol.Lazy, bool) {
	c.mu.RLock()
	st := c.st
	c.mu.RUnlock()
	if st != stateRunning {
		return protocol.Lazy{}, false
	}

	e, params := c.find(req.Path)
	if e == nil {
		return protocol.Lazy{}, false
	}
	for k, v := range params {
		req.SetAttr(k, v)
	}
	return e.handler.Handle(req), true
}

func (c *Container) find(path string) (*entry, map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.exact[path]; ok {
		return e, nil
	}
	for _, e := range c.params {
		if params, ok := e.compiled.MatchParam(path); ok {
			return e, params
		}
	}
	for _, e := range c.prefixes {
		if len(path) >= len(e.compiled.Prefix()) && path[:len(e.compiled.Prefix())] == e.compiled.Prefix() {
			return e, nil
		}
	}
	if c.wildcard != nil {
		return c.wildcard, nil
	}
	return nil, nil
}

// Destroy transitions to Destroyed, tearing down every initialised
// handler and swallowing individual errors so one bad handler cannot
// block cleanup. Idempotent.
func (c *Container) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st == stateDestroyed {
		return nil
	}

	var errs []error
	for _, e := range c.allEntries() {
		if e.lifecycle == nil {
			continue
		}
		if err := e.lifecycle.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("servlet: destroy %q: %w", e.pattern, err))
		}
	}

	c.st = stateDestroyed
	if len(errs) > 0 {
		return fmt.Errorf("servlet: %d handler(s) failed to destroy: %v", len(errs), errs)
	}
	return nil
}
