// Package protocol implements the shared request/response model and the
// pattern router used by all three server pipelines.
package protocol

import (
	"errors"
	"strings"
)

// ErrBadRequest is returned (wrapped) by ParseRequest and ParseRequestInto
// when the input cannot be turned into a well-formed Request.
var ErrBadRequest = errors.New("bad request")

// MaxHeaderLine bounds the size of a single header line before the request
// is rejected as malformed.
const MaxHeaderLine = 8192

// Request is an immutable (from the handler's perspective) parsed HTTP/1.1
// message. The attribute map is the sole mutable surface, used to thread
// routing-derived values such as path parameters through middleware.
type Request struct {
	Method  string
	Path    string
	Proto   string
	Query   map[string]string
	Headers *HeaderMap
	Body    []byte

	attrs map[string]any
}

// NewRequest builds a Request with empty maps ready for use.
func NewRequest() *Request {
	return &Request{
		Headers: NewHeaderMap(),
		attrs:   make(map[string]any),
	}
}

// Reset clears a Request for reuse from a pool.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.Body = r.Body[:0]
	if r.Query != nil {
		for k := range r.Query {
			delete(r.Query, k)
		}
	}
	r.Headers.Reset()
	for k := range r.attrs {
		delete(r.attrs, k)
	}
}

// SetAttr stores a routing-derived value (e.g. "path.id") visible to
// middleware and handlers downstream of the router.
func (r *Request) SetAttr(key string, value any) {
	if r.attrs == nil {
		r.attrs = make(map[string]any)
	}
	r.attrs[key] = value
}

// Attr retrieves a previously stored attribute.
func (r *Request) Attr(key string) (any, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// PathParam is a convenience accessor for "path.<name>" attributes set by
// the router while matching a parameterised route.
func (r *Request) PathParam(name string) string {
	v, ok := r.attrs["path."+name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Header looks up a header case-insensitively.
func (r *Request) Header(key string) string {
	return r.Headers.Get(key)
}

// KeepAliveRequested reports whether the request allows keeping the
// connection alive, applying protocol-version defaults: HTTP/1.1 unless it
// sends Connection: close, HTTP/1.0 only with Connection: keep-alive.
func (r *Request) KeepAliveRequested() bool {
	conn := strings.ToLower(r.Header("Connection"))
	if conn == "close" {
		return false
	}
	if r.Proto == "HTTP/1.1" {
		return conn != "close"
	}
	return conn == "keep-alive"
}

// ContentLength parses the Content-Length header, returning -1 if absent or
// malformed.
func (r *Request) ContentLength() int {
	v := r.Header("Content-Length")
	if v == "" {
		return -1
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}
