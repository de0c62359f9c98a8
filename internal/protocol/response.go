package protocol

import (
	"bytes"
	"fmt"
	"time"
)

// Response is built by a handler and consumed once by the writer.
type Response struct {
	Status  int
	Reason  string
	Headers *HeaderMap
	Body    []byte
}

// NewResponse builds an empty 200 OK response.
func NewResponse() *Response {
	return &Response{
		Status:  200,
		Reason:  ReasonPhrase(200),
		Headers: NewHeaderMap(),
	}
}

// ReasonPhrase returns the canonical reason phrase for a status code.
func ReasonPhrase(status int) string {
	if r, ok := reasonPhrases[status]; ok {
		return r
	}
	switch {
	case status >= 200 && status < 300:
		return "OK"
	case status >= 400 && status < 500:
		return "Bad Request"
	case status >= 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

func finalize(status int, body []byte) *Response {
	r := &Response{
		Status:  status,
		Reason:  ReasonPhrase(status),
		Headers: NewHeaderMap(),
		Body:    body,
	}
	return r
}

// Ok builds a 200 response carrying raw bytes.
func Ok(body []byte) *Response { return finalize(200, body) }

// Text builds a 200 text/plain response.
func Text(s string) *Response {
	r := finalize(200, []byte(s))
	r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// HTML builds a 200 text/html response.
func HTML(s string) *Response {
	r := finalize(200, []byte(s))
	r.Headers.Set("Content-Type", "text/html; charset=utf-8")
	return r
}

// JSON builds a 200 application/json response from a pre-encoded payload.
func JSON(body []byte) *Response {
	r := finalize(200, body)
	r.Headers.Set("Content-Type", "application/json")
	return r
}

// BadRequest builds a 400 response with a plain-text message.
func BadRequest(msg string) *Response {
	r := finalize(400, []byte(msg))
	r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// NotFound builds a 404 response with a plain-text message.
func NotFound(msg string) *Response {
	r := finalize(404, []byte(msg))
	r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// InternalServerError builds a 500 response with a plain-text message.
func InternalServerError(msg string) *Response {
	r := finalize(500, []byte(msg))
	r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Finalize sets Content-Length, a default Content-Type if absent, and the
// Date header. forceClose sets Connection: close; otherwise an explicit
// Connection header is left untouched and keep-alive is the default. Called
// once by the writer immediately before a response goes on the wire.
func (r *Response) Finalize(forceClose bool) {
	r.Headers.Set("Content-Length", fmt.Sprintf("%d", len(r.Body)))
	if !r.Headers.Has("Content-Type") {
		r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	}
	if !r.Headers.Has("Date") {
		r.Headers.Set("Date", time.Now().UTC().Format(time.RFC1123))
	}
	if forceClose {
		r.Headers.Set("Connection", "close")
	} else if !r.Headers.Has("Connection") {
		r.Headers.Set("Connection", "keep-alive")
	}
}

// WriteTo serialises the response as HTTP/1.1 wire bytes into buf, returning
// the extended buffer. headOnly drops the body (used for HEAD responses).
func (r *Response) WriteTo(buf []byte, headOnly bool) []byte {
	var b bytes.Buffer
	b.Grow(128 + len(r.Body))

	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, r.Reason)
	r.Headers.Each(func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	})
	b.WriteString("\r\n")
	if !headOnly {
		b.Write(r.Body)
	}

	return append(buf, b.Bytes()...)
}

// ShouldClose reports whether the writer must close the connection after
// this response, per its Connection header.
func (r *Response) ShouldClose() bool {
	return r.Headers.Get("Connection") == "close"
}
