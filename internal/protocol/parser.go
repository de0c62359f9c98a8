package protocol

import (
	"bytes"
	"fmt"
)

// ParseOptions bounds what the parser will accept before rejecting a
// request as BadRequest, per the Request data model in spec.md §3.
type ParseOptions struct {
	MaxHeaderLine     int
	MaxContentLength  int
}

// DefaultParseOptions returns the bounds used when none are supplied.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		MaxHeaderLine:    MaxHeaderLine,
		MaxContentLength: 10 << 20, // 10 MiB
	}
}

// ParseRequest parses one complete HTTP/1.1 message out of data. It returns
// ErrBadRequest (wrapped with a reason) for malformed method/target/version,
// an oversized header line, or a declared Content-Length beyond opts'
// bound. A nil request with a nil error means more bytes are needed.
func ParseRequest(data []byte, opts ParseOptions) (*Request, error) {
	return ParseRequestInto(NewRequest(), data, opts)
}

// ParseRequestInto parses into a caller-supplied Request, resetting it
// first — the pooled counterpart to ParseRequest, letting a hot accept
// loop recycle Request objects through a poolctl.SmartPool instead of
// allocating one per message. Same return contract as ParseRequest.
func ParseRequestInto(req *Request, data []byte, opts ParseOptions) (*Request, error) {
	req.Reset()
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		if len(data) > opts.MaxHeaderLine {
			return nil, fmt.Errorf("%w: request line too long", ErrBadRequest)
		}
		return nil, nil // need more data
	}

	line := data[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, fmt.Errorf("%w: malformed request line", ErrBadRequest)
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return nil, fmt.Errorf("%w: malformed request line", ErrBadRequest)
	}

	method := string(line[:sp1])
	target := string(rest[:sp2])
	proto := string(rest[sp2+1:])

	if !validMethod(method) {
		return nil, fmt.Errorf("%w: invalid method %q", ErrBadRequest, method)
	}
	if len(target) == 0 || target[0] != '/' {
		return nil, fmt.Errorf("%w: invalid target %q", ErrBadRequest, target)
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrBadRequest, proto)
	}

	req.Method = method
	req.Proto = proto
	req.Path, req.Query = splitQuery(target)

	remainder := data[lineEnd+1:]
	headerEnd := bytes.Index(remainder, []byte("\r\n\r\n"))
	sep := 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(remainder, []byte("\n\n"))
		sep = 2
		if headerEnd == -1 {
			return nil, nil // headers incomplete, need more data
		}
	}

	headerBlock := remainder[:headerEnd]
	if err := parseHeaders(req.Headers, headerBlock, opts.MaxHeaderLine); err != nil {
		return nil, err
	}

	if cl := req.ContentLength(); cl > opts.MaxContentLength {
		return nil, fmt.Errorf("%w: content-length %d exceeds limit %d", ErrBadRequest, cl, opts.MaxContentLength)
	}

	body := remainder[headerEnd+sep:]
	if cl := req.ContentLength(); cl >= 0 {
		if len(body) < cl {
			return nil, nil // body incomplete, need more data
		}
		req.Body = append(req.Body[:0], body[:cl]...)
	} else if len(body) > 0 {
		req.Body = append(req.Body[:0], body...)
	}

	return req, nil
}

func parseHeaders(into *HeaderMap, data []byte, maxLine int) error {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}

		line := data[:lineEnd]
		if len(line) > maxLine {
			return fmt.Errorf("%w: header line too long", ErrBadRequest)
		}
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if len(line) > 0 {
			colon := bytes.IndexByte(line, ':')
			if colon <= 0 {
				return fmt.Errorf("%w: malformed header line", ErrBadRequest)
			}
			key := string(bytes.TrimSpace(line[:colon]))
			value := string(bytes.TrimSpace(line[colon+1:]))
			into.Set(key, value)
		}

		if lineEnd >= len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
	return nil
}

func splitQuery(target string) (path string, query map[string]string) {
	idx := -1
	for i := 0; i < len(target); i++ {
		if target[i] == '?' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return target, nil
	}

	path = target[:idx]
	query = make(map[string]string)
	for _, pair := range splitBytes(target[idx+1:], '&') {
		if pair == "" {
			continue
		}
		k, v := splitOnce(pair, '=')
		query[k] = v
	}
	return path, query
}

func splitBytes(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitOnce(s string, sep byte) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func validMethod(m string) bool {
	switch m {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}
