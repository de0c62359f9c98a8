//go:build !linux && !darwin

package pollnet

import "errors"

// New reports an unsupported-platform error outside Linux/Darwin. The
// Hybrid and EventLoop pipelines require a real readiness multiplexer;
// callers on other platforms should run the Threaded pipeline instead,
// which only needs blocking sockets.
func New() (Poller, error) {
	return nil, errors.New("pollnet: epoll/kqueue not available on this platform")
}
