// Package handlers implements the fixed benchmark-facing HTTP surface
// named in spec.md §6: /health, /hello, /cpu-intensive, /io-simulation,
// and /status. Each is a plain protocol.HandlerFunc; none carry servlet
// lifecycle state, so they are registered directly with a Router.
package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/searchktools/compare-server/internal/protocol"
)

// healthBody matches the {status, server, timestamp, thread} shape named
// in spec.md §6.
type healthBody struct {
	Status    string `json:"status"`
	Server    string `json:"server"`
	Timestamp int64  `json:"timestamp"`
	Thread    string `json:"thread"`
}

// Health handles GET/POST/HEAD /health. serverName identifies the
// pipeline ("threaded", "hybrid", "eventloop") in the response body.
func Health(serverName string) protocol.HandlerFunc {
	return func(req *protocol.Request) protocol.Lazy {
		if req.Method == "HEAD" {
			resp := protocol.NewResponse()
			resp.Headers.Set("Content-Type", "application/json")
			return protocol.Now(resp, nil)
		}

		body, err := json.Marshal(healthBody{
			Status:    "healthy",
			Server:    serverName,
			Timestamp: time.Now().UnixMilli(),
			Thread:    threadLabel(),
		})
		if err != nil {
			return protocol.Now(protocol.InternalServerError(err.Error()), nil)
		}
		return protocol.Now(protocol.JSON(body), nil)
	}
}

// displayNames maps the lowercase pipeline id used in /health and
// /status ("threaded", "hybrid", "eventloop") to the TitleCase name S1
// requires in the /hello greeting.
var displayNames = map[string]string{
	"threaded":  "Threaded",
	"hybrid":    "Hybrid",
	"eventloop": "EventLoop",
}

// DisplayName returns the TitleCase form of a pipeline id, falling back to
// the id unchanged if it isn't one of the three known pipelines.
func DisplayName(serverName string) string {
	if d, ok := displayNames[serverName]; ok {
		return d
	}
	return serverName
}

// Hello handles GET /hello. displayName is the TitleCase pipeline name
// ("Threaded", "Hybrid", "EventLoop"), distinct from the lowercase id
// Health/Status report.
func Hello(displayName string) protocol.HandlerFunc {
	greeting := fmt.Sprintf("Hello from %s Server", displayName)
	return func(req *protocol.Request) protocol.Lazy {
		return protocol.Now(protocol.Text(greeting), nil)
	}
}

type cpuBody struct {
	Server string `json:"server"`
	Result int64  `json:"result"`
}

// CPUIntensive handles GET /cpu-intensive: a deliberately synchronous,
// allocation-free compute loop standing in for real CPU-bound work, per
// spec.md §6 ("~100k-iteration compute").
func CPUIntensive(serverName string) protocol.HandlerFunc {
	return func(req *protocol.Request) protocol.Lazy {
		var acc int64
		for i := 0; i < 100_000; i++ {
			acc += int64(i) * int64(i+1)
		}
		body, err := json.Marshal(cpuBody{Server: serverName, Result: acc})
		if err != nil {
			return protocol.Now(protocol.InternalServerError(err.Error()), nil)
		}
		return protocol.Now(protocol.JSON(body), nil)
	}
}

type ioBody struct {
	Server string `json:"server"`
	IO     string `json:"io"`
}

// IOSimulation handles GET /io-simulation: sleeps ~100ms to stand in for
// a blocking I/O call, per spec.md §6. The returned Lazy is marked
// Blocking so that Hybrid hops it to the I/O pool via Switcher and
// EventLoop hops it to ExecuteAsync; on the Threaded pipeline, whose
// whole model is one blocking worker per connection, it simply runs
// inline on that worker.
func IOSimulation(serverName string) protocol.HandlerFunc {
	return func(req *protocol.Request) protocol.Lazy {
		return protocol.DeferBlocking(func() (*protocol.Response, error) {
			time.Sleep(100 * time.Millisecond)
			body, err := json.Marshal(ioBody{Server: serverName, IO: "completed"})
			if err != nil {
				return protocol.InternalServerError(err.Error()), nil
			}
			return protocol.JSON(body), nil
		})
	}
}

// StatusProvider supplies the live counters a /status handler reports.
// Each pipeline implements this over its own worker pool / connection
// bookkeeping.
type StatusProvider interface {
	StatusSnapshot() map[string]any
}

// Status handles GET /status, reporting whatever snapshot the owning
// pipeline exposes alongside the server name and current time.
func Status(serverName string, provider StatusProvider) protocol.HandlerFunc {
	return func(req *protocol.Request) protocol.Lazy {
		snapshot := map[string]any{
			"server":    serverName,
			"timestamp": time.Now().UnixMilli(),
		}
		if provider != nil {
			for k, v := range provider.StatusSnapshot() {
				snapshot[k] = v
			}
		}
		body, err := json.Marshal(snapshot)
		if err != nil {
			return protocol.Now(protocol.InternalServerError(err.Error()), nil)
		}
		return protocol.Now(protocol.JSON(body), nil)
	}
}

func threadLabel() string {
	return fmt.Sprintf("goroutine-%d", time.Now().UnixNano()%100000)
}
