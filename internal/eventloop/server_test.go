package eventloop

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/handlers"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/protocol"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestServer_Hello exercises S1: the greeting body must use the TitleCase
// pipeline name, distinct from the lowercase "eventloop" id config.Name and
// /health/"server" carry.
func TestServer_Hello(t *testing.T) {
	port := freePort(t)
	cfg := config.DefaultPipeline("eventloop", port)

	router := protocol.NewRouter()
	router.Register("GET", "/hello", handlers.Hello(handlers.DisplayName(cfg.Name)))

	srv := New(cfg, router, nil, logging.Noop(), nil)
	go func() { _ = srv.ListenAndServe(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/hello", port))
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if want := "Hello from EventLoop Server"; string(body) != want {
		t.Fatalf("expected body %q, got %q", want, body)
	}
}

// TestServer_IOSimulationDoesNotBlockReactor exercises §4.4: a Lazy flagged
// Blocking (handlers.IOSimulation's sleep) must be hopped onto the async
// pool via ExecuteAsync rather than run inline on the single reactor
// goroutine. A concurrent /hello request issued while /io-simulation is
// in flight must complete well under the 100ms sleep if the reactor was
// never stalled.
func TestServer_IOSimulationDoesNotBlockReactor(t *testing.T) {
	port := freePort(t)
	cfg := config.DefaultPipeline("eventloop", port)

	router := protocol.NewRouter()
	router.Register("GET", "/hello", handlers.Hello(handlers.DisplayName(cfg.Name)))
	router.Register("GET", "/io-simulation", handlers.IOSimulation(cfg.Name))

	srv := New(cfg, router, nil, logging.Noop(), nil)
	go func() { _ = srv.ListenAndServe(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	asyncBefore := srv.asyncPool.Stats().CompletedCount

	done := make(chan struct{})
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/io-simulation", port))
		if err == nil {
			resp.Body.Close()
		}
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/hello", port))
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	resp.Body.Close()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("/hello took %v while /io-simulation was in flight; reactor appears stalled", elapsed)
	}

	<-done
	if got := srv.asyncPool.Stats().CompletedCount; got <= asyncBefore {
		t.Fatalf("expected /io-simulation to complete via the async pool, completed count stayed at %d", got)
	}
}

// TestServer_ExecuteAsyncRepostsThroughTaskQueue exercises the
// executeAsync escape hatch in isolation: work submitted to the async
// pool must reappear on the server's task queue rather than run inline
// on the async worker, so that only the loop thread ever touches
// connection state.
func TestServer_ExecuteAsyncRepostsThroughTaskQueue(t *testing.T) {
	cfg := config.DefaultPipeline("eventloop", freePort(t))
	router := protocol.NewRouter()
	srv := New(cfg, router, nil, logging.Noop(), nil)

	srv.ExecuteAsync(7, func() (*protocol.Response, error) {
		return protocol.Text("async done"), nil
	}, false)

	select {
	case fn := <-srv.taskQueue:
		if fn == nil {
			t.Fatal("expected a non-nil follow-up task")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a follow-up task on the queue")
	}
}
