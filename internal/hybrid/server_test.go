package hybrid

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

// TestServer_HelloAndSwitch exercises S1 (the /hello greeting uses the
// TitleCase display name) and §4.3 (a Lazy flagged Blocking, as
// handlers.IOSimulation returns, is actually hopped through Switcher onto
// the I/O pool rather than run inline on the CPU pool worker).
func TestServer_HelloAndSwitch(t *testing.T) {
	port := freePort(t)
	cfg := config.DefaultPipeline("hybrid", port)

	router := protocol.NewRouter()
	router.Register("GET", "/hello", handlers.Hello(handlers.DisplayName(cfg.Name)))
	router.Register("GET", "/io-simulation", handlers.IOSimulation(cfg.Name))

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
	if want := "Hello from Hybrid Server"; string(body) != want {
		t.Fatalf("expected body %q, got %q", want, body)
	}

	ioStatsBefore := srv.ioPool.Stats().CompletedCount

	resp2, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/io-simulation", port))
	if err != nil {
		t.Fatalf("GET /io-simulation: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}

	if got := srv.ioPool.Stats().CompletedCount; got <= ioStatsBefore {
		t.Fatalf("expected /io-simulation to complete a task on the I/O pool, completed count stayed at %d", got)
	}
}

func TestServer_KeepAliveSequential(t *testing.T) {
	port := freePort(t)
	cfg := config.DefaultPipeline("hybrid", port)

	router := protocol.NewRouter()
	router.Register("GET", "/hello", protocol.HandlerFunc(func(req *protocol.Request) protocol.Lazy {
		return protocol.Now(protocol.Text("hi"), nil)
	}))
	srv := New(cfg, router, nil, logging.Noop(), nil)
	go func() { _ = srv.ListenAndServe(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	client := &http.Client{}
	for i := 0; i < 3; i++ {
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/hello", port))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
}
