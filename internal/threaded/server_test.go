package threaded

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
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

func newTestServer(t *testing.T, configure func(*config.Pipeline)) (*Server, int) {
	t.Helper()
	port := freePort(t)
	cfg := config.DefaultPipeline("threaded", port)
	cfg.SocketTimeout = 2 * time.Second
	if configure != nil {
		configure(&cfg)
	}

	router := protocol.NewRouter()
	router.Register("GET", "/hello", handlers.Hello(handlers.DisplayName(cfg.Name)))

	srv := New(cfg, router, nil, logging.Noop(), nil)

	go func() {
		_ = srv.ListenAndServe(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	return srv, port
}

// TestServer_Hello exercises S1: the greeting body must use the TitleCase
// pipeline name, distinct from the lowercase "threaded" id config.Name and
// /health/"server" carry.
func TestServer_Hello(t *testing.T) {
	_, port := newTestServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/hello", port))
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if want := "Hello from Threaded Server"; string(body) != want {
		t.Fatalf("expected body %q, got %q", want, body)
	}
}

func TestServer_NotFound(t *testing.T) {
	_, port := newTestServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/nope", port))
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// TestServer_PoolSaturationCallerRuns exercises S6: core=1, max=1,
// queueCapacity=0 with a handler sleeping 200ms; three concurrent
// requests must all complete, and at least one executes via caller-runs
// (RejectedCount > 0).
func TestServer_PoolSaturationCallerRuns(t *testing.T) {
	port := freePort(t)
	cfg := config.DefaultPipeline("threaded", port)
	cfg.CorePoolSize = 1
	cfg.MaxPoolSize = 1
	cfg.QueueCapacity = 0
	cfg.SocketTimeout = 5 * time.Second

	router := protocol.NewRouter()
	router.Register("GET", "/slow", protocol.HandlerFunc(func(req *protocol.Request) protocol.Lazy {
		time.Sleep(200 * time.Millisecond)
		return protocol.Now(protocol.Text("done"), nil)
	}))

	srv := New(cfg, router, nil, logging.Noop(), nil)
	go func() { _ = srv.ListenAndServe(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	results := make([]int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/slow", port))
			if err != nil {
				t.Errorf("request %d failed: %v", i, err)
				return
			}
			defer resp.Body.Close()
			results[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, code := range results {
		if code != 200 {
			t.Errorf("request %d: expected 200, got %d", i, code)
		}
	}
	if srv.pool.Stats().RejectedCount == 0 {
		t.Fatal("expected at least one caller-runs rejection under saturation")
	}
}

// TestServer_KeepAlive exercises invariant 7: sequential requests over
// one connection succeed without the server closing early.
func TestServer_KeepAlive(t *testing.T) {
	_, port := newTestServer(t, nil)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n")
		resp, err := http.ReadResponse(reader, nil)
		if err != nil {
			t.Fatalf("request %d: read response: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
}
