package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoadClient_RunConcurrentCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewLoadClient(2 * time.Second)
	results := client.RunConcurrentCount(context.Background(), srv.URL, 5, 50)

	if len(results) != 50 {
		t.Fatalf("got %d results, want 50", len(results))
	}
	for _, r := range results {
		if !r.Success || r.Status != http.StatusOK {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
}

func TestLoadClient_HealthCheck_4xxCountsAsAlive(t *testing.T) {
	// Only /hello is registered, so /health answers 404; a 4xx already
	// counts as alive and the check succeeds on that first probe.
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewLoadClient(2 * time.Second)
	if !client.HealthCheck(context.Background(), srv.URL) {
		t.Fatal("expected health check to succeed on the 404 from /health")
	}
}

func TestLoadClient_HealthCheck_FailsOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewLoadClient(2 * time.Second)
	if client.HealthCheck(context.Background(), srv.URL) {
		t.Fatal("expected health check to fail on persistent 5xx")
	}
}

func TestFindMaxSustainableConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewLoadClient(2 * time.Second)
	result := FindMaxSustainableConcurrency(context.Background(), client, srv.URL, 8, 10)

	if result.MaxSustainableConcurrency == 0 {
		t.Fatal("expected a healthy always-200 server to sustain some concurrency")
	}
}
