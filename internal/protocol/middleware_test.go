package protocol

import "testing"

func TestMiddleware_ShortCircuit(t *testing.T) {
	r := NewRouter()
	r.Use(func(req *Request, next Handler) Lazy {
		if req.Header("X-Block") == "1" {
			return Now(Text("blocked"), nil)
		}
		return next.Handle(req)
	})
	r.Register("GET", "/x", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("handler"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/x"
	req.Headers.Set("X-Block", "1")

	resp, _ := r.Route(req).Await()
	if string(resp.Body) != "blocked" {
		t.Fatalf("expected middleware short-circuit, got %q", resp.Body)
	}
}

func TestMiddleware_OrderLeftToRight(t *testing.T) {
	r := NewRouter()
	var order []string
	r.Use(func(req *Request, next Handler) Lazy {
		order = append(order, "first")
		return next.Handle(req)
	})
	r.Use(func(req *Request, next Handler) Lazy {
		order = append(order, "second")
		return next.Handle(req)
	})
	r.Register("GET", "/x", HandlerFunc(func(req *Request) Lazy {
		order = append(order, "handler")
		return Now(Text("ok"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/x"
	r.Route(req).Await()

	want := []string{"first", "second", "handler"}
	if len(order) != len(want) {
		t.Fatalf("got order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestResponse_FinalizeSetsHeaders(t *testing.T) {
	resp := Text("hello")
	resp.Finalize(false)

	if resp.Headers.Get("Content-Length") != "5" {
		t.Fatalf("expected Content-Length 5, got %q", resp.Headers.Get("Content-Length"))
	}
	if resp.Headers.Get("Connection") != "keep-alive" {
		t.Fatalf("expected keep-alive default, got %q", resp.Headers.Get("Connection"))
	}
	if resp.Headers.Get("Date") == "" {
		t.Fatal("expected Date header to be set")
	}
}

func TestResponse_FinalizePreservesExplicitConnection(t *testing.T) {
	resp := Text("hello")
	resp.Headers.Set("Connection", "close")
	resp.Finalize(false)

	if resp.Headers.Get("Connection") != "close" {
		t.Fatalf("expected explicit Connection: close preserved, got %q", resp.Headers.Get("Connection"))
	}
}
