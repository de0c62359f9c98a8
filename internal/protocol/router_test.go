package protocol

import "testing"

func TestRouter_ExactBeatsParam(t *testing.T) {
	r := NewRouter()
	r.Register("GET", "/users/{id}", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("param"), nil)
	}))
	r.Register("GET", "/users/me", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("exact"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/users/me"

	resp, _ := r.Route(req).Await()
	if string(resp.Body) != "exact" {
		t.Fatalf("expected exact match to win, got %q", resp.Body)
	}
}

func TestRouter_PathParam(t *testing.T) {
	// S5: GET /users/{id} receiving GET /users/42 exposes path.id == "42".
	r := NewRouter()
	var captured string
	r.Register("GET", "/users/{id}", HandlerFunc(func(req *Request) Lazy {
		captured = req.PathParam("id")
		return Now(Text("ok"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/users/42"
	r.Route(req).Await()

	if captured != "42" {
		t.Fatalf("expected path.id == 42, got %q", captured)
	}
}

func TestRouter_NotFound(t *testing.T) {
	// S4: GET /nope returns 404 with a body containing /nope.
	r := NewRouter()
	req := NewRequest()
	req.Method = "GET"
	req.Path = "/nope"

	resp, _ := r.Route(req).Await()
	if resp.Status != 404 {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
	if !contains(string(resp.Body), "/nope") {
		t.Fatalf("expected body to mention /nope, got %q", resp.Body)
	}
}

func TestRouter_PrefixLongestWins(t *testing.T) {
	r := NewRouter()
	r.Register("GET", "/p/*", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("short"), nil)
	}))
	r.Register("GET", "/p/a/*", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("long"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/p/a/b"

	resp, _ := r.Route(req).Await()
	if string(resp.Body) != "long" {
		t.Fatalf("expected longest prefix to win, got %q", resp.Body)
	}
}

func TestRouter_TotalWildcardFallback(t *testing.T) {
	r := NewRouter()
	r.Register("GET", "/*", HandlerFunc(func(req *Request) Lazy {
		return Now(Text("catch-all"), nil)
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/anything"

	resp, _ := r.Route(req).Await()
	if string(resp.Body) != "catch-all" {
		t.Fatalf("expected wildcard catch-all, got %q", resp.Body)
	}
}

func TestRouter_RegistrationAfterStartPanics(t *testing.T) {
	r := NewRouter()
	r.MarkStarted()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on post-start registration")
		}
	}()
	r.Register("GET", "/late", HandlerFunc(func(req *Request) Lazy { return Now(Text("x"), nil) }))
}

func TestRouter_HandlerPanicBecomes500(t *testing.T) {
	r := NewRouter()
	r.Register("GET", "/boom", HandlerFunc(func(req *Request) Lazy {
		panic("kaboom")
	}))

	req := NewRequest()
	req.Method = "GET"
	req.Path = "/boom"

	resp, _ := r.Route(req).Await()
	if resp.Status != 500 {
		t.Fatalf("expected 500, got %d", resp.Status)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
