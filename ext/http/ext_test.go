package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/ardnew/cask/engine"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	e, err := engine.New(engine.WithCatalog(engine.NewCatalog().Register(Name, New)))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	if _, err := e.LoadExtension(t.Context(), Name); err != nil {
		t.Fatalf("LoadExtension: %v", err)
	}

	return e
}

// newServer replies with "<method> <body> <content type>" and sets
// X-Reply on every response. /missing answers 404.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)

		w.Header().Set("X-Reply", "yes")

		if r.URL.Path == "/missing" {
			w.WriteHeader(nethttp.StatusNotFound)
		}

		fmt.Fprintf(w, "%s %s %s", r.Method, body, r.Header.Get("Content-Type"))
	}))

	t.Cleanup(srv.Close)

	return srv
}

func TestRequests(t *testing.T) {
	e := newEngine(t)
	srv := newServer(t)

	if err := e.SetVar("base", srv.URL); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		src  string
		want string
	}{
		{"http_modes_()", "([1], 1)"},
		{"http_get_(base + '/a', simple=True)", "'GET  text/plain; charset=UTF-8'"},
		{"r = http_get_(base + '/a')\n(r[0], r[2]['status'], r[2]['headers']['X-Reply'])", "(200, '200 OK', 'yes')"},
		{"http_get_(base + '/missing')[0]", "404"},
		{"http_put_(base, data='payload', headers={'Content-Type': 'application/json'})[0:2]",
			"(200, 'PUT payload application/json')"},
		{"http_request_('post', base, data=42)[1]", "'POST 42 text/plain; charset=UTF-8'"},
		{"http_request_('trace', base)", "(993, 'unsupported method TRACE', None)"},
		{"http_get_('ftp://example.com/f')", "(998, 'invalid scheme: ftp', None)"},
		{"http_put_('file:///etc/passwd')[0]", "995"},
		{"http_get_(base, client=2)", "(999, 'client mode unavailable: 2', None)"},
		{"http_get_('ftp://example.com/f', simple=True)", "''"},
	}

	for _, tt := range tests {
		v, err := e.Eval(t.Context(), "test", tt.src)
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.src, err)

			continue
		}

		if got := engine.Repr(v); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestUnreachable(t *testing.T) {
	e := newEngine(t)
	srv := newServer(t)
	srv.Close()

	if err := e.SetVar("base", srv.URL); err != nil {
		t.Fatal(err)
	}

	v, err := e.Eval(t.Context(), "test", "(http_get_(base)[0], http_get_(base, simple=True), http_get_(base)[2])")
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "(992, '', None)" {
		t.Errorf("got %s", got)
	}
}

func TestBadHeaders(t *testing.T) {
	e := newEngine(t)

	_, err := e.Eval(t.Context(), "test", "http_get_('http://localhost/', headers=3)")
	if !errors.Is(err, engine.ErrType) {
		t.Errorf("got %v, want TypeError", err)
	}
}
