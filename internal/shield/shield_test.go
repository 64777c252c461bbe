package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestStack(t *testing.T) {
	// WHAT: headers, request ID and request logger are all in place.
	// WHY: the admin API is reachable from a browser on the same host.
	r := chi.NewRouter()
	r.Use(Stack(nil, DefaultHeaders(), 1024)...)
	var sawLogger bool
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		sawLogger = Logger(r.Context()) != slog.Default()
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
	if !sawLogger {
		t.Error("request logger missing")
	}
}

func TestStack_IncomingRequestID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Stack(nil, DefaultHeaders(), 1024)...)
	r.Get("/x", func(w http.ResponseWriter, _ *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "upstream-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "upstream-7" {
		t.Errorf("X-Request-ID: got %q, want upstream-7", got)
	}
}

func TestStack_BodyLimit(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Stack(nil, DefaultHeaders(), 4)...)
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d, want 413", w.Code)
	}
}

func TestLogger_Outside(t *testing.T) {
	if Logger(t.Context()) != slog.Default() {
		t.Error("expected slog.Default outside the stack")
	}
}
