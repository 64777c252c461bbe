package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/canary/internal/dbopen"
	"github.com/hazyhaar/canary/mutation"
	"github.com/hazyhaar/canary/report"
)

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAdmin_Endpoints(t *testing.T) {
	m := New(Config{})
	defer m.Stop()
	htmlSession(t, m, "a")
	h := Admin(m)

	w := do(t, h, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if got := decode[map[string]any](t, w); got["status"] != "ok" || got["pages"] != float64(1) {
		t.Errorf("health: %v", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("X-Request-ID") == "" {
		t.Errorf("headers: %v", w.Header())
	}

	w = do(t, h, http.MethodGet, "/pages")
	if list := decode[[]SessionInfo](t, w); len(list) != 1 || list[0].ID != "a" {
		t.Errorf("pages: %+v", list)
	}

	w = do(t, h, http.MethodGet, "/pages/a")
	if info := decode[SessionInfo](t, w); info.Cycles != 1 {
		t.Errorf("page: %+v", info)
	}

	w = do(t, h, http.MethodPost, "/pages/a/apply")
	if w.Code != http.StatusOK {
		t.Fatalf("apply: %d %s", w.Code, w.Body)
	}
	if cy := decode[report.Cycle](t, w); cy.Trigger != report.TriggerManual || cy.Seq != 2 {
		t.Errorf("apply: %+v", cy)
	}

	w = do(t, h, http.MethodGet, "/pages/a/observer")
	if info := decode[mutation.Info](t, w); !info.Connected || !info.Options.Subtree {
		t.Errorf("observer: %+v", info)
	}

	w = do(t, h, http.MethodDelete, "/pages/a/observer")
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect: %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/pages/a/observer")
	if info := decode[mutation.Info](t, w); info.Connected {
		t.Error("observer still connected")
	}
}

func TestAdmin_Errors(t *testing.T) {
	m := New(Config{})
	defer m.Stop()
	htmlSession(t, m, "a")
	h := Admin(m)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/pages/nope", http.StatusNotFound},
		{http.MethodPost, "/pages/nope/apply", http.StatusNotFound},
		{http.MethodGet, "/pages/nope/observer", http.StatusNotFound},
		{http.MethodDelete, "/pages/nope/observer", http.StatusNotFound},
		{http.MethodGet, "/pages/a/cycles", http.StatusNotFound}, // no history
		{http.MethodPut, "/pages/a/apply", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		if w := do(t, h, tt.method, tt.path); w.Code != tt.want {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
	}

	m.CloseSession("a")
	htmlSession(t, m, "b")
	s, _ := m.Session("b")
	s.Context().Close()
	if w := do(t, h, http.MethodPost, "/pages/b/apply"); w.Code != http.StatusConflict {
		t.Errorf("apply on closed context: got %d, want 409", w.Code)
	}
}

func TestAdmin_Cycles(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(report.Schema))
	store := report.NewStore(db)
	m := New(Config{Sink: store})
	defer m.Stop()
	htmlSession(t, m, "chat.local-c-1")
	h := Admin(m, WithHistory(store))

	path := "/pages/" + url.PathEscape("chat.local-c-1") + "/cycles"
	w := do(t, h, http.MethodGet, path+"?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("cycles: %d %s", w.Code, w.Body)
	}
	cycles := decode[[]report.Cycle](t, w)
	if len(cycles) != 1 || cycles[0].Trigger != report.TriggerInit {
		t.Errorf("cycles: %+v", cycles)
	}

	if w := do(t, h, http.MethodGet, path+"?limit=x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestAdmin_EscapedID(t *testing.T) {
	m := New(Config{})
	defer m.Stop()
	htmlSession(t, m, "chat.local/c/1")
	h := Admin(m)

	w := do(t, h, http.MethodGet, "/pages/"+url.PathEscape("chat.local/c/1"))
	if w.Code != http.StatusOK {
		t.Fatalf("escaped id: %d %s", w.Code, w.Body)
	}
}
