package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/canary/internal/shield"
	"github.com/hazyhaar/canary/page"
	"github.com/hazyhaar/canary/report"
)

// History serves stored cycles; *report.Store implements it.
type History interface {
	History(ctx context.Context, pageID string, limit int) ([]report.Cycle, error)
}

// AdminOption configures the admin handler.
type AdminOption func(*admin)

// WithHistory enables GET /pages/{id}/cycles.
func WithHistory(h History) AdminOption {
	return func(a *admin) { a.history = h }
}

// WithAdminLogger sets the base logger of request logs.
func WithAdminLogger(l *slog.Logger) AdminOption {
	return func(a *admin) { a.logger = l }
}

type admin struct {
	m       *Manager
	history History
	logger  *slog.Logger
	mcp     http.Handler
}

// Admin returns the admin API of m:
//
//	GET    /health
//	GET    /pages
//	GET    /pages/{id}
//	POST   /pages/{id}/apply
//	GET    /pages/{id}/observer
//	DELETE /pages/{id}/observer
//	GET    /pages/{id}/cycles?limit=N
//	*      /mcp                     (with WithMCP)
//
// Page IDs are path-escaped in URLs.
func Admin(m *Manager, opts ...AdminOption) http.Handler {
	a := &admin{m: m, logger: m.logger}
	for _, o := range opts {
		o(a)
	}

	r := chi.NewRouter()
	r.Use(shield.Stack(a.logger, shield.DefaultHeaders(), 64*1024)...)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pages": len(m.Sessions())})
	})
	r.Get("/pages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, m.Sessions())
	})
	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/", a.handlePage)
		r.Post("/apply", a.handleApply)
		r.Get("/observer", a.handleObserver)
		r.Delete("/observer", a.handleDisconnect)
		r.Get("/cycles", a.handleCycles)
	})
	if a.mcp != nil {
		r.Handle("/mcp", a.mcp)
	}
	return r
}

func pageID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (a *admin) handlePage(w http.ResponseWriter, r *http.Request) {
	s, ok := a.m.Session(pageID(r))
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownPage)
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (a *admin) handleApply(w http.ResponseWriter, r *http.Request) {
	id := pageID(r)
	cy, err := a.m.Apply(id)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	shield.Logger(r.Context()).Info("live: manual apply",
		"page_id", id, "cycle_id", cy.ID, "changed", cy.Stats.Changed())
	writeJSON(w, http.StatusOK, cy)
}

func (a *admin) handleObserver(w http.ResponseWriter, r *http.Request) {
	info, err := a.m.Observer(pageID(r))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *admin) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.m.Disconnect(pageID(r)); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (a *admin) handleCycles(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, errors.New("live: cycle history disabled"))
		return
	}
	id := pageID(r)
	if _, ok := a.m.Session(id); !ok {
		writeError(w, http.StatusNotFound, ErrUnknownPage)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("live: invalid limit"))
			return
		}
		limit = n
	}
	cycles, err := a.history.History(r.Context(), id, limit)
	if err != nil {
		shield.Logger(r.Context()).Error("live: cycle history", "page_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cycles == nil {
		cycles = []report.Cycle{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPage), errors.Is(err, ErrNoObserver):
		return http.StatusNotFound
	case errors.Is(err, page.ErrClosed), errors.Is(err, page.ErrNoEntryPoint):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
