// Package router mounts the search API on a chi router.
package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/coordinator"
	"github.com/mohammed-shakir/listing-search/internal/core/middleware"
	"github.com/mohammed-shakir/listing-search/internal/mapper"
	"github.com/mohammed-shakir/listing-search/internal/orchestrator"
	"github.com/mohammed-shakir/listing-search/internal/searchevents"
	"github.com/mohammed-shakir/listing-search/internal/session"
)

type Deps struct {
	Logger   *slog.Logger
	Executor *orchestrator.Executor
	// Backend serves catalog lookups such as property types.
	Backend  backend.Store
	Catalog  autocomplete.Catalog
	Sessions *session.Registry
	Limiter  *middleware.RateLimiter
	Mapper   mapper.Interface
	// Events, when set, receives one record per stateless search.
	Events searchevents.Sink

	SuggestLimit int
	MapWidthPx   int
	MapHeightPx  int
}

type api struct {
	Deps
}

// Mount registers every /api route on r.
func Mount(r chi.Router, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	a := &api{Deps: d}

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", a.search)
		r.Get("/property-types", a.propertyTypes)
		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(d.Limiter.Middleware)
			}
			r.Get("/autocomplete", a.autocomplete)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", a.createSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getSession)
				r.Delete("/", a.deleteSession)
				r.Put("/filters", a.putFilters)
				r.Put("/page", a.putPage)
				r.Post("/events", a.postEvent)
				r.Get("/suggestions", a.sessionSuggestions)
				r.Post("/suggestions/select", a.selectSuggestion)
				r.Post("/geolocate", a.geolocate)
			})
		})
	})
}

// RoutePattern labels metrics with the matched chi pattern instead of the raw path.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (a *api) session(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	if a.Sessions == nil {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return nil, false
	}
	c, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps loop and session errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusGone
	case errors.Is(err, autocomplete.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
