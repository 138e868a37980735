package router

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/logger"
	"github.com/mohammed-shakir/listing-search/internal/mapsync"
	"github.com/mohammed-shakir/listing-search/internal/pagination"
	"github.com/mohammed-shakir/listing-search/internal/searchevents"
)

type searchResponse struct {
	Query        string            `json:"query"`
	Items        []model.ListItem  `json:"items"`
	Total        int               `json:"total"`
	Pagination   pagination.Window `json:"pagination"`
	Markers      []model.Marker    `json:"markers"`
	Clusters     []mapsync.Cluster `json:"clusters"`
	Viewport     mapsync.Viewport  `json:"viewport"`
	Overlay      *mapsync.Overlay  `json:"overlay,omitempty"`
	ShortCircuit bool              `json:"short_circuit,omitempty"`
}

// search runs one stateless cycle for the filter query string.
func (a *api) search(w http.ResponseWriter, r *http.Request) {
	if a.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("search unavailable"))
		return
	}
	st := filter.Decode(r.URL.RawQuery)
	start := time.Now()
	res, err := a.Executor.Execute(r.Context(), st)
	if err != nil {
		a.Logger.WarnContext(r.Context(), "search failed", "err", err)
		writeError(w, http.StatusBadGateway, fmt.Errorf("search failed: %w", err))
		return
	}

	ms := mapsync.New(mapsync.Options{
		WidthPx:  a.MapWidthPx,
		HeightPx: a.MapHeightPx,
		Mapper:   a.Mapper,
		Logger:   a.Logger,
	})
	ms.SetRadius(st.UseRadius, st.EffectiveRadiusKm())
	ms.SetMarkers(res.Markers)
	f := ms.Frame()

	if a.Events != nil {
		a.Events.Publish(searchevents.Event{
			Query:        filter.Encode(st),
			Total:        res.Total,
			Page:         st.Page,
			ShortCircuit: res.ShortCircuit,
			TookMs:       time.Since(start).Milliseconds(),
			RequestID:    logger.RequestIDFrom(r.Context()),
		})
	}

	items := res.Items
	if items == nil {
		items = []model.ListItem{}
	}
	markers := res.Markers
	if markers == nil {
		markers = []model.Marker{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:        filter.Encode(st),
		Items:        items,
		Total:        res.Total,
		Pagination:   res.Pagination(),
		Markers:      markers,
		Clusters:     f.Clusters,
		Viewport:     f.Viewport,
		Overlay:      f.Overlay,
		ShortCircuit: res.ShortCircuit,
	})
}

func (a *api) autocomplete(w http.ResponseWriter, r *http.Request) {
	if a.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("autocomplete unavailable"))
		return
	}
	q := r.URL.Query().Get("q")
	out, err := a.Catalog.Search(r.Context(), q, a.SuggestLimit)
	switch {
	case errors.Is(err, autocomplete.ErrTooShort):
		out = []autocomplete.Suggestion{}
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "suggestions": out})
}

func (a *api) propertyTypes(w http.ResponseWriter, r *http.Request) {
	if a.Backend == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("catalog unavailable"))
		return
	}
	res, err := a.Backend.Select(r.Context(), backend.Query{
		Table:   backend.TableTypes,
		Columns: []string{"id", "name", "slug"},
		OrderBy: "name",
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	out := make([]model.PropertyType, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, model.PropertyType{ID: row.String("id"), Name: row.String("name"), Slug: row.String("slug")})
	}
	writeJSON(w, http.StatusOK, out)
}
