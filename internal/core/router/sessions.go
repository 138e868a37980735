package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/coordinator"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	mylog "github.com/mohammed-shakir/listing-search/internal/logger"
	"github.com/mohammed-shakir/listing-search/internal/mapsync"
)

const maxBody = 1 << 16

type writeResponse struct {
	Changed bool   `json:"changed"`
	Query   string `json:"query"`
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	if a.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("sessions unavailable"))
		return
	}
	id, _ := a.Sessions.Create(r.URL.RawQuery)
	a.Logger.InfoContext(mylog.WithSession(r.Context(), id), "session created")
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	snap, err := c.Snapshot(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	if a.Sessions == nil || !a.Sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// putFilters replaces the session filters with the request's query string.
func (a *api) putFilters(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	changed := c.SetFilters(r.URL.RawQuery)
	writeJSON(w, http.StatusOK, writeResponse{Changed: changed, Query: c.Store().Query()})
}

func (a *api) putPage(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, errors.New("page must be a positive integer"))
		return
	}
	changed := c.SetPage(page)
	writeJSON(w, http.StatusOK, writeResponse{Changed: changed, Query: c.Store().Query()})
}

// eventRequest is the wire form of a map or list interaction.
type eventRequest struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Viewport *mapsync.Viewport `json:"viewport,omitempty"`
	On       bool              `json:"on,omitempty"`
	WidthPx  int               `json:"width_px,omitempty"`
	HeightPx int               `json:"height_px,omitempty"`
}

func (a *api) toEvent(req eventRequest) (coordinator.Event, error) {
	switch req.Type {
	case "marker_hover":
		return coordinator.MarkerHover{ID: req.ID}, nil
	case "marker_click":
		return coordinator.MarkerClick{ID: req.ID}, nil
	case "row_hover":
		return coordinator.RowHover{ID: req.ID}, nil
	case "pan_zoom_start":
		return coordinator.PanZoomStart{}, nil
	case "bounds_changed":
		if req.Viewport == nil {
			return nil, errors.New("bounds_changed needs a viewport")
		}
		vp := *req.Viewport
		if vp.Bounds == (model.Bounds{}) {
			vp.Bounds = mapsync.VisibleBounds(vp.Center, vp.Zoom, a.MapWidthPx, a.MapHeightPx)
		}
		return coordinator.BoundsChanged{Viewport: vp}, nil
	case "fullscreen":
		w, h := req.WidthPx, req.HeightPx
		if w <= 0 || h <= 0 {
			w, h = a.MapWidthPx, a.MapHeightPx
		}
		return coordinator.FullscreenToggled{On: req.On, WidthPx: w, HeightPx: h}, nil
	case "dismiss_error":
		return coordinator.DismissError{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", req.Type)
	}
}

func (a *api) postEvent(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode event: %w", err))
		return
	}
	ev, err := a.toEvent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.Post(ev); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// sessionSuggestions feeds a keystroke and waits for the debounced answer.
// A newer keystroke on the same session answers 409.
func (a *api) sessionSuggestions(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	up, err := c.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if up.Suggestions == nil {
		up.Suggestions = []autocomplete.Suggestion{}
	}
	writeJSON(w, http.StatusOK, up)
}

func (a *api) selectSuggestion(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	var s autocomplete.Suggestion
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode suggestion: %w", err))
		return
	}
	changed := c.SelectSuggestion(s)
	writeJSON(w, http.StatusOK, writeResponse{Changed: changed, Query: c.Store().Query()})
}

func (a *api) geolocate(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	var pos model.LatLng
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&pos); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode position: %w", err))
		return
	}
	geo := autocomplete.GeoFunc(func(_ context.Context) (model.LatLng, error) {
		if pos.Lat < -90 || pos.Lat > 90 || pos.Lng < -180 || pos.Lng > 180 {
			return model.LatLng{}, errors.New("position out of range")
		}
		return pos, nil
	})
	changed := c.Geolocate(r.Context(), geo)
	writeJSON(w, http.StatusOK, writeResponse{Changed: changed, Query: c.Store().Query()})
}
