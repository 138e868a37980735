package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/backend/memstore"
	"github.com/mohammed-shakir/listing-search/internal/coordinator"
	"github.com/mohammed-shakir/listing-search/internal/core/middleware"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/orchestrator"
	"github.com/mohammed-shakir/listing-search/internal/searchevents"
	"github.com/mohammed-shakir/listing-search/internal/session"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWith(t, nil)
}

type recordingSink struct {
	mu     sync.Mutex
	events []searchevents.Event
}

func (s *recordingSink) Publish(ev searchevents.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func newServerWith(t *testing.T, events searchevents.Sink) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ms := memstore.New()
	if err := memstore.Seed(ms); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exec := orchestrator.NewExecutor(logger, ms, orchestrator.DefaultPageSize)
	catalog := autocomplete.NewZoneCatalog(logger, ms)

	reg := session.NewRegistry(context.Background(), logger, func(q string) *coordinator.Coordinator {
		return coordinator.New(coordinator.Config{
			Logger:          logger,
			Executor:        exec,
			Store:           filter.NewStore(q, &filter.MemoryHistory{}),
			Catalog:         catalog,
			Debounce:        5 * time.Millisecond,
			InvalidateDelay: 5 * time.Millisecond,
		})
	}, 10, time.Minute)
	t.Cleanup(reg.Close)

	r := chi.NewRouter()
	Mount(r, Deps{
		Logger:      logger,
		Executor:    exec,
		Backend:     ms,
		Catalog:     catalog,
		Sessions:    reg,
		Limiter:     middleware.NewRateLimiter(0.001, 2, logger),
		Events:      events,
		MapWidthPx:  800,
		MapHeightPx: 600,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestSearch_Stateless(t *testing.T) {
	srv := newServer(t)
	code, b := do(t, http.MethodGet, srv.URL+"/api/search?country=Spain&page=2", "")
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%s", code, b)
	}
	res := decode[searchResponse](t, b)
	if res.Total != 24 || len(res.Items) != 12 {
		t.Fatalf("total=%d items=%d", res.Total, len(res.Items))
	}
	if res.Pagination.Page != 2 || res.Pagination.TotalPages != 2 {
		t.Fatalf("pagination=%+v", res.Pagination)
	}
	if res.Query != "country=Spain&page=2" {
		t.Fatalf("query=%q", res.Query)
	}
	n := 0
	for _, c := range res.Clusters {
		n += c.Count
	}
	if n != len(res.Markers) || len(res.Markers) == 0 {
		t.Fatalf("clusters cover %d of %d markers", n, len(res.Markers))
	}
}

func TestSearch_NoMatchesIsEmptyNotNull(t *testing.T) {
	srv := newServer(t)
	code, b := do(t, http.MethodGet, srv.URL+"/api/search?country=Atlantis", "")
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if !strings.Contains(string(b), `"items":[]`) || !strings.Contains(string(b), `"markers":[]`) {
		t.Fatalf("body=%s", b)
	}
}

func TestAutocomplete(t *testing.T) {
	srv := newServer(t)
	code, b := do(t, http.MethodGet, srv.URL+"/api/autocomplete?q=mad", "")
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	got := decode[struct {
		Suggestions []autocomplete.Suggestion `json:"suggestions"`
	}](t, b)
	if len(got.Suggestions) != 2 || got.Suggestions[0].City != "Madrid" {
		t.Fatalf("suggestions=%+v", got.Suggestions)
	}

	_, b = do(t, http.MethodGet, srv.URL+"/api/autocomplete?q=m", "")
	if !strings.Contains(string(b), `"suggestions":[]`) {
		t.Fatalf("short query body=%s", b)
	}

	// burst of 2 spent; the limiter now refuses this client
	code, _ = do(t, http.MethodGet, srv.URL+"/api/autocomplete?q=lis", "")
	if code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", code)
	}
}

func TestPropertyTypes(t *testing.T) {
	srv := newServer(t)
	_, b := do(t, http.MethodGet, srv.URL+"/api/property-types", "")
	types := decode[[]struct{ Name string }](t, b)
	if len(types) != 4 || types[0].Name != "Apartment" || types[3].Name != "Studio" {
		t.Fatalf("types=%+v", types)
	}
}

type snap struct {
	Status   string `json:"status"`
	Total    int    `json:"total"`
	ActiveID string `json:"active_id"`
	Mode     string `json:"mode"`
	Query    string `json:"query"`
}

func waitSnapshot(t *testing.T, url string, ok func(snap) bool) snap {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		code, b := do(t, http.MethodGet, url, "")
		if code != http.StatusOK {
			t.Fatalf("snapshot status=%d body=%s", code, b)
		}
		s := decode[snap](t, b)
		if ok(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t)

	code, b := do(t, http.MethodPost, srv.URL+"/api/sessions?country=Spain", "")
	if code != http.StatusCreated {
		t.Fatalf("create status=%d", code)
	}
	id := decode[map[string]string](t, b)["id"]
	base := srv.URL + "/api/sessions/" + id

	waitSnapshot(t, base, func(s snap) bool { return s.Status == "applied" && s.Total == 24 })

	code, b = do(t, http.MethodPut, base+"/filters?country=Spain&province=Madrid&area=Retiro", "")
	w := decode[writeResponse](t, b)
	if code != http.StatusOK || !w.Changed || w.Query != "area=Retiro&country=Spain&province=Madrid" {
		t.Fatalf("filters: %d %+v", code, w)
	}
	waitSnapshot(t, base, func(s snap) bool { return s.Status == "applied" && s.Total == 6 })

	code, _ = do(t, http.MethodPost, base+"/events", `{"type":"marker_click","id":"p-002"}`)
	if code != http.StatusAccepted {
		t.Fatalf("event status=%d", code)
	}
	code, _ = do(t, http.MethodPost, base+"/events", `{"type":"pan_zoom_start"}`)
	if code != http.StatusAccepted {
		t.Fatalf("event status=%d", code)
	}
	s := waitSnapshot(t, base, func(s snap) bool { return s.ActiveID == "p-002" })
	if s.Mode != "user_controlled" {
		t.Fatalf("mode=%s", s.Mode)
	}

	code, _ = do(t, http.MethodPut, base+"/page?page=zero", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad page status=%d", code)
	}
	code, _ = do(t, http.MethodPost, base+"/events", `{"type":"teleport"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("unknown event status=%d", code)
	}

	code, b = do(t, http.MethodPost, base+"/geolocate", `{"lat":40.41,"lng":-3.70}`)
	w = decode[writeResponse](t, b)
	if code != http.StatusOK || !w.Changed || !strings.Contains(w.Query, "use_radius=") {
		t.Fatalf("geolocate: %d %+v", code, w)
	}

	code, _ = do(t, http.MethodDelete, base, "")
	if code != http.StatusNoContent {
		t.Fatalf("delete status=%d", code)
	}
	code, _ = do(t, http.MethodGet, base, "")
	if code != http.StatusNotFound {
		t.Fatalf("after delete status=%d", code)
	}
}

func TestSessionSuggestionsAndSelect(t *testing.T) {
	srv := newServer(t)
	_, b := do(t, http.MethodPost, srv.URL+"/api/sessions", "")
	base := srv.URL + "/api/sessions/" + decode[map[string]string](t, b)["id"]

	code, b := do(t, http.MethodGet, base+"/suggestions?q=lisb", "")
	if code != http.StatusOK {
		t.Fatalf("suggestions status=%d body=%s", code, b)
	}
	up := decode[autocomplete.Update](t, b)
	if len(up.Suggestions) != 1 || up.Suggestions[0].City != "Lisbon" {
		t.Fatalf("update=%+v", up)
	}

	body, _ := json.Marshal(up.Suggestions[0])
	code, b = do(t, http.MethodPost, base+"/suggestions/select", string(body))
	w := decode[writeResponse](t, b)
	if code != http.StatusOK || !w.Changed || !strings.Contains(w.Query, "country=Portugal") {
		t.Fatalf("select: %d %+v", code, w)
	}
	waitSnapshot(t, base, func(s snap) bool { return s.Status == "applied" && s.Total == 6 })
}

func TestUnknownSession(t *testing.T) {
	srv := newServer(t)
	for _, id := range []string{"not-a-uuid", "6f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f"} {
		code, _ := do(t, http.MethodGet, srv.URL+"/api/sessions/"+id, "")
		if code != http.StatusNotFound {
			t.Fatalf("%s: status=%d", id, code)
		}
	}
}

func TestSearch_PublishesEvent(t *testing.T) {
	sink := &recordingSink{}
	srv := newServerWith(t, sink)

	code, _ := do(t, http.MethodGet, srv.URL+"/api/search?op=buy&page=1", "")
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 {
		t.Fatalf("events=%d want 1", len(sink.events))
	}
	ev := sink.events[0]
	if !strings.Contains(ev.Query, "buy") || ev.Page != 1 || ev.Total == 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
