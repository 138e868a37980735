package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/backend/memstore"
	"github.com/mohammed-shakir/listing-search/internal/filter"
)

// countingStore records selects per table and can fail one table on demand.
type countingStore struct {
	inner backend.Store

	mu     sync.Mutex
	calls  map[string]int
	failOn string
}

func newCounting(inner backend.Store) *countingStore {
	return &countingStore{inner: inner, calls: map[string]int{}}
}

func (c *countingStore) Select(ctx context.Context, q backend.Query) (backend.Result, error) {
	c.mu.Lock()
	c.calls[q.Table]++
	fail := c.failOn == q.Table
	c.mu.Unlock()
	if fail {
		return backend.Result{}, errors.New("backend unavailable")
	}
	return c.inner.Select(ctx, q)
}

func (c *countingStore) count(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[table]
}

func (c *countingStore) setFail(table string) {
	c.mu.Lock()
	c.failOn = table
	c.mu.Unlock()
}

// spainCatalog has seven properties in Spain and three in France.
func spainCatalog(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	must(s.Insert(backend.TableZones,
		backend.Row{"id": "z1", "country": "Spain", "city": "Madrid", "area": "Retiro"},
		backend.Row{"id": "z2", "country": "Spain", "city": "Sevilla", "area": "Triana"},
		backend.Row{"id": "z3", "country": "France", "city": "Paris", "area": "Marais"},
	))
	for i := 1; i <= 10; i++ {
		zone := "z1"
		switch {
		case i > 7:
			zone = "z3"
		case i > 4:
			zone = "z2"
		}
		id := fmt.Sprintf("p%02d", i)
		must(s.Insert(backend.TableProperties, backend.Row{
			"id": id, "title": "Flat " + id, "price": float64(100_000 * i),
			"bedrooms": 2, "bathrooms": 1, "area_sqm": 70.0,
			"status": "Buy", "cover_image": "/img/" + id, "zone_id": zone, "type_id": "apartment",
		}))
		d := backend.Row{"property_id": id, "ref_code": "REF-" + id}
		if i != 3 {
			d["lat"] = 40.0 + float64(i)/100
			d["lng"] = -3.0 - float64(i)/100
		}
		must(s.Insert(backend.TableDetails, d))
		must(s.Insert(backend.TableFeatures, backend.Row{
			"property_id": id, "pool": i%2 == 0, "garage": i%2 == 1,
		}))
	}
	return s
}

func TestExecute_CountryWindowAndTotal(t *testing.T) {
	store := newCounting(spainCatalog(t))
	ex := NewExecutor(nil, store, 5)

	st := filter.Decode("country=Spain&pmin=200&pmax=15000000&page=1")
	res, err := ex.Execute(context.Background(), st)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Items) != 5 || res.Total != 7 {
		t.Fatalf("items=%d total=%d want 5/7", len(res.Items), res.Total)
	}
	if got := res.Pagination().TotalPages; got != 2 {
		t.Fatalf("totalPages=%d want 2", got)
	}
	// p03 has no coordinates
	if len(res.Markers) != 6 {
		t.Fatalf("markers=%d want 6", len(res.Markers))
	}
	for _, it := range res.Items {
		if it.Location == "" || it.RefCode == "" {
			t.Fatalf("item not decorated: %+v", it)
		}
	}
	for _, m := range res.Markers {
		if m.City != "Madrid" && m.City != "Sevilla" {
			t.Fatalf("marker %s city=%q", m.ID, m.City)
		}
	}
}

func TestExecute_ListAndMarkersAgree(t *testing.T) {
	ex := NewExecutor(nil, spainCatalog(t), 100)
	res, err := ex.Execute(context.Background(), filter.Decode("province=madrid"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	listed := map[string]bool{}
	for _, it := range res.Items {
		listed[it.ID] = true
	}
	for _, m := range res.Markers {
		if !listed[m.ID] {
			t.Fatalf("marker %s not in list", m.ID)
		}
	}
	if len(res.Items) != 4 {
		t.Fatalf("items=%d want 4", len(res.Items))
	}
}

func TestExecute_EmptyFeatureAllowListShortCircuits(t *testing.T) {
	store := newCounting(spainCatalog(t))
	ex := NewExecutor(nil, store, 5)

	res, err := ex.Execute(context.Background(), filter.Decode("feat=pool,garage"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.ShortCircuit || len(res.Items) != 0 || len(res.Markers) != 0 || res.Total != 0 {
		t.Fatalf("want empty short-circuit result, got %+v", res)
	}
	if n := store.count(backend.TableProperties); n != 0 {
		t.Fatalf("properties queried %d times, want 0", n)
	}
	if n := store.count(backend.TableDetails); n != 0 {
		t.Fatalf("details queried %d times, want 0", n)
	}
}

func TestExecute_EmptyZoneSetStillQueries(t *testing.T) {
	store := newCounting(spainCatalog(t))
	ex := NewExecutor(nil, store, 5)

	res, err := ex.Execute(context.Background(), filter.Decode("country=Atlantis"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Total != 0 || len(res.Items) != 0 {
		t.Fatalf("want zero matches, got %+v", res)
	}
	if n := store.count(backend.TableProperties); n != 2 {
		t.Fatalf("properties queried %d times, want 2 (list and markers)", n)
	}
}

func TestExecute_RefCodeAllowList(t *testing.T) {
	ex := NewExecutor(nil, spainCatalog(t), 5)
	res, err := ex.Execute(context.Background(), filter.Decode("ref=ref-p04"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Total != 1 || res.Items[0].ID != "p04" {
		t.Fatalf("got %+v", res.Items)
	}
}

func TestExecute_PropagatesBackendFailure(t *testing.T) {
	store := newCounting(spainCatalog(t))
	store.setFail(backend.TableDetails)
	ex := NewExecutor(nil, store, 5)
	if _, err := ex.Execute(context.Background(), filter.Default()); err == nil {
		t.Fatal("expected error")
	}
}

func TestTracker_LaterEpochWins(t *testing.T) {
	tr := NewTracker()
	a := tr.Begin()
	b := tr.Begin()

	resB := Result{Total: 2, Page: 1, PageSize: 5}
	resA := Result{Total: 9, Page: 1, PageSize: 5}

	if got := tr.Complete(b, resB, nil); got != StatusApplied {
		t.Fatalf("B outcome=%s", got)
	}
	// A arrives after B
	if got := tr.Complete(a, resA, nil); got != StatusSuperseded {
		t.Fatalf("A outcome=%s", got)
	}
	snap := tr.Snapshot()
	if snap.Result.Total != 2 || snap.Status != StatusApplied || snap.Epoch != b {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestTracker_SupersededBeforeLatestKeepsFetching(t *testing.T) {
	tr := NewTracker()
	a := tr.Begin()
	tr.Begin()
	if got := tr.Complete(a, Result{Total: 1}, nil); got != StatusSuperseded {
		t.Fatalf("outcome=%s", got)
	}
	if s := tr.Snapshot(); s.Status != StatusFetching || s.Applied {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestTracker_FailureKeepsLastApplied(t *testing.T) {
	tr := NewTracker()
	e1 := tr.Begin()
	tr.Complete(e1, Result{Total: 3, Page: 1, PageSize: 5}, nil)

	e2 := tr.Begin()
	if got := tr.Complete(e2, Result{}, errors.New("timeout")); got != StatusFailed {
		t.Fatalf("outcome=%s", got)
	}
	s := tr.Snapshot()
	if s.Result.Total != 3 || s.Err == "" || s.Status != StatusFailed {
		t.Fatalf("snapshot=%+v", s)
	}
	tr.DismissError()
	if s := tr.Snapshot(); s.Err != "" || s.Result.Total != 3 {
		t.Fatalf("after dismiss=%+v", s)
	}
}

func TestTracker_FirstFailureIsEmpty(t *testing.T) {
	tr := NewTracker()
	e := tr.Begin()
	tr.Complete(e, Result{Total: 7, Page: 1, PageSize: 5}, errors.New("down"))
	s := tr.Snapshot()
	if s.Applied || s.Result.Total != 0 || len(s.Result.Items) != 0 {
		t.Fatalf("snapshot=%+v", s)
	}
}
