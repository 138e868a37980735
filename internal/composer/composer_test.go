package composer

import (
	"reflect"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/filter"
)

func ptr[T any](v T) *T { return &v }

func find(conds []backend.Condition, field string) (backend.Condition, bool) {
	for _, c := range conds {
		if c.Field == field {
			return c, true
		}
	}
	return backend.Condition{}, false
}

func TestCompose_DefaultStateHasNoSteps(t *testing.T) {
	p := Compose(filter.Default())
	if p.Zones != nil || p.Features != nil || p.Refs != nil {
		t.Fatalf("unexpected resolution steps: %+v", p)
	}
	if w := p.PropertyWhere(Resolved{}); len(w) != 0 {
		t.Fatalf("default state produced predicates: %+v", w)
	}
}

func TestCompose_ZoneResolutionOnlyWhenLocationSet(t *testing.T) {
	s := filter.Default()
	s.Province = "Madrid"
	p := Compose(s)
	if p.Zones == nil {
		t.Fatal("expected zone resolution")
	}
	if len(p.Zones.Where) != 1 || p.Zones.Where[0].Field != "city" {
		t.Fatalf("zone predicate=%+v", p.Zones.Where)
	}
}

func TestPropertyWhere_EmptyZoneSetIsExplicit(t *testing.T) {
	s := filter.Default()
	s.Country = "Atlantis"
	p := Compose(s)

	w := p.PropertyWhere(Resolved{ZonesApplied: true})
	c, ok := find(w, "zone_id")
	if !ok {
		t.Fatal("zone constraint dropped for empty resolution")
	}
	if ids, _ := c.Value.([]string); ids == nil || len(ids) != 0 {
		t.Fatalf("want explicit empty id list, got %#v", c.Value)
	}
}

func TestCompose_FeaturesAreANDedEqualities(t *testing.T) {
	s := filter.Default()
	s.FeatureKeys = []string{"pool", "garage"}
	p := Compose(s)
	if p.Features == nil {
		t.Fatal("expected feature resolution")
	}
	want := []backend.Condition{backend.Eq("garage", true), backend.Eq("pool", true)}
	if !reflect.DeepEqual(p.Features.Where, want) {
		t.Fatalf("feature where=%+v want %+v", p.Features.Where, want)
	}
	if len(p.Features.AnyOf) != 0 {
		t.Fatal("features must not be OR-ed")
	}
}

func TestCompose_AllPropertyConstraints(t *testing.T) {
	s := filter.State{
		Operation:    model.OpRent,
		TypeIDs:      []string{"flat"},
		BedroomsMin:  ptr(2),
		BathroomsMin: ptr(1),
		AreaMin:      ptr(50.0),
		AreaMax:      ptr(90.0),
		PriceMin:     600,
		PriceMax:     1200,
		Page:         1,
	}
	p := Compose(s)
	w := p.PropertyWhere(Resolved{})

	checks := []struct {
		field string
		op    backend.Op
	}{
		{"status", backend.OpILike},
		{"type_id", backend.OpIn},
		{"bedrooms", backend.OpGte},
		{"bathrooms", backend.OpGte},
	}
	for _, c := range checks {
		got, ok := find(w, c.field)
		if !ok || got.Op != c.op {
			t.Fatalf("%s: got %+v ok=%v", c.field, got, ok)
		}
	}
	var gte, lte int
	for _, c := range w {
		if c.Field == "price" || c.Field == "area_sqm" {
			switch c.Op {
			case backend.OpGte:
				gte++
			case backend.OpLte:
				lte++
			}
		}
	}
	if gte != 2 || lte != 2 {
		t.Fatalf("range predicates gte=%d lte=%d want 2/2", gte, lte)
	}
}

func TestListAndMarkerQueriesAreFilterIdentical(t *testing.T) {
	s := filter.Default()
	s.Country = "Spain"
	s.FeatureKeys = []string{"pool"}
	s.BedroomsMin = ptr(2)
	s.PriceMax = 500_000
	p := Compose(s)
	r := Resolved{ZoneIDs: []string{"z1"}, ZonesApplied: true, AllowIDs: []string{"p1", "p2"}, AllowApplied: true}

	list := p.ListQuery(r, 10, 5)
	markers := p.MarkerQuery(r)
	if !reflect.DeepEqual(list.Where, markers.Where) {
		t.Fatalf("predicates drifted:\n%+v\n%+v", list.Where, markers.Where)
	}
	if markers.Limit != 0 || markers.Count {
		t.Fatalf("marker query must be unbounded and uncounted: %+v", markers)
	}
	if !list.Count || list.Limit != 5 || list.Offset != 10 {
		t.Fatalf("list window wrong: %+v", list)
	}
}

func TestCompose_RefCodeBuildsAllowList(t *testing.T) {
	s := filter.Default()
	s.RefCode = "MAL_1"
	p := Compose(s)
	if p.Refs == nil || !p.NeedsAllowList() {
		t.Fatal("ref code should resolve an allow-list")
	}
	if got := p.Refs.Where[0].Value; got != `%MAL\_1%` {
		t.Fatalf("pattern=%v", got)
	}
}

func TestIntersect(t *testing.T) {
	got, set := Intersect([]string{"a", "b", "c"}, []string{"c", "a", "z"}, true, true)
	if !set || !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("got %v set=%v", got, set)
	}
	got, set = Intersect(nil, []string{"x"}, false, true)
	if !set || !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("one-sided: %v %v", got, set)
	}
	if _, set := Intersect(nil, nil, false, false); set {
		t.Fatal("unconstrained intersect reported set")
	}
}
