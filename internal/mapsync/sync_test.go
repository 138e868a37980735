package mapsync

import (
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

func markers(ids ...string) []model.Marker {
	out := make([]model.Marker, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.Marker{
			ID:    id,
			Lat:   40.40 + float64(i)*0.01,
			Lng:   -3.70 + float64(i)*0.01,
			Price: 1000,
			Title: "t-" + id,
		})
	}
	return out
}

func TestSetMarkers_FitsOncePerIDSet(t *testing.T) {
	s := New(Options{WidthPx: 800, HeightPx: 600})

	if !s.SetMarkers(markers("a", "b", "c")) {
		t.Fatal("first marker set should fit")
	}
	first := s.Viewport()

	// same ids, different order and prices
	again := markers("c", "b", "a")
	for i := range again {
		again[i].Price = 9_999
		again[i].Title = "changed"
	}
	again[0].Lat, again[2].Lat = again[2].Lat, again[0].Lat
	if s.SetMarkers(again) {
		t.Fatal("identical id set must not refit")
	}
	if s.Viewport() != first || s.Fits() != 1 {
		t.Fatalf("viewport moved: %+v vs %+v fits=%d", s.Viewport(), first, s.Fits())
	}

	if !s.SetMarkers(markers("a", "b")) {
		t.Fatal("new id set should fit while free")
	}
	if s.Fits() != 2 {
		t.Fatalf("fits=%d want 2", s.Fits())
	}
}

func TestSetMarkers_FrozenAfterUserInteraction(t *testing.T) {
	s := New(Options{})
	s.SetMarkers(markers("a", "b"))
	s.UserInteractionStart()
	vp := s.Viewport()

	for _, set := range [][]model.Marker{markers("x"), markers("x", "y", "z"), nil, markers("a")} {
		if s.SetMarkers(set) {
			t.Fatal("no fit allowed after user interaction")
		}
	}
	if s.Viewport() != vp || s.Mode() != ModeUserControlled {
		t.Fatalf("viewport or mode changed: %+v %s", s.Viewport(), s.Mode())
	}
}

func TestFitMarkers_SingleMarkerMinZoom(t *testing.T) {
	ms := markers("solo")
	vp, ok := FitMarkers(ms, Viewport{Zoom: 5}, 800, 600)
	if !ok || vp.Zoom != MinSingleMarkerZoom {
		t.Fatalf("vp=%+v ok=%v", vp, ok)
	}
	if vp.Center.Lat != ms[0].Lat || vp.Center.Lng != ms[0].Lng {
		t.Fatalf("center=%+v", vp.Center)
	}
	vp, _ = FitMarkers(ms, Viewport{Zoom: 16}, 800, 600)
	if vp.Zoom != 16 {
		t.Fatalf("zoom=%d want current zoom 16 kept", vp.Zoom)
	}
}

func TestFitMarkers_MultiplePadded(t *testing.T) {
	ms := []model.Marker{
		{ID: "a", Lat: 40.0, Lng: -4.0},
		{ID: "b", Lat: 41.0, Lng: -3.0},
	}
	vp, ok := FitMarkers(ms, DefaultViewport, 800, 600)
	if !ok {
		t.Fatal("expected fit")
	}
	want := model.Bounds{South: 39.8, West: -4.2, North: 41.2, East: -2.8}
	const eps = 1e-9
	if d := vp.Bounds.South - want.South + vp.Bounds.North - want.North; d > eps || d < -eps {
		t.Fatalf("bounds=%+v want %+v", vp.Bounds, want)
	}
	for _, m := range ms {
		if !vp.Bounds.Contains(model.LatLng{Lat: m.Lat, Lng: m.Lng}) {
			t.Fatalf("marker %s outside fitted bounds", m.ID)
		}
	}
	if vp.Zoom < 5 || vp.Zoom > 9 {
		t.Fatalf("zoom=%d looks wrong for a one-degree box", vp.Zoom)
	}
}

func TestFitMarkers_EmptyKeepsViewport(t *testing.T) {
	vp, ok := FitMarkers(nil, DefaultViewport, 800, 600)
	if ok || vp != DefaultViewport {
		t.Fatalf("vp=%+v ok=%v", vp, ok)
	}
}

func TestActiveIcon(t *testing.T) {
	s := New(Options{})
	s.SetMarkers(markers("a", "b"))
	s.SetActive("b")
	if s.IconFor("b") != IconActive || s.IconFor("a") != IconDefault {
		t.Fatal("icon swap not applied")
	}
	s.SetActive("")
	if s.IconFor("") != IconDefault {
		t.Fatal("empty id must never be active")
	}
}

func TestOverlay(t *testing.T) {
	s := New(Options{})
	s.SetRadius(true, 20)
	if s.Overlay() != nil {
		t.Fatal("no overlay without markers")
	}
	ms := markers("a", "b")
	s.SetMarkers(ms)
	ov := s.Overlay()
	if ov == nil || ov.Center.Lat != ms[0].Lat || ov.RadiusKm != 20 {
		t.Fatalf("overlay=%+v", ov)
	}
	s.SetRadius(false, 20)
	if s.Overlay() != nil {
		t.Fatal("overlay drawn with radius search off")
	}
}

func TestBoundsChanged_ForwardsCells(t *testing.T) {
	var got []BoundsEvent
	s := New(Options{WidthPx: 800, HeightPx: 600, OnBounds: func(ev BoundsEvent) { got = append(got, ev) }})
	s.UserInteractionStart()
	ev := s.BoundsChanged(Viewport{Center: model.LatLng{Lat: 40.4168, Lng: -3.7038}, Zoom: 13})
	if len(got) != 1 {
		t.Fatalf("forwarded %d events", len(got))
	}
	if len(ev.Cells) == 0 {
		t.Fatal("expected covering cells")
	}
	if s.Viewport().Zoom != 13 {
		t.Fatalf("viewport not recorded: %+v", s.Viewport())
	}
}

func TestClusters_GroupByZoom(t *testing.T) {
	s := New(Options{})
	s.SetMarkers([]model.Marker{
		{ID: "a", Lat: 40.4153, Lng: -3.6845},
		{ID: "b", Lat: 40.4155, Lng: -3.6847},
		{ID: "c", Lat: 41.4036, Lng: 2.1564},
	})
	s.SetActive("a")

	coarse := s.ClustersAt(5)
	if len(coarse) != 2 {
		t.Fatalf("coarse clusters=%d want 2: %+v", len(coarse), coarse)
	}
	total := 0
	active := 0
	for _, c := range coarse {
		total += c.Count
		if c.Active {
			active++
		}
	}
	if total != 3 || active != 1 {
		t.Fatalf("total=%d active=%d", total, active)
	}

	fine := s.ClustersAt(MaxZoom)
	if len(fine) < len(coarse) {
		t.Fatalf("finer zoom produced fewer clusters: %d < %d", len(fine), len(coarse))
	}
}

func TestSignature_OrderIndependent(t *testing.T) {
	if Signature(markers("a", "b")) != Signature(markers("b", "a")) {
		t.Fatal("signature depends on order")
	}
	if Signature(markers("a")) == Signature(markers("a", "b")) {
		t.Fatal("signature ignores membership")
	}
}

func TestClusters_MovedMarkerIsReindexed(t *testing.T) {
	s := New(Options{})
	s.SetMarkers([]model.Marker{
		{ID: "a", Lat: 40.4168, Lng: -3.7038},
		{ID: "b", Lat: 41.3874, Lng: 2.1686},
	})
	if got := len(s.ClustersAt(15)); got != 2 {
		t.Fatalf("clusters=%d want 2", got)
	}

	// Same ids, a now sits exactly on b.
	s.SetMarkers([]model.Marker{
		{ID: "a", Lat: 41.3874, Lng: 2.1686},
		{ID: "b", Lat: 41.3874, Lng: 2.1686},
	})
	got := s.ClustersAt(15)
	if len(got) != 1 || got[0].Count != 2 {
		t.Fatalf("moved marker kept its old cell: %+v", got)
	}
	if got[0].Center != (model.LatLng{Lat: 41.3874, Lng: 2.1686}) {
		t.Fatalf("center=%+v", got[0].Center)
	}
}
