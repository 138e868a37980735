package h3mapper

import (
	"errors"
	"sort"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

func TestCellsForBounds_SortedUnique(t *testing.T) {
	m := New()
	b := model.Bounds{South: 40.40, West: -3.72, North: 40.45, East: -3.66}

	cells, err := m.CellsForBounds(b, 8)
	if err != nil {
		t.Fatalf("CellsForBounds err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bounds")
	}
	if !sort.StringsAreSorted(cells) {
		t.Fatalf("cells must be sorted")
	}
	seen := map[string]bool{}
	for _, c := range cells {
		if seen[c] {
			t.Fatalf("duplicate cell %s", c)
		}
		seen[c] = true
	}
}

func TestCellsForBounds_Errors(t *testing.T) {
	m := New()
	if _, err := m.CellsForBounds(model.Bounds{South: 1, North: 1, West: 0, East: 1}, 5); err == nil {
		t.Fatal("expected degenerate bounds error")
	}
	if _, err := m.CellsForBounds(model.Bounds{South: 0, North: 1, West: 0, East: 1}, 16); err == nil {
		t.Fatal("expected invalid resolution error")
	}
	world := model.Bounds{South: -60, West: -170, North: 60, East: 170}
	if _, err := m.CellsForBounds(world, 9); !errors.Is(err, ErrTooManyCells) {
		t.Fatalf("want ErrTooManyCells, got %v", err)
	}
}

func TestCellForPoint_ParentContainsChild(t *testing.T) {
	m := New()
	p := model.LatLng{Lat: 40.4153, Lng: -3.6845}

	fine, err := m.CellForPoint(p, MaxClusterRes)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	coarse, err := m.CellForPoint(p, 6)
	if err != nil {
		t.Fatalf("CellForPoint coarse: %v", err)
	}
	parent, err := m.ToParent(fine, 6)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	if parent != coarse {
		t.Fatalf("parent=%s want %s", parent, coarse)
	}
	if same, _ := m.ToParent(fine, MaxClusterRes); same != fine {
		t.Fatalf("same-resolution parent changed cell")
	}
	if _, err := m.ToParent(coarse, MaxClusterRes); err == nil {
		t.Fatal("expected error asking for a finer parent")
	}
}

func TestCellForPoint_RejectsOutOfRange(t *testing.T) {
	if _, err := New().CellForPoint(model.LatLng{Lat: 91}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestCellCenter_NearPoint(t *testing.T) {
	m := New()
	p := model.LatLng{Lat: 41.4036, Lng: 2.1564}
	c, err := m.CellForPoint(p, 9)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	ctr, err := m.CellCenter(c)
	if err != nil {
		t.Fatalf("CellCenter: %v", err)
	}
	if d := abs(ctr.Lat-p.Lat) + abs(ctr.Lng-p.Lng); d > 0.01 {
		t.Fatalf("center %v too far from %v", ctr, p)
	}
	if _, err := m.CellCenter("not-a-cell"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolutionForZoom_Monotonic(t *testing.T) {
	prev := -1
	for z := -2; z <= 22; z++ {
		r := ResolutionForZoom(z)
		if r < prev {
			t.Fatalf("zoom %d res %d < previous %d", z, r, prev)
		}
		if r < 0 || r > MaxClusterRes {
			t.Fatalf("zoom %d res %d out of range", z, r)
		}
		prev = r
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
