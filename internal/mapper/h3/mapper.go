package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/mapper"
)

// MaxCellsPerQuery caps viewport coverage so a world-sized box at a fine
// resolution cannot explode.
const MaxCellsPerQuery = 4096

var ErrTooManyCells = errors.New("h3: too many cells for bounds")

type Mapper struct{}

var _ mapper.Interface = (*Mapper)(nil)

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellForPoint(p model.LatLng, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return "", fmt.Errorf("point out of range: %v,%v", p.Lat, p.Lng)
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lng}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForBounds covers a viewport box with cells, sorted and unique.
func (m *Mapper) CellsForBounds(b model.Bounds, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if b.North <= b.South || b.East <= b.West {
		return nil, fmt.Errorf("degenerate bounds %s", b)
	}
	if est := estimateCells(b, res); est > 2*MaxCellsPerQuery {
		return nil, fmt.Errorf("%w: about %.0f at res %d", ErrTooManyCells, est, res)
	}
	// Build a rectangular loop. v4 wants degrees.
	outer := h3.GeoLoop{
		{Lat: b.South, Lng: b.West},
		{Lat: b.South, Lng: b.East},
		{Lat: b.North, Lng: b.East},
		{Lat: b.North, Lng: b.West},
	}
	return polyfillOne(outer, res)
}

func (m *Mapper) CellCenter(cell string) (model.LatLng, error) {
	c, err := parseCell(cell)
	if err != nil {
		return model.LatLng{}, err
	}
	ll, err := h3.CellToLatLng(c)
	if err != nil {
		return model.LatLng{}, fmt.Errorf("h3 center: %w", err)
	}
	return model.LatLng{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// --- helpers ---

// res0AvgHexKm2 is the average res-0 cell area; each finer resolution is ~1/7.
const res0AvgHexKm2 = 4_357_449.4

// estimateCells approximates the cell count from the box's surface area so
// huge boxes are rejected before polyfill allocates them.
func estimateCells(b model.Bounds, res int) float64 {
	const kmPerDeg = 111.32
	midLat := (b.North + b.South) / 2 * math.Pi / 180
	area := (b.North - b.South) * kmPerDeg * (b.East - b.West) * kmPerDeg * math.Cos(midLat)
	return area / (res0AvgHexKm2 / math.Pow(7, float64(res)))
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return c, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return c, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

// polyfillOne computes unique cells and returns them sorted for determinism.
func polyfillOne(outer h3.GeoLoop, res int) ([]string, error) {
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	if len(indexes) > MaxCellsPerQuery {
		return nil, fmt.Errorf("%w: %d at res %d", ErrTooManyCells, len(indexes), res)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
