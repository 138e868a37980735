// Package filter holds the search filter state and its flat query-string codec.
package filter

import (
	"math"
	"slices"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

const (
	PriceFloor   = 200.0
	PriceCeiling = 15_000_000.0

	RoomsMax   = 50
	AreaMax    = 1_000_000.0
	RadiusMin  = 1.0
	RadiusMax  = 500.0
	PageMax    = 10_000
	DefaultRad = 20.0
)

// KnownFeatures is the amenity catalog; each key is a boolean column of the feature table.
var KnownFeatures = []string{
	"air_conditioning",
	"elevator",
	"furnished",
	"garage",
	"garden",
	"parking",
	"pool",
	"sea_view",
	"storage",
	"terrace",
}

func IsKnownFeature(k string) bool {
	_, ok := slices.BinarySearch(KnownFeatures, k)
	return ok
}

// State is the structured filter. Nil pointers and empty strings/sets mean
// "unconstrained"; prices at their floor/ceiling are unconstrained too.
type State struct {
	Operation    model.Operation
	Country      string
	Province     string
	Area         string
	LocationText string
	UseRadius    bool
	RadiusKm     float64 // 0 = never set
	CenterLat    *float64
	CenterLng    *float64
	TypeIDs      []string
	BedroomsMin  *int
	BathroomsMin *int
	AreaMin      *float64
	AreaMax      *float64
	PriceMin     float64
	PriceMax     float64
	FeatureKeys  []string
	RefCode      string
	Page         int
}

func Default() State {
	return State{PriceMin: PriceFloor, PriceMax: PriceCeiling, Page: 1}
}

// Clone deep-copies slices and pointers so the copy can be mutated freely.
func (s State) Clone() State {
	out := s
	out.TypeIDs = slices.Clone(s.TypeIDs)
	out.FeatureKeys = slices.Clone(s.FeatureKeys)
	out.CenterLat = clonePtr(s.CenterLat)
	out.CenterLng = clonePtr(s.CenterLng)
	out.BedroomsMin = clonePtr(s.BedroomsMin)
	out.BathroomsMin = clonePtr(s.BathroomsMin)
	out.AreaMin = clonePtr(s.AreaMin)
	out.AreaMax = clonePtr(s.AreaMax)
	return out
}

// HasLocation reports whether any zone dimension is constrained.
func (s State) HasLocation() bool {
	return s.Country != "" || s.Province != "" || s.Area != ""
}

// HasCenter reports whether a radius center is known.
func (s State) HasCenter() bool {
	return s.CenterLat != nil && s.CenterLng != nil
}

// EffectiveRadiusKm falls back to the default radius when none was set.
func (s State) EffectiveRadiusKm() float64 {
	if s.RadiusKm <= 0 {
		return DefaultRad
	}
	return s.RadiusKm
}

func (s State) PriceConstrained() (lo, hi bool) {
	return s.PriceMin > PriceFloor, s.PriceMax < PriceCeiling
}

// SetPriceRange clamps both ends into bounds and keeps min <= max.
func (s *State) SetPriceRange(lo, hi float64) {
	s.PriceMin, s.PriceMax = ClampPrice(lo, hi)
}

// ClampPrice returns 200 <= lo <= hi <= 15_000_000 for any input.
func ClampPrice(lo, hi float64) (float64, float64) {
	if math.IsNaN(lo) {
		lo = PriceFloor
	}
	if math.IsNaN(hi) {
		hi = PriceCeiling
	}
	lo = clampF(lo, PriceFloor, PriceCeiling)
	hi = clampF(hi, PriceFloor, PriceCeiling)
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Normalize applies every bound and canonical ordering; Decode(Encode(s)) == Normalize(s).
func Normalize(s State) State {
	out := s.Clone()
	out.Operation = model.ParseOperation(string(s.Operation))
	out.Country = strings.TrimSpace(s.Country)
	out.Province = strings.TrimSpace(s.Province)
	out.Area = strings.TrimSpace(s.Area)
	out.LocationText = strings.TrimSpace(s.LocationText)
	out.RefCode = strings.TrimSpace(s.RefCode)

	// Ids are comma-joined on the wire, so an id containing one is invalid.
	out.TypeIDs = canonicalSet(s.TypeIDs, func(id string) (string, bool) {
		return id, !strings.Contains(id, ",")
	})
	out.FeatureKeys = canonicalSet(s.FeatureKeys, func(k string) (string, bool) {
		k = strings.ToLower(k)
		return k, IsKnownFeature(k)
	})

	out.BedroomsMin = clampIntPtr(out.BedroomsMin, 0, RoomsMax)
	out.BathroomsMin = clampIntPtr(out.BathroomsMin, 0, RoomsMax)
	out.AreaMin = clampFloatPtr(out.AreaMin, 0, AreaMax)
	out.AreaMax = clampFloatPtr(out.AreaMax, 0, AreaMax)
	if out.AreaMin != nil && out.AreaMax != nil && *out.AreaMin > *out.AreaMax {
		*out.AreaMin = *out.AreaMax
	}

	out.PriceMin, out.PriceMax = ClampPrice(s.PriceMin, s.PriceMax)

	switch {
	case math.IsNaN(s.RadiusKm) || s.RadiusKm <= 0:
		out.RadiusKm = 0
	default:
		out.RadiusKm = clampF(s.RadiusKm, RadiusMin, RadiusMax)
	}

	out.CenterLat = clampFloatPtr(out.CenterLat, -90, 90)
	out.CenterLng = clampFloatPtr(out.CenterLng, -180, 180)
	if out.CenterLat == nil || out.CenterLng == nil {
		out.CenterLat, out.CenterLng = nil, nil
	}

	if out.Page < 1 {
		out.Page = 1
	}
	if out.Page > PageMax {
		out.Page = PageMax
	}
	return out
}

func canonicalSet(in []string, keep func(string) (string, bool)) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if keep != nil {
			var ok bool
			if v, ok = keep(v); !ok {
				continue
			}
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampIntPtr(p *int, lo, hi int) *int {
	if p == nil {
		return nil
	}
	v := min(max(*p, lo), hi)
	return &v
}

func clampFloatPtr(p *float64, lo, hi float64) *float64 {
	if p == nil || math.IsNaN(*p) {
		return nil
	}
	v := clampF(*p, lo, hi)
	return &v
}
