// Package composer turns a filter state into the ordered set of backend
// predicates a search cycle executes. It is pure: no I/O, no clock.
package composer

import (
	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/filter"
)

// ListColumns is the full projection for the paginated list.
var ListColumns = []string{
	"id", "title", "price", "bedrooms", "bathrooms", "area_sqm",
	"status", "cover_image", "zone_id", "type_id",
}

// MarkerColumns is the lighter projection used to build map markers.
var MarkerColumns = []string{"id", "price", "title", "zone_id", "cover_image"}

const defaultOrder = "id"

// Plan is the composed sequence: optional zone resolution, optional id
// allow-list resolution (features and reference code), then the property
// predicate shared by the list and the marker query.
type Plan struct {
	Zones    *backend.Query
	Features *backend.Query
	Refs     *backend.Query

	base []backend.Condition
}

// Resolved carries the outcome of the resolution steps into the property predicate.
type Resolved struct {
	ZoneIDs      []string
	ZonesApplied bool

	AllowIDs     []string
	AllowApplied bool
}

// NeedsAllowList reports whether an id allow-list gates the property query.
func (p Plan) NeedsAllowList() bool {
	return p.Features != nil || p.Refs != nil
}

func Compose(s filter.State) Plan {
	s = filter.Normalize(s)
	var p Plan

	if s.HasLocation() {
		q := backend.Query{Table: backend.TableZones, Columns: []string{"id"}}
		if s.Country != "" {
			q.Where = append(q.Where, backend.ILike("country", backend.EscapeLike(s.Country)))
		}
		if s.Province != "" {
			q.Where = append(q.Where, backend.ILike("city", backend.EscapeLike(s.Province)))
		}
		if s.Area != "" {
			q.Where = append(q.Where, backend.ILike("area", backend.EscapeLike(s.Area)))
		}
		p.Zones = &q
	}

	if len(s.FeatureKeys) > 0 {
		q := backend.Query{Table: backend.TableFeatures, Columns: []string{"property_id"}}
		// all selected features must hold, one equality per key
		for _, k := range s.FeatureKeys {
			q.Where = append(q.Where, backend.Eq(k, true))
		}
		p.Features = &q
	}

	if s.RefCode != "" {
		p.Refs = &backend.Query{
			Table:   backend.TableDetails,
			Columns: []string{"property_id"},
			Where:   []backend.Condition{backend.ILike("ref_code", backend.Contains(s.RefCode))},
		}
	}

	if s.Operation != "" {
		p.base = append(p.base, backend.ILike("status", backend.EscapeLike(string(s.Operation))))
	}
	if len(s.TypeIDs) > 0 {
		p.base = append(p.base, backend.In("type_id", s.TypeIDs))
	}
	if s.BedroomsMin != nil {
		p.base = append(p.base, backend.Gte("bedrooms", float64(*s.BedroomsMin)))
	}
	if s.BathroomsMin != nil {
		p.base = append(p.base, backend.Gte("bathrooms", float64(*s.BathroomsMin)))
	}
	if s.AreaMin != nil {
		p.base = append(p.base, backend.Gte("area_sqm", *s.AreaMin))
	}
	if s.AreaMax != nil {
		p.base = append(p.base, backend.Lte("area_sqm", *s.AreaMax))
	}
	lo, hi := s.PriceConstrained()
	if lo {
		p.base = append(p.base, backend.Gte("price", s.PriceMin))
	}
	if hi {
		p.base = append(p.base, backend.Lte("price", s.PriceMax))
	}
	return p
}

// PropertyWhere is the single source of the property predicate. A resolved
// but empty zone set still yields an explicit "zone_id in ()" constraint.
func (p Plan) PropertyWhere(r Resolved) []backend.Condition {
	out := make([]backend.Condition, 0, len(p.base)+2)
	if p.Zones != nil && r.ZonesApplied {
		out = append(out, backend.In("zone_id", nonNil(r.ZoneIDs)))
	}
	if p.NeedsAllowList() && r.AllowApplied {
		out = append(out, backend.In("id", nonNil(r.AllowIDs)))
	}
	return append(out, p.base...)
}

// ListQuery is the paginated window with total count.
func (p Plan) ListQuery(r Resolved, offset, limit int) backend.Query {
	return backend.Query{
		Table:   backend.TableProperties,
		Columns: ListColumns,
		Where:   p.PropertyWhere(r),
		OrderBy: defaultOrder,
		Limit:   limit,
		Offset:  offset,
		Count:   true,
	}
}

// MarkerQuery is the unbounded execution of the same predicate.
func (p Plan) MarkerQuery(r Resolved) backend.Query {
	return backend.Query{
		Table:   backend.TableProperties,
		Columns: MarkerColumns,
		Where:   p.PropertyWhere(r),
		OrderBy: defaultOrder,
	}
}

// Intersect combines two allow-lists; a nil side means "not constrained".
func Intersect(a, b []string, aSet, bSet bool) ([]string, bool) {
	switch {
	case !aSet && !bSet:
		return nil, false
	case !aSet:
		return nonNil(b), true
	case !bSet:
		return nonNil(a), true
	}
	in := make(map[string]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	out := []string{}
	for _, id := range a {
		if _, ok := in[id]; ok {
			out = append(out, id)
			delete(in, id)
		}
	}
	return out, true
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
