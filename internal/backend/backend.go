// Package backend describes the relational query service the search
// subsystem consumes: single-table selects with equality, ILIKE, membership
// and range predicates, optional row counts and column projection.
package backend

import (
	"context"
	"errors"
	"strings"
)

const (
	TableZones      = "zones"
	TableTypes      = "property_types"
	TableFeatures   = "property_features"
	TableProperties = "properties"
	TableDetails    = "property_details"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
	ErrBadCondition  = errors.New("bad condition")
)

type Op string

const (
	OpEq    Op = "eq"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
)

type Condition struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Condition { return Condition{Field: field, Op: OpEq, Value: v} }
func ILike(field, pattern string) Condition {
	return Condition{Field: field, Op: OpILike, Value: pattern}
}
func In(field string, ids []string) Condition { return Condition{Field: field, Op: OpIn, Value: ids} }
func Gte(field string, v float64) Condition   { return Condition{Field: field, Op: OpGte, Value: v} }
func Lte(field string, v float64) Condition   { return Condition{Field: field, Op: OpLte, Value: v} }

// Query is one select. All Where conditions must hold; when AnyOf is
// non-empty at least one of them must hold as well.
type Query struct {
	Table   string
	Columns []string
	Where   []Condition
	AnyOf   []Condition
	OrderBy string
	Desc    bool
	Limit   int // 0 = unbounded
	Offset  int
	Count   bool
}

type Result struct {
	Rows  []Row
	Total int // only set when Query.Count
}

type Store interface {
	Select(ctx context.Context, q Query) (Result, error)
}

// EscapeLike escapes ILIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Contains builds a case-insensitive substring pattern.
func Contains(s string) string {
	return "%" + EscapeLike(s) + "%"
}

// Schema lists the columns each table exposes. Adapters reject anything else.
var Schema = map[string][]string{
	TableZones:      {"id", "country", "city", "area"},
	TableTypes:      {"id", "name", "slug"},
	TableFeatures:   append([]string{"property_id"}, featureColumns...),
	TableProperties: {"id", "title", "price", "bedrooms", "bathrooms", "area_sqm", "status", "cover_image", "zone_id", "type_id"},
	TableDetails:    {"property_id", "lat", "lng", "ref_code"},
}

var featureColumns = []string{
	"air_conditioning", "elevator", "furnished", "garage", "garden",
	"parking", "pool", "sea_view", "storage", "terrace",
}

func HasColumn(table, col string) bool {
	for _, c := range Schema[table] {
		if c == col {
			return true
		}
	}
	return false
}

// Validate checks table, projection and predicate columns against Schema.
func (q Query) Validate() error {
	if _, ok := Schema[q.Table]; !ok {
		return ErrUnknownTable
	}
	check := func(c string) error {
		if !HasColumn(q.Table, c) {
			return ErrUnknownColumn
		}
		return nil
	}
	for _, c := range q.Columns {
		if err := check(c); err != nil {
			return err
		}
	}
	for _, c := range append(append([]Condition{}, q.Where...), q.AnyOf...) {
		if err := check(c.Field); err != nil {
			return err
		}
		switch c.Op {
		case OpEq, OpGte, OpLte:
		case OpILike:
			if _, ok := c.Value.(string); !ok {
				return ErrBadCondition
			}
		case OpIn:
			if _, ok := c.Value.([]string); !ok {
				return ErrBadCondition
			}
		default:
			return ErrBadCondition
		}
	}
	if q.OrderBy != "" {
		if err := check(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return ErrBadCondition
	}
	return nil
}
