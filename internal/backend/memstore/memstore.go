// Package memstore is an in-memory implementation of the backend query
// service, used for tests and for running the service without PostgreSQL.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/text/cases"

	"github.com/mohammed-shakir/listing-search/internal/backend"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string][]backend.Row
}

var _ backend.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: map[string][]backend.Row{}}
}

// Insert appends rows to table; unknown tables are rejected.
func (s *Store) Insert(table string, rows ...backend.Row) error {
	if _, ok := backend.Schema[table]; !ok {
		return fmt.Errorf("insert into %q: %w", table, backend.ErrUnknownTable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], r.Project(nil))
	}
	return nil
}

func (s *Store) Select(ctx context.Context, q backend.Query) (backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return backend.Result{}, fmt.Errorf("memstore select %s: %w", q.Table, err)
	}
	if err := q.Validate(); err != nil {
		return backend.Result{}, fmt.Errorf("memstore select %s: %w", q.Table, err)
	}

	// a Caser is stateful, one per call
	fold := cases.Fold()

	s.mu.RLock()
	src := s.tables[q.Table]
	matched := make([]backend.Row, 0, len(src))
	for _, r := range src {
		if matches(fold, r, q) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		slices.SortStableFunc(matched, func(a, b backend.Row) int {
			c := compareValues(a[q.OrderBy], b[q.OrderBy])
			if q.Desc {
				return -c
			}
			return c
		})
	}

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := backend.Result{Rows: make([]backend.Row, 0, len(matched))}
	for _, r := range matched {
		out.Rows = append(out.Rows, r.Project(q.Columns))
	}
	if q.Count {
		out.Total = total
	}
	return out, nil
}

func matches(fold cases.Caser, r backend.Row, q backend.Query) bool {
	for _, c := range q.Where {
		if !holds(fold, r, c) {
			return false
		}
	}
	if len(q.AnyOf) == 0 {
		return true
	}
	for _, c := range q.AnyOf {
		if holds(fold, r, c) {
			return true
		}
	}
	return false
}

func holds(fold cases.Caser, r backend.Row, c backend.Condition) bool {
	v, present := r[c.Field]
	switch c.Op {
	case backend.OpEq:
		return present && compareValues(v, c.Value) == 0 && v != nil
	case backend.OpILike:
		pat, _ := c.Value.(string)
		str, ok := v.(string)
		return ok && likeMatch([]rune(fold.String(pat)), []rune(fold.String(str)))
	case backend.OpIn:
		ids, _ := c.Value.([]string)
		if v == nil {
			return false
		}
		return slices.Contains(ids, r.String(c.Field))
	case backend.OpGte:
		a, aok := asFloat(v)
		b, bok := asFloat(c.Value)
		return aok && bok && a >= b
	case backend.OpLte:
		a, aok := asFloat(v)
		b, bok := asFloat(c.Value)
		return aok && bok && a <= b
	default:
		return false
	}
}

// likeMatch implements SQL LIKE over runes: % any run, _ one rune, \ escapes.
func likeMatch(p, s []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(p, s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		case '\\':
			if len(p) > 1 {
				p = p[1:]
			}
			fallthrough
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// compareValues orders nils first, then numbers, bools and strings.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return -1
		}
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr && !bStr {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if aok && bok {
			return cmp.Compare(af, bf)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
