// Package autocomplete suggests locations from the zones catalog while the
// user types, and applies a chosen suggestion or the device position to the
// filter store.
package autocomplete

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/cases"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

const (
	MinChars     = 2
	DefaultLimit = 20

	memoSize = 512
	memoTTL  = time.Minute
	// zones scanned per lookup before de-duplication
	scanLimit = 500
)

var ErrTooShort = errors.New("autocomplete: query too short")

// Suggestion is one distinct (country, city, area) location.
type Suggestion struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Area    string `json:"area"`
	Label   string `json:"label"`
}

func (s Suggestion) key(fold cases.Caser) string {
	return fold.String(s.Country) + "\x00" + fold.String(s.City) + "\x00" + fold.String(s.Area)
}

type Catalog interface {
	Search(ctx context.Context, q string, limit int) ([]Suggestion, error)
}

// ZoneCatalog searches the zones table and memoizes recent answers.
type ZoneCatalog struct {
	store  backend.Store
	logger *slog.Logger
	memo   *expirable.LRU[string, []Suggestion]
}

var _ Catalog = (*ZoneCatalog)(nil)

func NewZoneCatalog(logger *slog.Logger, store backend.Store) *ZoneCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoneCatalog{
		store:  store,
		logger: logger,
		memo:   expirable.NewLRU[string, []Suggestion](memoSize, nil, memoTTL),
	}
}

// ValidQuery trims q and checks the minimum length in characters.
func ValidQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinChars {
		return q, ErrTooShort
	}
	return q, nil
}

// Search returns up to limit case-insensitive substring matches across
// country, city and area, de-duplicated by the triple.
func (c *ZoneCatalog) Search(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	q, err := ValidQuery(q)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	fold := cases.Fold()
	memoKey := fmt.Sprintf("%s|%d", fold.String(q), limit)
	if v, ok := c.memo.Get(memoKey); ok {
		return slices.Clone(v), nil
	}

	pat := backend.Contains(q)
	res, err := c.store.Select(ctx, backend.Query{
		Table:   backend.TableZones,
		Columns: []string{"id", "country", "city", "area"},
		AnyOf: []backend.Condition{
			backend.ILike("country", pat),
			backend.ILike("city", pat),
			backend.ILike("area", pat),
		},
		OrderBy: "country",
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("zone suggestions: %w", err)
	}

	needle := fold.String(q)
	seen := map[string]struct{}{}
	out := make([]Suggestion, 0, min(limit, len(res.Rows)))
	for _, r := range res.Rows {
		z := model.Zone{Country: r.String("country"), City: r.String("city"), Area: r.String("area")}
		// backends with a looser ILIKE collation must not widen the match
		if !strings.Contains(fold.String(z.Country), needle) &&
			!strings.Contains(fold.String(z.City), needle) &&
			!strings.Contains(fold.String(z.Area), needle) {
			continue
		}
		s := Suggestion{Country: z.Country, City: z.City, Area: z.Area, Label: z.Label()}
		k := s.key(fold)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return strings.Compare(a.key(fold), b.key(fold))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	c.memo.Add(memoKey, slices.Clone(out))
	c.logger.Debug("zone suggestions", "q", q, "n", len(out))
	return out, nil
}

// Purge drops memoized answers, e.g. after the zones catalog changed.
func (c *ZoneCatalog) Purge() { c.memo.Purge() }
