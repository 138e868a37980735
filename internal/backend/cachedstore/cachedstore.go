// Package cachedstore is a read-through Redis cache in front of a backend
// query service. Each table has a generation counter in Redis; bumping it
// retires every cached select of that table at once. TTLs follow the
// decayed popularity of each query.
package cachedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/hotness"
	"github.com/mohammed-shakir/listing-search/internal/logger"
)

// Cache is the subset of the Redis client the store needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Int(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

type Options struct {
	Logger    *slog.Logger
	Hotness   hotness.Interface
	Policy    hotness.TTLPolicy
	OpTimeout time.Duration
}

type Store struct {
	inner     backend.Store
	cache     Cache
	hot       hotness.Interface
	policy    hotness.TTLPolicy
	opTimeout time.Duration
	logger    *slog.Logger
}

var _ backend.Store = (*Store)(nil)

func New(inner backend.Store, cache Cache, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 50 * time.Millisecond
	}
	if opts.Policy.Cold <= 0 {
		opts.Policy.Cold = 30 * time.Second
	}
	return &Store{
		inner:     inner,
		cache:     cache,
		hot:       opts.Hotness,
		policy:    opts.Policy,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger,
	}
}

// Select serves from Redis when possible. Any cache failure falls back to
// the backend; the cache never turns a good query into an error.
func (s *Store) Select(ctx context.Context, q backend.Query) (backend.Result, error) {
	if err := q.Validate(); err != nil {
		return backend.Result{}, fmt.Errorf("cached select %s: %w", q.Table, err)
	}

	gen, err := s.generation(ctx, q.Table)
	if err != nil {
		s.logger.WarnContext(ctx, "cache generation unavailable, bypassing", "table", q.Table, "err", err)
		return s.inner.Select(ctx, q)
	}
	key := keys.QueryKey(q.Table, gen, Canonical(q))
	if s.hot != nil {
		s.hot.Inc(key)
	}

	if res, ok := s.lookup(ctx, key); ok {
		observability.IncCacheHit()
		s.logger.DebugContext(logger.WithCacheOutcome(ctx, "hit"), "query cache", "table", q.Table)
		return res, nil
	}
	observability.IncCacheMiss()

	res, err := s.inner.Select(ctx, q)
	if err != nil {
		return res, err
	}
	s.store(ctx, key, res)
	s.logger.DebugContext(logger.WithCacheOutcome(ctx, "miss"), "query cache", "table", q.Table, "rows", len(res.Rows))
	return res, nil
}

// Invalidate bumps the generation of each table so its cached selects are no
// longer addressed. Old entries expire on their own.
func (s *Store) Invalidate(ctx context.Context, source string, tables ...string) error {
	for _, t := range tables {
		if _, ok := backend.Schema[t]; !ok {
			return fmt.Errorf("invalidate %q: %w", t, backend.ErrUnknownTable)
		}
		if _, err := s.cache.Incr(ctx, keys.GenerationKey(t)); err != nil {
			return fmt.Errorf("invalidate %s: %w", t, err)
		}
		observability.IncInvalidation(t, source)
	}
	return nil
}

func (s *Store) generation(ctx context.Context, table string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.cache.Int(cctx, keys.GenerationKey(table))
}

func (s *Store) lookup(ctx context.Context, key string) (backend.Result, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	raw, ok, err := s.cache.Get(cctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "err", err)
		return backend.Result{}, false
	}
	if !ok {
		return backend.Result{}, false
	}
	var res backend.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		s.logger.WarnContext(ctx, "cache entry undecodable", "err", err)
		return backend.Result{}, false
	}
	return res, true
}

func (s *Store) store(ctx context.Context, key string, res backend.Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		s.logger.WarnContext(ctx, "cache entry unencodable", "err", err)
		return
	}
	score := 0.0
	if s.hot != nil {
		score = s.hot.Score(key)
	}
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.cache.Set(cctx, key, raw, s.policy.TTL(score)); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "err", err)
	}
}

// Canonical renders q deterministically; equal queries give equal strings.
func Canonical(q backend.Query) string {
	var b strings.Builder
	b.WriteString("t=" + q.Table)
	b.WriteString("|c=" + strings.Join(q.Columns, ","))
	writeConds := func(tag string, cs []backend.Condition) {
		b.WriteString("|" + tag + "=")
		for i, c := range cs {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(c.Field + " " + string(c.Op) + " " + formatValue(c.Value))
		}
	}
	writeConds("w", q.Where)
	writeConds("any", q.AnyOf)
	fmt.Fprintf(&b, "|o=%s|d=%t|l=%d|off=%d|n=%t", q.OrderBy, q.Desc, q.Limit, q.Offset, q.Count)
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = strconv.Quote(s)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
