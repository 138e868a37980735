package cachedstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/backend/memstore"
	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/hotness"
	"github.com/mohammed-shakir/listing-search/internal/hotness/expdecay"
)

type countingStore struct {
	inner backend.Store
	n     atomic.Int32
}

func (c *countingStore) Select(ctx context.Context, q backend.Query) (backend.Result, error) {
	c.n.Add(1)
	return c.inner.Select(ctx, q)
}

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func fixture(t *testing.T) (*Store, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	ms := memstore.New()
	if err := memstore.Seed(ms); err != nil {
		t.Fatalf("seed: %v", err)
	}
	inner := &countingStore{inner: ms}
	rc, mr := newMini(t)
	s := New(inner, rc, Options{
		Hotness:   expdecay.New(time.Minute),
		Policy:    hotness.TTLPolicy{Threshold: 3, Cold: 10 * time.Second, Warm: time.Minute, Hot: 10 * time.Minute},
		OpTimeout: time.Second,
	})
	return s, inner, mr
}

var spainList = backend.Query{
	Table:   backend.TableProperties,
	Columns: []string{"id", "price", "bedrooms", "zone_id"},
	Where:   []backend.Condition{backend.In("zone_id", []string{"z-mad-ret", "z-mad-sal"}), backend.Gte("price", 200)},
	OrderBy: "id",
	Limit:   5,
	Count:   true,
}

func TestSelect_MissThenHit(t *testing.T) {
	s, inner, _ := fixture(t)
	ctx := context.Background()

	first, err := s.Select(ctx, spainList)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	second, err := s.Select(ctx, spainList)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if n := inner.n.Load(); n != 1 {
		t.Fatalf("backend hit %d times, want 1", n)
	}
	if second.Total != first.Total || len(second.Rows) != len(first.Rows) {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
	if second.Rows[0].String("id") != first.Rows[0].String("id") || second.Rows[0].Int("bedrooms") != first.Rows[0].Int("bedrooms") {
		t.Fatalf("row mismatch: %v vs %v", second.Rows[0], first.Rows[0])
	}
}

func TestInvalidate_BumpsGeneration(t *testing.T) {
	s, inner, mr := fixture(t)
	ctx := context.Background()

	_, _ = s.Select(ctx, spainList)
	if err := s.Invalidate(ctx, "test", backend.TableProperties); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if v, _ := mr.Get(keys.GenerationKey(backend.TableProperties)); v != "1" {
		t.Fatalf("generation=%q want 1", v)
	}
	_, _ = s.Select(ctx, spainList)
	if n := inner.n.Load(); n != 2 {
		t.Fatalf("backend hit %d times, want 2 after invalidation", n)
	}

	// other tables keep their entries
	zq := backend.Query{Table: backend.TableZones, Columns: []string{"id"}}
	_, _ = s.Select(ctx, zq)
	_ = s.Invalidate(ctx, "test", backend.TableProperties)
	_, _ = s.Select(ctx, zq)
	if n := inner.n.Load(); n != 3 {
		t.Fatalf("backend hit %d times, want 3", n)
	}

	if err := s.Invalidate(ctx, "test", "nope"); !errors.Is(err, backend.ErrUnknownTable) {
		t.Fatalf("err=%v", err)
	}
}

func TestTTL_FollowsHotness(t *testing.T) {
	s, _, mr := fixture(t)
	ctx := context.Background()

	q := backend.Query{Table: backend.TableZones, Columns: []string{"id", "city"}}
	_, _ = s.Select(ctx, q)
	key := keys.QueryKey(q.Table, 0, Canonical(q))
	if ttl := mr.TTL(key); ttl != 10*time.Second {
		t.Fatalf("cold ttl=%v", ttl)
	}

	// make the query hot, then force a refill
	for range 12 {
		_, _ = s.Select(ctx, q)
	}
	mr.Del(key)
	_, _ = s.Select(ctx, q)
	if ttl := mr.TTL(key); ttl != 10*time.Minute {
		t.Fatalf("hot ttl=%v", ttl)
	}
}

func TestSelect_FailsOpenWhenRedisDown(t *testing.T) {
	s, inner, mr := fixture(t)
	mr.Close()

	res, err := s.Select(context.Background(), spainList)
	if err != nil {
		t.Fatalf("select with redis down: %v", err)
	}
	if res.Total != 12 || inner.n.Load() != 1 {
		t.Fatalf("total=%d backend calls=%d", res.Total, inner.n.Load())
	}
}

func TestSelect_RejectsInvalidQuery(t *testing.T) {
	s, inner, _ := fixture(t)
	_, err := s.Select(context.Background(), backend.Query{Table: "users"})
	if !errors.Is(err, backend.ErrUnknownTable) {
		t.Fatalf("err=%v", err)
	}
	if inner.n.Load() != 0 {
		t.Fatal("invalid query reached the backend")
	}
}

func TestCanonical_Deterministic(t *testing.T) {
	a := Canonical(spainList)
	b := Canonical(spainList)
	if a != b {
		t.Fatalf("non-deterministic: %q vs %q", a, b)
	}
	other := spainList
	other.Offset = 5
	if Canonical(other) == a {
		t.Fatal("offset must be part of the canonical form")
	}
	withQuote := backend.Query{Table: backend.TableZones, Where: []backend.Condition{backend.ILike("city", `a","b`)}}
	split := backend.Query{Table: backend.TableZones, Where: []backend.Condition{backend.In("city", []string{"a", "b"})}}
	if Canonical(withQuote) == Canonical(split) {
		t.Fatal("quoting must keep values apart")
	}
}
