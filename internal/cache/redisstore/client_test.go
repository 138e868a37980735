package redisstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get=%q ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k1"); ok {
		t.Fatal("key survived Del")
	}
}

func TestSet_TTLApplied(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl", []byte("x"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("ttl"); ttl <= 0 || ttl > 2*time.Second {
		t.Fatalf("ttl=%v", ttl)
	}
	mr.FastForward(3 * time.Second)
	if _, ok, _ := rc.Get(ctx, "ttl"); ok {
		t.Fatal("key should have expired")
	}
}

func TestIncrAndInt(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	if n, err := rc.Int(ctx, "gen"); err != nil || n != 0 {
		t.Fatalf("missing counter: n=%d err=%v", n, err)
	}
	for want := int64(1); want <= 3; want++ {
		n, err := rc.Incr(ctx, "gen")
		if err != nil || n != want {
			t.Fatalf("Incr=%d err=%v want %d", n, err, want)
		}
	}
	if n, err := rc.Int(ctx, "gen"); err != nil || n != 3 {
		t.Fatalf("Int=%d err=%v", n, err)
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if _, err := rc.Incr(ctx, "k"); err == nil {
		t.Fatalf("expected error on Incr with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestMetrics_Incremented(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "m1", []byte("x"), time.Minute)
	_, _, _ = rc.Get(ctx, "m1")
	_, _ = rc.Incr(ctx, "m2")
	_ = rc.Del(ctx, "m1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, op := range []string{"set", "get", "incr", "del"} {
		if !strings.Contains(body, `cache_op_total{op="`+op+`"`) {
			t.Fatalf("missing cache_op_total for %s; got:\n%s", op, body)
		}
	}
	if !strings.Contains(body, `redis_operation_duration_seconds_bucket{op="set"`) {
		t.Fatalf("missing redis_operation_duration_seconds histogram; got:\n%s", body)
	}
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	o := &redis.Options{PoolSize: 64, MinIdleConns: 4, ReadTimeout: time.Second}
	for _, f := range []Option{WithPoolSize(0), WithMinIdleConns(-1), WithReadTimeout(0)} {
		f(o)
	}
	if o.PoolSize != 64 || o.MinIdleConns != 4 || o.ReadTimeout != time.Second {
		t.Fatalf("zero options overrode defaults: %+v", o)
	}
	WithPoolSize(8)(o)
	WithWriteTimeout(50 * time.Millisecond)(o)
	WithDialTimeout(time.Millisecond)(o)
	if o.PoolSize != 8 || o.WriteTimeout != 50*time.Millisecond || o.DialTimeout != time.Millisecond {
		t.Fatalf("options not applied: %+v", o)
	}
}
