package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/backend/cachedstore"
	"github.com/mohammed-shakir/listing-search/internal/backend/memstore"
	"github.com/mohammed-shakir/listing-search/internal/backend/pgstore"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/coordinator"
	"github.com/mohammed-shakir/listing-search/internal/core/config"
	"github.com/mohammed-shakir/listing-search/internal/core/health"
	"github.com/mohammed-shakir/listing-search/internal/core/middleware"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/core/router"
	"github.com/mohammed-shakir/listing-search/internal/core/server"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/hotness"
	"github.com/mohammed-shakir/listing-search/internal/hotness/expdecay"
	"github.com/mohammed-shakir/listing-search/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/listing-search/internal/logger"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
	"github.com/mohammed-shakir/listing-search/internal/mapsync"
	"github.com/mohammed-shakir/listing-search/internal/metrics"
	"github.com/mohammed-shakir/listing-search/internal/orchestrator"
	"github.com/mohammed-shakir/listing-search/internal/searchevents"
	"github.com/mohammed-shakir/listing-search/internal/session"
	"github.com/mohammed-shakir/listing-search/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv:", err)
		return 1
	}
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Driver:    cfg.StoreDriver,
		Component: "listing-search",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.SetDriver(cfg.StoreDriver)
	appLog.Info("starting listing search",
		"addr", cfg.Addr,
		"version", Version,
		"store", cfg.StoreDriver,
		"cache", cfg.CacheEnabled,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []health.Check

	store, closeStore, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("backend setup failed", "err", err)
		return 1
	}
	defer closeStore()
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Check{Name: "postgres", Fn: p.Ping})
	}

	var (
		back   backend.Store = store
		cached *cachedstore.Store
	)
	if cfg.CacheEnabled {
		rc, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.RedisPoolSize),
			redisstore.WithMinIdleConns(cfg.RedisMinIdle),
			redisstore.WithDialTimeout(2*time.Second),
			redisstore.WithReadTimeout(cfg.CacheOpTimeout),
			redisstore.WithWriteTimeout(cfg.CacheOpTimeout),
		)
		if err != nil {
			appLog.Error("redis setup failed", "err", err, "addr", cfg.RedisAddr)
			return 1
		}
		defer func() { _ = rc.Close() }()
		checks = append(checks, health.Check{Name: "redis", Fn: rc.Ping})

		tracker := expdecay.New(cfg.HotHalfLife)
		go pruneHotness(ctx, tracker, cfg.HotHalfLife)
		cached = cachedstore.New(store, rc, cachedstore.Options{
			Logger:    appLog,
			Hotness:   metricswrap.New(tracker, "queries", cfg.HotThreshold, 0.01, zl),
			OpTimeout: cfg.CacheOpTimeout,
			Policy: hotness.TTLPolicy{
				Threshold: cfg.HotThreshold,
				Cold:      cfg.CacheTTLCold,
				Warm:      cfg.CacheTTLWarm,
				Hot:       cfg.CacheTTLHot,
			},
		})
		back = cached
	}

	exec := orchestrator.NewExecutor(appLog, back, cfg.PageSize)
	catalog := autocomplete.NewZoneCatalog(appLog, back)
	mapper := h3mapper.New()

	var reg prometheus.Registerer
	var provider *metrics.Provider
	if cfg.MetricsOn {
		provider = metrics.Init(metrics.Config{
			Enabled: true,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		reg = provider.Registerer()
	}

	runner := kafka.New(cfg.Invalidation, &invalidator{cache: cached, catalog: catalog, log: appLog}, kafka.Options{
		Logger:   appLog.With("component", "invalidation"),
		Register: reg,
	})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner failed", "err", err)
		return 1
	}
	defer runner.Stop()

	sessions := session.NewRegistry(ctx, appLog, func(q string) *coordinator.Coordinator {
		return coordinator.New(coordinator.Config{
			Logger:       appLog.With("component", "session"),
			Executor:     exec,
			Store:        filter.NewStore(q, &filter.MemoryHistory{}),
			Catalog:      catalog,
			Navigator:    logNavigator{log: appLog},
			Map:          mapsync.Options{WidthPx: cfg.MapWidthPx, HeightPx: cfg.MapHeightPx, Mapper: mapper},
			Debounce:     cfg.AutocompleteDebounce,
			SuggestLimit: cfg.AutocompleteLimit,
		})
	}, cfg.SessionMax, cfg.SessionTTL)
	defer sessions.Close()

	var events searchevents.Sink
	if cfg.SearchEventsTopic != "" {
		pub, err := searchevents.NewPublisher(cfg.Invalidation.Brokers, cfg.SearchEventsTopic, cfg.SearchEventsQueue, appLog)
		if err != nil {
			appLog.Error("search events publisher failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("search events close", "err", err)
			}
			appLog.Info("search events publisher closed", "dropped", pub.Dropped())
		}()
		events = pub
	}

	var rr health.ReadinessReporter
	if runner.Active() {
		rr = runner
	}
	opts := server.Options{
		Logger: appLog,
		Ready:  health.Readiness(rr, checks...),
		API: router.Deps{
			Logger:       appLog,
			Executor:     exec,
			Backend:      back,
			Catalog:      catalog,
			Sessions:     sessions,
			Limiter:      middleware.NewRateLimiter(cfg.AutocompleteRPS, cfg.AutocompleteBurst, appLog),
			Mapper:       mapper,
			Events:       events,
			SuggestLimit: cfg.AutocompleteLimit,
			MapWidthPx:   cfg.MapWidthPx,
			MapHeightPx:  cfg.MapHeightPx,
		},
	}
	if provider != nil {
		opts.Metrics = provider.Handler()
	}

	if err := server.Run(ctx, cfg.Addr, appLog, server.Handler(opts)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

type pingStore struct {
	*pgstore.Store
	pool *pgxpool.Pool
}

func (p pingStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (backend.Store, func(), error) {
	demo := memstore.New()
	if cfg.SeedDemo {
		if err := memstore.Seed(demo); err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	if cfg.StoreDriver != config.StorePostgres {
		log.Info("using in-memory listings", "seeded", cfg.SeedDemo)
		return demo, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, pgstore.Config{DatabaseURL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, nil, err
	}
	pg, err := pgstore.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if cfg.SeedDemo {
		if err := copyTables(ctx, demo, pg); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("demo listings copied to postgres")
	}
	return pingStore{Store: pg, pool: pool}, pool.Close, nil
}

// copyTables loads every table of src into dst, parents before children.
func copyTables(ctx context.Context, src backend.Store, dst *pgstore.Store) error {
	order := []string{backend.TableZones, backend.TableTypes, backend.TableProperties, backend.TableDetails, backend.TableFeatures}
	for _, t := range order {
		res, err := src.Select(ctx, backend.Query{Table: t})
		if err != nil {
			return fmt.Errorf("read %s: %w", t, err)
		}
		if err := dst.Insert(ctx, t, res.Rows...); err != nil {
			return err
		}
	}
	return nil
}

func pruneHotness(ctx context.Context, t *expdecay.Tracker, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.Prune(0.01)
		}
	}
}

// invalidator bumps cache generations and drops memoized zone suggestions
// when the zones table changes.
type invalidator struct {
	cache   *cachedstore.Store
	catalog *autocomplete.ZoneCatalog
	log     *slog.Logger
}

func (i *invalidator) Invalidate(ctx context.Context, source string, tables ...string) error {
	if slices.Contains(tables, backend.TableZones) {
		i.catalog.Purge()
	}
	if i.cache == nil {
		for _, t := range tables {
			observability.IncInvalidation(t, source)
		}
		return nil
	}
	return i.cache.Invalidate(ctx, source, tables...)
}

type logNavigator struct{ log *slog.Logger }

func (n logNavigator) Navigate(id string) {
	n.log.Info("navigate to property", "property", id)
}
