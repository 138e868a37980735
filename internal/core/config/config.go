package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/listing-search/pkg/invalidation/kafka"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Addr        string
	LogLevel    string
	LogConsole  bool
	LogSampleN  int
	MetricsOn   bool
	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	SeedDemo    bool

	RedisAddr      string
	RedisPoolSize  int
	RedisMinIdle   int
	CacheEnabled   bool
	CacheOpTimeout time.Duration
	CacheTTLCold   time.Duration
	CacheTTLWarm   time.Duration
	CacheTTLHot    time.Duration
	HotThreshold   float64
	HotHalfLife    time.Duration

	PageSize             int
	AutocompleteDebounce time.Duration
	AutocompleteLimit    int
	AutocompleteRPS      float64
	AutocompleteBurst    int
	MapWidthPx           int
	MapHeightPx          int
	SessionTTL           time.Duration
	SessionMax           int

	// SearchEventsTopic enables per-search analytics records on the
	// invalidation brokers when non-empty.
	SearchEventsTopic string
	SearchEventsQueue int

	Invalidation kafka.InvalidationConfig
}

// LoadDotEnv preloads variables from the given files (default ".env").
// Missing files are not an error; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func FromEnv() Config {
	driver := strings.ToLower(getenv("STORE_DRIVER", StoreMemory))
	if driver != StorePostgres {
		driver = StoreMemory
	}
	cold := getduration("CACHE_TTL_COLD", 30*time.Second)

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),
		MetricsOn:   getbool("METRICS_ENABLED", true),
		StoreDriver: driver,
		DatabaseURL: getenv("DATABASE_URL", ""),
		DBMaxConns:  int32(min(max(getint("DB_MAX_CONNS", 0), 0), 1024)),
		SeedDemo:    getbool("SEED_DEMO", driver == StoreMemory),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:  getint("REDIS_POOL_SIZE", 0),
		RedisMinIdle:   getint("REDIS_MIN_IDLE", 0),
		CacheEnabled:   getbool("CACHE_ENABLED", false),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 50*time.Millisecond),
		CacheTTLCold:   cold,
		CacheTTLWarm:   getduration("CACHE_TTL_WARM", 2*cold),
		CacheTTLHot:    getduration("CACHE_TTL_HOT", 10*cold),
		HotThreshold:   getfloat("HOT_THRESHOLD", 5.0),
		HotHalfLife:    getduration("HOT_HALF_LIFE", time.Minute),

		PageSize:             positive(getint("PAGE_SIZE", 12), 12),
		AutocompleteDebounce: getduration("AUTOCOMPLETE_DEBOUNCE", 250*time.Millisecond),
		AutocompleteLimit:    positive(getint("AUTOCOMPLETE_LIMIT", 20), 20),
		AutocompleteRPS:      getfloat("AUTOCOMPLETE_RPS", 10),
		AutocompleteBurst:    positive(getint("AUTOCOMPLETE_BURST", 20), 20),
		MapWidthPx:           positive(getint("MAP_WIDTH_PX", 800), 800),
		MapHeightPx:          positive(getint("MAP_HEIGHT_PX", 600), 600),
		SessionTTL:           getduration("SESSION_TTL", 30*time.Minute),
		SessionMax:           positive(getint("SESSION_MAX", 1000), 1000),

		SearchEventsTopic: getenv("SEARCH_EVENTS_TOPIC", ""),
		SearchEventsQueue: positive(getint("SEARCH_EVENTS_QUEUE", 1024), 1024),

		Invalidation: kafka.FromEnv(),
	}
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
