// Command loadgen drives random filter searches against a running
// listing-search instance and, optionally, publishes listing-change events
// so cache invalidation runs under load.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/core/httpclient"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
	"github.com/mohammed-shakir/listing-search/internal/logger"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

var (
	countries = []string{"", "Spain", "Portugal"}
	types     = []string{"apartment", "house", "penthouse", "studio"}
	features  = []string{"pool", "garden", "terrace", "parking", "elevator"}
	ops       = []model.Operation{model.OpNone, model.OpBuy, model.OpRent, model.OpRented}
)

// randomState picks a plausible filter combination; most draws stay close
// to the defaults so the cache sees repeated keys.
func randomState(r *rand.Rand) filter.State {
	st := filter.Default()
	if r.IntN(3) == 0 {
		return st
	}
	st.Operation = ops[r.IntN(len(ops))]
	st.Country = countries[r.IntN(len(countries))]
	if r.IntN(2) == 0 {
		st.TypeIDs = []string{types[r.IntN(len(types))]}
	}
	if r.IntN(3) == 0 {
		n := 1 + r.IntN(3)
		st.BedroomsMin = &n
	}
	if r.IntN(4) == 0 {
		st.FeatureKeys = []string{features[r.IntN(len(features))]}
	}
	st.Page = 1 + r.IntN(2)
	return st
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
	errors    int
}

func (s *stats) record(code int, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		return
	}
	s.codes[code]++
	s.latencies = append(s.latencies, d)
}

func (s *stats) percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(s.latencies)
	slices.Sort(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func search(ctx context.Context, c *http.Client, base string, st filter.State) (int, error) {
	u := strings.TrimRight(base, "/") + "/api/search?" + filter.Encode(st)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func newProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return prod, nil
}

func publish(prod sarama.SyncProducer, topic string, r *rand.Rand, rev uint64) error {
	id := fmt.Sprintf("p-%03d", 1+r.IntN(36))
	ev := invalidation.Event{
		Version: 1,
		Op:      "update",
		Table:   backend.TableProperties,
		ID:      id,
		Rev:     rev,
		TS:      time.Now().UTC(),
		Source:  "loadgen",
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, _, err = prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.DedupeKey()),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

func main() {
	log := logger.Build(logger.Config{
		Level:     getenv("LOG_LEVEL", "info"),
		Console:   true,
		Component: "loadgen",
	}, os.Stderr)
	if err := run(log); err != nil {
		log.Error().Err(err).Msg("loadgen failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	base := getenv("TARGET_URL", "http://localhost:8080")
	workers := getint("WORKERS", 8)
	duration := getduration("DURATION", 30*time.Second)
	brokers := getenv("KAFKA_BROKERS", "")
	topic := getenv("KAFKA_TOPIC", "listing-changes")
	eventEvery := getduration("EVENT_INTERVAL", 2*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	client := httpclient.NewOutbound(5*time.Second, workers)
	st := &stats{codes: map[int]int{}}
	g, gctx := errgroup.WithContext(ctx)

	for w := range workers {
		g.Go(func() error {
			r := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for gctx.Err() == nil {
				start := time.Now()
				code, err := search(gctx, client, base, randomState(r))
				if gctx.Err() != nil {
					return nil
				}
				st.record(code, time.Since(start), err)
			}
			return nil
		})
	}

	if brokers != "" {
		prod, err := newProducer(strings.Split(brokers, ","))
		if err != nil {
			return err
		}
		defer func() { _ = prod.Close() }()
		g.Go(func() error {
			r := rand.New(rand.NewPCG(42, uint64(time.Now().UnixNano())))
			tick := time.NewTicker(eventEvery)
			defer tick.Stop()
			var rev uint64
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-tick.C:
					rev++
					if err := publish(prod, topic, r, rev); err != nil {
						log.Warn().Err(err).Msg("publish failed")
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	ev := log.Info().
		Int("requests", len(st.latencies)).
		Int("errors", st.errors).
		Dur("p50", st.percentile(0.50)).
		Dur("p95", st.percentile(0.95)).
		Dur("p99", st.percentile(0.99))
	for code, n := range st.codes {
		ev = ev.Int("status_"+strconv.Itoa(code), n)
	}
	ev.Msg("load run finished")
	return nil
}
