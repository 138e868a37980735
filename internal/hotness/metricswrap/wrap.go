// Package metricswrap wraps a hotness tracker with Prometheus metrics and
// sampled threshold logging.
package metricswrap

import (
	"fmt"

	xx "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/hotness"
)

type Sizer interface{ Size() int }

type WithMetrics struct {
	inner     hotness.Interface
	tier      string
	threshold float64
	sample    float64
	log       zerolog.Logger
}

// New wraps inner. When threshold is positive, keys crossing it are logged
// for a deterministic sample fraction of keys.
func New(inner hotness.Interface, tier string, threshold, sample float64, log zerolog.Logger) *WithMetrics {
	if tier == "" {
		tier = "queries"
	}
	return &WithMetrics{inner: inner, tier: tier, threshold: threshold, sample: sample, log: log}
}

func (w *WithMetrics) Inc(key string) {
	w.inner.Inc(key)
	if w.threshold > 0 {
		score := w.inner.Score(key)
		if score >= w.threshold && shouldLog(w.sample, key) {
			h := xx.Sum64String(key)
			w.log.Info().
				Str("event", "hotness_threshold").
				Float64("score", score).
				Str("tier", w.tier).
				Str("key_hash", fmt.Sprintf("%08x", h)).
				Msg("hot query above threshold")
		}
	}
	w.observeSize()
}

func (w *WithMetrics) Score(key string) float64 {
	return w.inner.Score(key)
}

func (w *WithMetrics) Reset(keys ...string) {
	w.inner.Reset(keys...)
	w.observeSize()
}

func (w *WithMetrics) observeSize() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
