package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricSet covers the listing-change consumer. Apply outcomes are split by
// table so a burst of property edits is distinguishable from zone or type
// catalog churn; lag is tracked per partition.
type metricSet struct {
	msgs *prometheus.CounterVec
	// action is bump_generation or skip_revision
	apply *prometheus.CounterVec
	proc  *prometheus.HistogramVec
	lag   *prometheus.GaugeVec
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_change_messages_total",
				Help: "Listing-change messages by result (ok, invalid, error).",
			},
			[]string{"result"},
		),
		apply: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_change_apply_total",
				Help: "Cache generation bumps and stale-revision skips per table.",
			},
			[]string{"action", "table"},
		),
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listing_change_processing_seconds",
				Help:    "Time from receiving a listing change to its cache invalidation, by op.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		lag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "listing_change_lag_seconds",
				Help: "Age of the last listing change consumed, per partition.",
			},
			[]string{"partition"},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.apply, m.proc, m.lag)
	}
	return m
}
