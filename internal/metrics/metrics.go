// Copyright 2025 Certen Protocol
//
// Metrics registers the pipeline and backend counters/gauges built on
// prometheus/client_golang's own documented promhttp.Handler() idiom:
// jobs claimed/completed, queue depth, and proving latency.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric this service exports, all registered against
// the default prometheus registry at construction time.
type Registry struct {
	JobsClaimed   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	ProveLatency  *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec
	PublishRetries prometheus.Counter
}

// New registers and returns the service's metric set. Call once at startup.
func New() *Registry {
	return &Registry{
		JobsClaimed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ev_prover",
			Name:      "jobs_claimed_total",
			Help:      "Proving jobs claimed by the registry, by program.",
		}, []string{"program"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ev_prover",
			Name:      "jobs_completed_total",
			Help:      "Proving jobs reaching a terminal state, by program and outcome.",
		}, []string{"program", "outcome"}),
		ProveLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ev_prover",
			Name:      "prove_latency_seconds",
			Help:      "Wall-clock time spent inside Backend.Prove, by program.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"program"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ev_prover",
			Name:      "pipeline_queue_depth",
			Help:      "Jobs currently in flight or pending per pipeline.",
		}, []string{"pipeline"}),
		PublishRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ev_prover",
			Name:      "publisher_resubmits_total",
			Help:      "Times the on-chain publisher resubmitted a message after an inclusion timeout.",
		}),
	}
}
