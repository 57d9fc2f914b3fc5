// Package metrics exposes Prometheus counters for the taxonomy console core.
//
// All methods are safe to call on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metric names.
const (
	MetricAPIRequestsTotal       = "taxonomy_api_requests_total"
	MetricAPIRequestDuration     = "taxonomy_api_request_duration_seconds"
	MetricCacheEventsTotal       = "taxonomy_cache_events_total"
	MetricMutationsTotal         = "taxonomy_mutations_total"
	MetricNormalizerDroppedTotal = "taxonomy_normalizer_dropped_total"
	MetricBranchFailuresTotal    = "taxonomy_branch_failures_total"
)

// Cache event labels.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheFetch      = "fetch"
	CacheInvalidate = "invalidate"
	CacheDiscard    = "discard"
)

type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	cacheEvents       *prometheus.CounterVec
	mutations         *prometheus.CounterVec
	normalizerDropped *prometheus.CounterVec
	branchFailures    prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAPIRequestsTotal,
			Help: "Catalog API requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricAPIRequestDuration,
			Help:    "Catalog API request latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheEventsTotal,
			Help: "Query cache events by collection.",
		}, []string{"collection", "event"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricMutationsTotal,
			Help: "Mutation commands by level, operation and outcome.",
		}, []string{"level", "operation", "outcome"}),
		normalizerDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNormalizerDroppedTotal,
			Help: "Server records dropped during normalization.",
		}, []string{"level", "reason"}),
		branchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBranchFailuresTotal,
			Help: "Sub-subcategory branch fetches that failed and were left empty.",
		}),
	}

	reg.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.cacheEvents,
		m.mutations,
		m.normalizerDropped,
		m.branchFailures,
	)

	return m
}

func (m *Metrics) ObserveRequest(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(op, outcome).Inc()
	m.apiDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) CacheEvent(collection, event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(collection, event).Inc()
}

func (m *Metrics) Mutation(level, operation, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(level, operation, outcome).Inc()
}

func (m *Metrics) Dropped(level, reason string) {
	if m == nil {
		return
	}
	m.normalizerDropped.WithLabelValues(level, reason).Inc()
}

func (m *Metrics) BranchFailed() {
	if m == nil {
		return
	}
	m.branchFailures.Inc()
}
