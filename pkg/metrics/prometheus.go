package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	providerCalls       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	latency             *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
	healthScore         prometheus.Gauge
	aggregateConfidence *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		providerCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_provider_calls_total",
				Help: "Total number of enrichment provider calls by disposition",
			},
			[]string{"provider", "disposition"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_cache_lookups_total",
				Help: "Enrichment cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_breaker_state",
				Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		healthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalforge_health_score",
				Help: "Composite system health score between 0 and 1",
			},
		),
		aggregateConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_aggregate_confidence",
				Help:    "Aggregate confidence of enriched signals",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"tier"},
		),
	}
}

// RecordProviderCall records a provider call with its disposition.
func (r *Recorder) RecordProviderCall(provider, disposition string) {
	r.providerCalls.WithLabelValues(provider, disposition).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCacheLookup records a cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordBreakerState records the breaker state for a provider.
func (r *Recorder) RecordBreakerState(provider string, state int) {
	r.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordHealthScore records the composite health score.
func (r *Recorder) RecordHealthScore(score float64) {
	r.healthScore.Set(score)
}

// RecordAggregateConfidence records the confidence of an enriched signal.
func (r *Recorder) RecordAggregateConfidence(tier string, confidence float64) {
	r.aggregateConfidence.WithLabelValues(tier).Observe(confidence)
}
