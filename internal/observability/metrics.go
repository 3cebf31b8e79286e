package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for queries and upstream fetches.
type Metrics struct {
	Queries       *prometheus.CounterVec   // labels: condition, outcome
	EvaluableDays prometheus.Histogram
	FetchAttempts *prometheus.CounterVec   // labels: stage={probe,open,fallback}, outcome={success,error}
	EngineSeconds *prometheus.HistogramVec // labels: engine
	UpstreamCalls *prometheus.CounterVec   // labels: provider, outcome
}

func newMetrics() *Metrics {
	return &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_odds",
			Name:      "queries_total",
			Help:      "Probability queries by condition and outcome.",
		}, []string{"condition", "outcome"}),
		EvaluableDays: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_odds",
			Name:      "evaluable_days",
			Help:      "Evaluable days per answered query.",
			Buckets:   []float64{0, 30, 100, 300, 600, 1000, 2000},
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_odds",
			Name:      "fetch_attempts_total",
			Help:      "Remote dataset fetch attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		EngineSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_odds",
			Name:      "engine_duration_seconds",
			Help:      "Time spent assembling a series, by engine.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"engine"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_odds",
			Name:      "upstream_requests_total",
			Help:      "Third-party API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Queries,
		m.EvaluableDays,
		m.FetchAttempts,
		m.EngineSeconds,
		m.UpstreamCalls,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
