package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes pipeline counters and latency to Prometheus. A nil *Metrics
// is a no-op so tests can skip registration.
type Metrics struct {
	searches *prometheus.CounterVec
	degraded *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sieve",
			Name:      "searches_total",
			Help:      "Search requests by outcome.",
		}, []string{"outcome"}),
		degraded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sieve",
			Name:      "degraded_total",
			Help:      "Pipeline components that fell back to a neutral signal.",
		}, []string{"component"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sieve",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.latency.Observe(seconds)
}

func (m *Metrics) observeDegraded(component string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(component).Inc()
}
