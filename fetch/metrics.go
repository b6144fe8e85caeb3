package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the executor and coordinator.
// A nil *Metrics records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
	results  *prometheus.CounterVec
}

// NewMetrics creates fetch metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP attempts by outcome",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Attempts scheduled after a transport failure or 429",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finboard",
			Subsystem: "fetch",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single HTTP attempts",
			Buckets:   prometheus.DefBuckets,
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "fetch",
			Name:      "results_total",
			Help:      "Coordinator results by source (mock, cache, network, stale, error)",
		}, []string{"source"}),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.retries, m.duration, m.results} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordAttempt(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) recordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) recordResult(source string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(source).Inc()
}
