package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for cache operations. A nil *Metrics
// records nothing.
type Metrics struct {
	lookups   *prometheus.CounterVec
	puts      prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// NewMetrics creates cache metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss)",
		}, []string{"result"}),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "cache",
			Name:      "puts_total",
			Help:      "Total number of cache writes",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finboard",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by the capacity policy or a purge",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "finboard",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries in the in-memory cache",
		}),
	}

	for _, c := range []prometheus.Collector{m.lookups, m.puts, m.evictions, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) recordPut() {
	if m == nil {
		return
	}
	m.puts.Inc()
}

func (m *Metrics) recordEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) setSize(n int) {
	if m == nil {
		return
	}
	m.size.Set(float64(n))
}
