package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records metrics into prometheus collectors registered on the
// registerer passed to NewPrometheus.
type Prometheus struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

// NewPrometheus creates a Prometheus recorder. Pass
// prometheus.DefaultRegisterer to publish on the default registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedcore",
			Name:      "cache_hits_total",
			Help:      "Cache hits by tier",
		}, []string{"tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedcore",
			Name:      "cache_misses_total",
			Help:      "Cache misses by tier",
		}, []string{"tier"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "embedcore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedcore",
			Name:      "operation_errors_total",
			Help:      "Errors by component and operation",
		}, []string{"component", "op"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "embedcore",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (1 = current state)",
		}, []string{"state"}),
	}
	reg.MustRegister(p.hits, p.misses, p.latency, p.errors, p.breakerState)
	return p
}

func (p *Prometheus) RecordHit(tier string)  { p.hits.WithLabelValues(tier).Inc() }
func (p *Prometheus) RecordMiss(tier string) { p.misses.WithLabelValues(tier).Inc() }

func (p *Prometheus) RecordLatency(component, op string, d time.Duration) {
	p.latency.WithLabelValues(component, op).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(component, op string) {
	p.errors.WithLabelValues(component, op).Inc()
}

func (p *Prometheus) RecordBreakerState(state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		p.breakerState.WithLabelValues(s).Set(v)
	}
}
