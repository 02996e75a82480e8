// Package metrics exposes the load balancer's own operational counters
// via Prometheus, independent of the opaque per-backend JSON blobs
// carried in pool.MetricsStore (those are forwarded verbatim to the
// dashboard, not aggregated here).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

// Collector holds the process-wide Prometheus counters and gauges for
// the dispatcher and health checker. It is constructed once in main
// and passed by reference to every component that records a metric.
type Collector struct {
	registry *prometheus.Registry

	sessionsTotal     prometheus.Counter
	noBackendTotal    prometheus.Counter
	dialFailuresTotal prometheus.Counter
	reapsTotal        prometheus.Counter
	poolSize          prometheus.GaugeFunc
}

// NewCollector creates a Collector backed by a private registry (not
// the global default) and wires a gauge that reads p's current size on
// every scrape.
func NewCollector(p *pool.Pool) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fliphash_lb",
			Name:      "sessions_total",
			Help:      "Total client sessions accepted by the dispatcher.",
		}),
		noBackendTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fliphash_lb",
			Name:      "no_backend_total",
			Help:      "Client sessions rejected because the backend pool was empty.",
		}),
		dialFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fliphash_lb",
			Name:      "dial_failures_total",
			Help:      "Backend dial failures observed by the dispatcher.",
		}),
		reapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fliphash_lb",
			Name:      "backend_reaps_total",
			Help:      "Backends removed from the pool, by dial failure or health probe failure.",
		}),
	}

	c.poolSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fliphash_lb",
		Name:      "pool_size",
		Help:      "Current number of registered backends.",
	}, func() float64 { return float64(p.Len()) })

	reg.MustRegister(c.sessionsTotal, c.noBackendTotal, c.dialFailuresTotal, c.reapsTotal, c.poolSize)
	return c
}

// RecordSession counts one accepted client session.
func (c *Collector) RecordSession() { c.sessionsTotal.Inc() }

// RecordNoBackend counts one session rejected due to an empty pool.
func (c *Collector) RecordNoBackend() { c.noBackendTotal.Inc() }

// RecordDialFailure counts one backend dial failure.
func (c *Collector) RecordDialFailure() { c.dialFailuresTotal.Inc() }

// RecordReap counts one backend removal, regardless of cause.
func (c *Collector) RecordReap() { c.reapsTotal.Inc() }

// Handler returns the Prometheus scrape endpoint for this collector's
// private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
