// Package metrics exposes Prometheus metrics for HTTP traffic, document store
// operations and the paginated result cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry manages metric registration and exposure. It carries the HTTP,
// store and cache collectors plus Go runtime metrics.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a registry with the default collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(httpDuration, httpRequests, httpInFlight)
	reg.MustRegister(storeOperationDuration, storeOperationErrors, paginationResultSize)
	reg.MustRegister(cacheRequests)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{registry: reg}
}

// Register registers a custom collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// Handler exposes the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the underlying prometheus.Gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
