package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpLabels = []string{"method", "path", "status"}

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Time spent serving API requests.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
	}, httpLabels)

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "API requests served, by route and status.",
	}, httpLabels)

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "API requests currently being served.",
	})
)

// HTTPRequest tracks one request from arrival to response.
type HTTPRequest struct {
	start time.Time
}

// StartHTTPRequest counts a request as in flight until Done is called.
func StartHTTPRequest() HTTPRequest {
	httpInFlight.Inc()
	return HTTPRequest{start: time.Now()}
}

// Done records the request under route, which must be a pattern rather than
// the raw URL to keep label cardinality bounded.
func (r HTTPRequest) Done(method, route string, status int) {
	httpInFlight.Dec()
	code := strconv.Itoa(status)
	httpDuration.WithLabelValues(method, route, code).Observe(time.Since(r.start).Seconds())
	httpRequests.WithLabelValues(method, route, code).Inc()
}
