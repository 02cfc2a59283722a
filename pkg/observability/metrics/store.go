package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: system, collection, operation
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"system", "collection", "operation"},
	)

	storeOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operation_errors_total",
			Help: "Total number of failed document store operations",
		},
		[]string{"system", "collection", "operation"},
	)

	paginationResultSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagination_page_size",
			Help:    "Number of documents returned per paginated query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"collection"},
	)

	// Labels: collection, result (hit|miss|error)
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_cache_requests_total",
			Help: "Paginated result cache lookups",
		},
		[]string{"collection", "result"},
	)
)

// RecordStoreOperation records the duration and outcome of a store operation.
func RecordStoreOperation(system, collection, operation string, duration time.Duration, err error) {
	storeOperationDuration.WithLabelValues(system, collection, operation).Observe(duration.Seconds())
	if err != nil {
		storeOperationErrors.WithLabelValues(system, collection, operation).Inc()
	}
}

// RecordPageSize records how many documents a paginated query returned.
func RecordPageSize(collection string, n int) {
	paginationResultSize.WithLabelValues(collection).Observe(float64(n))
}

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordCacheLookup counts a page cache lookup.
func RecordCacheLookup(collection, result string) {
	cacheRequests.WithLabelValues(collection, result).Inc()
}
