// Package metrics records Prometheus HTTP metrics per request.
package metrics

import (
	"regexp"
	"strings"

	"github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Metrics records request duration, count and in-flight requests. Path
// segments that look like document IDs are collapsed to :id to keep label
// cardinality bounded.
func Metrics() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := metrics.StartHTTPRequest()
			err := next(c)
			req.Done(c.Request().Method, RoutePath(c.Request().URL.Path), c.Response().Status())
			return err
		}
	}
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F-]{32,36}|[A-Za-z0-9_-]{20,})$`)

// RoutePath replaces ID-like segments of path with :id.
func RoutePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
