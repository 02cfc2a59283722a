// Package logging logs one structured entry per HTTP request.
package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Config configures request logging.
type Config struct {
	// ExcludedPathPrefixes are not logged, e.g. /health.
	ExcludedPathPrefixes []string
}

// Logging logs every request with the default configuration.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, Config{})
}

// WithConfig logs method, path, status, duration_ms and request_id after
// each request. 5xx responses and unhandled errors log at error level, 4xx
// at warn, everything else at info.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if excluded(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			status := c.Response().Status()
			if err != nil && !c.Response().Written() {
				status = http.StatusInternalServerError
			}

			fields := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", req.RemoteAddr,
			}
			if err != nil {
				fields = append(fields, "error", err)
			}

			l := log.WithContext(c.Request().Context())
			switch {
			case status >= http.StatusInternalServerError:
				l.Error("request completed", fields...)
			case status >= http.StatusBadRequest:
				l.Warn("request completed", fields...)
			default:
				l.Info("request completed", fields...)
			}
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
