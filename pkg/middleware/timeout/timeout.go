// Package timeout puts a deadline on request contexts.
package timeout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Config configures the request deadline.
type Config struct {
	// Timeout bounds each request. Non-positive disables the middleware.
	Timeout time.Duration
	// ExcludedPathPrefixes run without a deadline, e.g. /metrics.
	ExcludedPathPrefixes []string
}

// Middleware derives a request context with cfg.Timeout. When the handler
// fails because that deadline passed, the failure becomes a 504 error for
// controller.ErrorHandler to render.
func Middleware(cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		if cfg.Timeout <= 0 {
			return next
		}
		return func(c router.Context) error {
			if excluded(c.Request().URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.Timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || c.Response().Written() {
				return err
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return controller.NewError("request.timeout", err).
					WithMessage("request timed out").
					WithHTTPStatus(http.StatusGatewayTimeout)
			}
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
