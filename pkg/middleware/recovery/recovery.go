// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Recovery recovers panics, logs them with a stack trace and writes a 500
// error body when nothing was written yet.
func Recovery(log logger.Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				ctx := c.Request().Context()
				log.WithContext(ctx).Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
				if c.Response().Written() {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]any{
					"error":      "internal_server_error",
					"message":    "an unexpected error occurred",
					"request_id": logger.RequestIDFromContext(ctx),
				})
			}()
			return next(c)
		}
	}
}
