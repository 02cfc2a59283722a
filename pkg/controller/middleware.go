package controller

import (
	"net/http"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// ErrorHandler renders errors returned by downstream handlers as
// ErrorResponse bodies. Server errors are logged at error level, client
// errors at debug.
func ErrorHandler(log logger.Logger) router.MiddlewareFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			err := next(c)
			if err == nil || c.Response().Written() {
				return err
			}

			ctx := c.Request().Context()
			status, body := MapError(ctx, err)
			l := log.WithContext(ctx)
			if status >= http.StatusInternalServerError {
				l.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "status", status, "error", err)
			} else {
				l.Debug("request rejected", "method", c.Request().Method, "path", c.Request().URL.Path, "status", status, "error", err)
			}
			return c.JSON(status, body)
		}
	}
}
