// Package requestid assigns every request a correlation ID.
package requestid

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// HeaderName carries the request ID in both directions.
const HeaderName = "X-Request-ID"

var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID reuses a well-formed incoming X-Request-ID or generates a UUID,
// echoes it in the response and stores it in the request context.
func RequestID() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			id := c.Request().Header.Get(HeaderName)
			if !validID.MatchString(id) {
				id = uuid.NewString()
			}
			c.Response().Header().Set(HeaderName, id)
			ctx := logger.ContextWithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// FromContext returns the request ID assigned by RequestID.
func FromContext(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
