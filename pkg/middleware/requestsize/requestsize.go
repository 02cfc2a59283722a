// Package requestsize caps request bodies.
package requestsize

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Middleware rejects bodies larger than maxBytes with a 413 error. A
// non-positive maxBytes disables the limit. It returns errors for
// controller.ErrorHandler to render, so it must be installed inside it.
func Middleware(maxBytes int64) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		if maxBytes <= 0 {
			return next
		}
		return func(c router.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			// Declared lengths fail before the handler runs.
			if req.ContentLength > maxBytes {
				return tooLarge(maxBytes, nil)
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			c.SetRequest(req)

			err := next(c)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) && !c.Response().Written() {
				return tooLarge(maxBytes, err)
			}
			return err
		}
	}
}

func tooLarge(maxBytes int64, cause error) error {
	return controller.NewError("request.too_large", cause).
		WithMessage(fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes)).
		WithHTTPStatus(http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"max_bytes": maxBytes})
}
