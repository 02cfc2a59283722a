// Package tracing starts an OpenTelemetry server span per HTTP request.
package tracing

import (
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/crudkit/pkg/middleware/metrics"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Config configures the tracing middleware.
type Config struct {
	// TracerName defaults to "crudkit/http".
	TracerName string
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// ExcludedPathPrefixes are not traced.
	ExcludedPathPrefixes []string
}

// Tracing extracts the incoming trace context, starts a server span named
// "HTTP <method> <route>" and stores it in the request context so store
// spans become its children.
func Tracing(cfg Config) router.MiddlewareFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = "crudkit/http"
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	tracer := cfg.TracerProvider.Tracer(cfg.TracerName)
	propagator := otel.GetTextMapPropagator()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			for _, p := range cfg.ExcludedPathPrefixes {
				if p != "" && strings.HasPrefix(req.URL.Path, p) {
					return next(c)
				}
			}

			route := metrics.RoutePath(req.URL.Path)
			ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", req.URL.Path),
				),
			)
			defer span.End()

			if id := logger.RequestIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			status := c.Response().Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			return nil
		}
	}
}
