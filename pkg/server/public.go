package server

import (
	"net/http"

	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/health"
	"github.com/nimburion/crudkit/pkg/middleware/logging"
	"github.com/nimburion/crudkit/pkg/middleware/metrics"
	"github.com/nimburion/crudkit/pkg/middleware/recovery"
	"github.com/nimburion/crudkit/pkg/middleware/requestid"
	"github.com/nimburion/crudkit/pkg/middleware/requestsize"
	"github.com/nimburion/crudkit/pkg/middleware/timeout"
	"github.com/nimburion/crudkit/pkg/middleware/tracing"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	obsmetrics "github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/version"
)

// Operational endpoint paths.
const (
	HealthPath  = "/health"
	VersionPath = "/version"
)

// APIServerOptions carries the collaborators of an APIServer.
type APIServerOptions struct {
	HTTP          config.HTTPConfig
	Observability config.ObservabilityConfig
	Router        router.Router
	Logger        logger.Logger
	Health        *health.Registry
	// Metrics is required when Observability.MetricsEnabled is set.
	Metrics *obsmetrics.Registry
	Version version.Info
}

// APIServer serves the resource routes together with the health, version
// and metrics endpoints.
type APIServer struct {
	*Server
}

// NewAPIServer applies the middleware stack to opts.Router and registers the
// operational endpoints. Resource routes must be registered afterwards so
// they run behind the stack.
//
// Middleware order, outermost first:
// 1. Request ID - generates/extracts request IDs for correlation
// 2. Logging - logs HTTP requests with structured data
// 3. Recovery - catches panics and returns 500 errors
// 4. Tracing - server spans, when enabled
// 5. Metrics - Prometheus request metrics, when enabled
// 6. Error handler - renders handler errors as JSON envelopes
// 7. Request size - rejects bodies over HTTP.MaxBodyBytes with 413
// 8. Timeout - bounds the request context by HTTP.RequestTimeout
func NewAPIServer(opts APIServerOptions) *APIServer {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	r := opts.Router
	quiet := []string{HealthPath}
	if opts.Observability.MetricsPath != "" {
		quiet = append(quiet, opts.Observability.MetricsPath)
	}

	stack := []router.MiddlewareFunc{
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{ExcludedPathPrefixes: quiet}),
		recovery.Recovery(log),
	}
	if opts.Observability.TracingEnabled {
		stack = append(stack, tracing.Tracing(tracing.Config{ExcludedPathPrefixes: quiet}))
	}
	if opts.Observability.MetricsEnabled {
		stack = append(stack, metrics.Metrics())
	}
	stack = append(stack,
		controller.ErrorHandler(log),
		requestsize.Middleware(opts.HTTP.MaxBodyBytes),
		timeout.Middleware(timeout.Config{Timeout: opts.HTTP.RequestTimeout, ExcludedPathPrefixes: quiet}),
	)
	r.Use(stack...)

	registry := opts.Health
	if registry == nil {
		registry = health.NewRegistry()
	}
	r.GET(HealthPath, healthHandler(registry))

	info := opts.Version
	r.GET(VersionPath, func(c router.Context) error {
		return c.JSON(http.StatusOK, info)
	})

	if opts.Observability.MetricsEnabled && opts.Metrics != nil {
		handler := opts.Metrics.Handler()
		r.GET(opts.Observability.MetricsPath, func(c router.Context) error {
			handler.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}

	return &APIServer{
		Server: NewServer(Config{
			Port:            opts.HTTP.Port,
			ReadTimeout:     opts.HTTP.ReadTimeout,
			WriteTimeout:    opts.HTTP.WriteTimeout,
			IdleTimeout:     opts.HTTP.IdleTimeout,
			ShutdownTimeout: opts.HTTP.ShutdownTimeout,
		}, r, log),
	}
}

func healthHandler(registry *health.Registry) router.HandlerFunc {
	return func(c router.Context) error {
		report := registry.Check(c.Request().Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}
