package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/health"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/observability/tracing"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/server/router/factory"
	"github.com/nimburion/crudkit/pkg/version"
)

// LifecycleHook defines a named startup/shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunOptions defines inputs for building and running the API server.
type RunOptions struct {
	Config *config.Config
	// Router is optional. If nil, one is created based on Config.RouterType.
	Router router.Router
	Logger logger.Logger

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	// RegisterRoutes mounts the resource routes after the middleware stack is in place.
	RegisterRoutes func(r router.Router) error

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// Build constructs the API server from opts, filling in defaults.
func Build(opts *RunOptions) (*APIServer, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Router == nil {
		r, err := factory.NewRouter(opts.Config.RouterType)
		if err != nil {
			return nil, fmt.Errorf("create router: %w", err)
		}
		opts.Router = r
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	if opts.MetricsRegistry == nil && opts.Config.Observability.MetricsEnabled {
		opts.MetricsRegistry = metrics.NewRegistry()
	}

	srv := NewAPIServer(APIServerOptions{
		HTTP:          opts.Config.HTTP,
		Observability: opts.Config.Observability,
		Router:        opts.Router,
		Logger:        opts.Logger,
		Health:        opts.HealthRegistry,
		Metrics:       opts.MetricsRegistry,
		Version:       version.Current(resolveServiceName(opts)),
	})
	if opts.RegisterRoutes != nil {
		if err := opts.RegisterRoutes(opts.Router); err != nil {
			return nil, fmt.Errorf("register routes: %w", err)
		}
	}
	return srv, nil
}

// Run starts the tracer provider and startup hooks, serves until ctx is
// cancelled, then runs the shutdown hooks.
func Run(ctx context.Context, srv *APIServer, opts *RunOptions) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	info := version.Current(resolveServiceName(opts))
	opts.Logger.Info("application version metadata",
		"service", info.Service,
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
	)

	tracerProvider, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    info.Service,
		ServiceVersion: info.Version,
		Environment:    normalizeEnvironment(opts.Config.Service.Environment),
		Endpoint:       opts.Config.Observability.TracingEndpoint,
		SampleRate:     opts.Config.Observability.TracingSampleRate,
		Enabled:        opts.Config.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	defer shutdownTracerProvider(tracerProvider, opts.Logger)

	if err := runStartupHooks(ctx, opts); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := runShutdownHooks(opts); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()

	return srv.Start(ctx)
}

// RunWithSignals runs the server until one of signals (default SIGINT, SIGTERM) arrives.
func RunWithSignals(ctx context.Context, srv *APIServer, opts *RunOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()
	return Run(ctx, srv, opts)
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func normalizeEnvironment(env string) string {
	trimmed := strings.TrimSpace(env)
	if trimmed == "" {
		return version.Unknown
	}
	return trimmed
}

func resolveServiceName(opts *RunOptions) string {
	if opts.Config != nil {
		if trimmed := strings.TrimSpace(opts.Config.Service.Name); trimmed != "" {
			return trimmed
		}
	}
	return version.Unknown
}

func runStartupHooks(ctx context.Context, opts *RunOptions) error {
	for _, hook := range opts.StartupHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		opts.Logger.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			opts.Logger.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		opts.Logger.Info("startup hook complete", "hook", name)
	}
	return nil
}

func runShutdownHooks(opts *RunOptions) error {
	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var errs []error
	for _, hook := range opts.ShutdownHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		opts.Logger.Info("shutdown hook start", "hook", name)

		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(hookCtx)
		cancel()

		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}

func hookName(hook LifecycleHook) string {
	if name := strings.TrimSpace(hook.Name); name != "" {
		return name
	}
	return "unnamed"
}
