// Package app assembles the crudkit service: document store, page cache,
// resource modules and the HTTP server around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/cache"
	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/health"
	"github.com/nimburion/crudkit/pkg/modules/contact"
	"github.com/nimburion/crudkit/pkg/modules/subscription"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/repository"
	"github.com/nimburion/crudkit/pkg/resilience"
	"github.com/nimburion/crudkit/pkg/server"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/service"
	"github.com/nimburion/crudkit/pkg/store"
	redisstore "github.com/nimburion/crudkit/pkg/store/redis"
)

const checkTimeout = 3 * time.Second

// App holds the connected dependencies and the resource modules.
type App struct {
	config  *config.Config
	logger  logger.Logger
	backend *store.Backend
	redis   *redisstore.Adapter
	cache   cache.PageCache
	health  *health.Registry

	contacts      *contact.Module
	subscriptions *subscription.Module
}

// New connects the configured document store and page cache and builds the
// resource modules. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	backend, err := store.NewBackend(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	a := &App{
		config:  cfg,
		logger:  log,
		backend: backend,
		cache:   cache.Nop{},
		health:  health.NewRegistry(),
	}
	a.health.Register("store", backend, checkTimeout)

	if strings.EqualFold(cfg.Cache.Type, config.CacheTypeRedis) {
		adapter, err := redisstore.NewAdapter(redisstore.Config{
			URL:              cfg.Cache.URL,
			MaxConns:         cfg.Cache.MaxConns,
			OperationTimeout: cfg.Cache.OperationTimeout,
		}, log)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.redis = adapter
		var pages cache.PageCache = cache.NewRedisPageCache(adapter, cache.RedisConfig{Prefix: cfg.Cache.Prefix, TTL: cfg.Cache.TTL})
		if cfg.Cache.BreakerFailures > 0 {
			pages = cache.NewGuarded(pages, resilience.Config{
				MaxFailures: cfg.Cache.BreakerFailures,
				Cooldown:    cfg.Cache.BreakerCooldown,
			}, log)
		}
		a.cache = pages
		a.health.Register("cache", adapter, checkTimeout)
	}

	a.buildModules()
	log.Info("application assembled",
		"database", cfg.Database.Type,
		"store", backend.Store.Capabilities().System,
		"cache", cfg.Cache.Type,
	)
	return a, nil
}

func (a *App) buildModules() {
	repoOpts := []repository.Option{
		repository.WithLogger(a.logger),
		repository.WithDefaultLimit(a.config.Pagination.DefaultLimit),
		repository.WithMaxLimit(a.config.Pagination.MaxLimit),
	}
	if !a.config.Pagination.SoftDelete {
		repoOpts = append(repoOpts, repository.WithHardDelete())
	}
	serviceOpts := func(collection string) []service.Option {
		return []service.Option{service.WithLogger(a.logger), service.WithPageCache(a.cache, collection)}
	}

	s := a.backend.Store
	a.contacts = contact.New(service.New[contact.Contact](
		contact.NewRepository(s, repoOpts...), serviceOpts(contact.Collection)...))
	a.subscriptions = subscription.New(subscription.NewService(service.New[subscription.Subscription](
		subscription.NewRepository(s, repoOpts...), serviceOpts(subscription.Collection)...)))
}

// Health returns the registry holding the store and cache checks.
func (a *App) Health() *health.Registry {
	return a.health
}

// RegisterRoutes mounts every resource module on r.
func (a *App) RegisterRoutes(r router.Router) error {
	for _, m := range []interface{ Register(router.Router) error }{a.contacts, a.subscriptions} {
		if err := m.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the cache and document store connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close document store: %w", err))
	}
	return errors.Join(errs...)
}

// RunOptions describes the API server for server.Build and server.Run. The
// shutdown hook closes the connections opened by New.
func (a *App) RunOptions() *server.RunOptions {
	return &server.RunOptions{
		Config:         a.config,
		Logger:         a.logger,
		HealthRegistry: a.health,
		RegisterRoutes: a.RegisterRoutes,
		ShutdownHooks: []server.LifecycleHook{{
			Name: "close-connections",
			Fn:   func(context.Context) error { return a.Close() },
		}},
	}
}

// Run assembles the service and serves until ctx is cancelled or SIGINT or
// SIGTERM arrives.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	opts := a.RunOptions()
	srv, err := server.Build(opts)
	if err != nil {
		_ = a.Close()
		return err
	}
	return server.RunWithSignals(ctx, srv, opts)
}

// CheckDependencies connects the configured store and cache, runs their
// health checks once and disconnects.
func CheckDependencies(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing dependencies failed", "error", err)
		}
	}()

	report := a.health.Check(ctx)
	var failed []string
	for _, check := range report.Checks {
		if check.Status != health.StatusHealthy {
			log.Error("dependency unhealthy", "name", check.Name, "error", check.Error)
			failed = append(failed, check.Name+": "+check.Error)
			continue
		}
		log.Info("dependency healthy", "name", check.Name, "duration_ms", check.DurationMS)
	}
	if len(failed) > 0 {
		return fmt.Errorf("unhealthy dependencies: %s", strings.Join(failed, "; "))
	}
	return nil
}
