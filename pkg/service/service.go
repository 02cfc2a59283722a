// Package service provides the generic orchestration layer between
// controllers and repositories.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/crudkit/pkg/cache"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
)

// Option configures a Service.
type Option func(*settings)

type settings struct {
	logger    logger.Logger
	cache     cache.PageCache
	namespace string
}

// WithLogger sets the logger used to report failures before they are returned.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPageCache caches GetAll and Paginator results under namespace and
// invalidates them on every successful mutation.
func WithPageCache(c cache.PageCache, namespace string) Option {
	return func(s *settings) {
		if c != nil {
			s.cache = c
			s.namespace = namespace
		}
	}
}

// Service delegates to a repository. Domain services embed it and replace
// individual methods.
type Service[T any] struct {
	repo repository.Repository[T]
	settings
}

// New creates a Service over repo.
func New[T any](repo repository.Repository[T], opts ...Option) *Service[T] {
	s := settings{logger: logger.Nop(), cache: cache.Nop{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Service[T]{repo: repo, settings: s}
}

// Repository returns the underlying repository.
func (s *Service[T]) Repository() repository.Repository[T] {
	return s.repo
}

// Create stores a new document.
func (s *Service[T]) Create(ctx context.Context, entity *T) (*T, error) {
	created, err := s.repo.Create(ctx, entity)
	if err != nil {
		s.log(ctx).Error("create failed", "error", err)
		return nil, err
	}
	s.invalidate(ctx)
	return created, nil
}

// CreateWithID stores a new document under id.
func (s *Service[T]) CreateWithID(ctx context.Context, id string, entity *T) (*T, error) {
	created, err := s.repo.CreateWithID(ctx, id, entity)
	if err != nil {
		s.log(ctx).Error("create with id failed", "id", id, "error", err)
		return nil, err
	}
	s.invalidate(ctx)
	return created, nil
}

// GetByID returns one document.
func (s *Service[T]) GetByID(ctx context.Context, id string) (*T, error) {
	entity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log(ctx).Warn("get by id failed", "id", id, "error", err)
		return nil, err
	}
	return entity, nil
}

// Update merges partial into a document.
func (s *Service[T]) Update(ctx context.Context, id string, partial map[string]any) (*T, error) {
	updated, err := s.repo.Update(ctx, id, partial)
	if err != nil {
		s.log(ctx).Error("update failed", "id", id, "error", err)
		return nil, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes or soft-deletes a document.
func (s *Service[T]) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log(ctx).Error("delete failed", "id", id, "error", err)
		return false, err
	}
	s.invalidate(ctx)
	return ok, nil
}

// GetAll lists documents with offset paging.
func (s *Service[T]) GetAll(ctx context.Context, req repository.PageRequest) (*repository.OffsetPage[T], error) {
	key := cacheKey{Op: "list", Request: &req}
	var page repository.OffsetPage[T]
	slot, hit := s.cached(ctx, key, &page)
	if hit {
		return &page, nil
	}

	result, err := s.repo.GetAll(ctx, req)
	if err != nil {
		s.log(ctx).Error("list failed", "page", req.Page, "limit", req.Limit, "error", err)
		return nil, err
	}
	s.store(ctx, slot, result)
	return result, nil
}

// Paginator runs a filtered, cursor-based query. A result served from the
// page cache reports the cache lookup time as its ExecutionTime.
func (s *Service[T]) Paginator(ctx context.Context, opts pagination.Options) (*pagination.Result[T], error) {
	start := time.Now()
	key := cacheKey{Op: "paginate", Options: &opts}
	var page pagination.Result[T]
	slot, hit := s.cached(ctx, key, &page)
	if hit {
		page.ExecutionTime = time.Since(start).Milliseconds()
		return &page, nil
	}

	result, err := s.repo.Paginate(ctx, opts)
	if err != nil {
		if pagination.IsValidation(err) {
			s.log(ctx).Warn("rejected pagination options", "error", err)
		} else {
			s.log(ctx).Error("pagination failed", "error", err)
		}
		return nil, err
	}
	s.store(ctx, slot, result)
	return result, nil
}

type cacheKey struct {
	Op      string                  `json:"op"`
	Request *repository.PageRequest `json:"request,omitempty"`
	Options *pagination.Options     `json:"options,omitempty"`
}

func (s *Service[T]) log(ctx context.Context) logger.Logger {
	return s.logger.WithContext(ctx)
}

// cached looks key up before the repository is read. On a miss the returned
// slot pins the cache generation seen now, so a write that lands while the
// repository is being read invalidates the page about to be stored.
func (s *Service[T]) cached(ctx context.Context, key cacheKey, dest any) (cache.Slot, bool) {
	slot, err := s.cache.Get(ctx, s.namespace, key, dest)
	if err == nil {
		return slot, true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log(ctx).Warn("page cache lookup failed", "error", err)
	}
	return slot, false
}

func (s *Service[T]) store(ctx context.Context, slot cache.Slot, value any) {
	if slot.IsZero() {
		return
	}
	if err := s.cache.Set(ctx, slot, value); err != nil {
		s.log(ctx).Warn("page cache write failed", "error", err)
	}
}

func (s *Service[T]) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, s.namespace); err != nil {
		s.log(ctx).Warn("page cache invalidation failed", "error", err)
	}
}
