// Package controller exposes services over HTTP: a generic CRUD controller,
// the error-to-status mapping and the response envelope.
package controller

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// Service is what a Controller needs from the service layer.
type Service[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, id string, partial map[string]any) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
	GetAll(ctx context.Context, req repository.PageRequest) (*repository.OffsetPage[T], error)
	Paginator(ctx context.Context, opts pagination.Options) (*pagination.Result[T], error)
}

// CreateDecoder turns a create request into the entity to store.
type CreateDecoder[T any] func(c router.Context) (*T, error)

// UpdateDecoder turns an update request into a partial document.
type UpdateDecoder func(c router.Context) (map[string]any, error)

// Option configures a Controller.
type Option[T any] func(*Controller[T])

// WithCreateDecoder replaces the default create decoding, which binds the
// body into T and runs ValidateDTO on it.
func WithCreateDecoder[T any](d CreateDecoder[T]) Option[T] {
	return func(c *Controller[T]) { c.decodeCreate = d }
}

// WithUpdateDecoder replaces the default update decoding, which binds the
// body into a non-empty JSON object.
func WithUpdateDecoder[T any](d UpdateDecoder) Option[T] {
	return func(c *Controller[T]) { c.decodeUpdate = d }
}

// Controller handles the CRUD and pagination routes of one resource.
type Controller[T any] struct {
	service      Service[T]
	decodeCreate CreateDecoder[T]
	decodeUpdate UpdateDecoder
}

// New creates a Controller over service.
func New[T any](service Service[T], opts ...Option[T]) *Controller[T] {
	c := &Controller[T]{
		service:      service,
		decodeCreate: BindAndValidate[T],
		decodeUpdate: BindPartial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register mounts the resource routes on r. Static paths are registered
// before /:id so every router resolves them first.
func (ctl *Controller[T]) Register(r router.Router) {
	r.POST("", ctl.Create)
	r.GET("", ctl.GetAll)
	r.GET("/paginate", ctl.Paginate)
	r.POST("/search", ctl.Search)
	r.GET("/:id", ctl.GetByID)
	r.PUT("/:id", ctl.Update)
	r.PATCH("/:id", ctl.Update)
	r.DELETE("/:id", ctl.Delete)
}

// Create handles POST /.
func (ctl *Controller[T]) Create(c router.Context) error {
	entity, err := ctl.decodeCreate(c)
	if err != nil {
		return err
	}
	created, err := ctl.service.Create(c.Request().Context(), entity)
	if err != nil {
		return err
	}
	if created == nil {
		return NewBadRequestError("creation failed", nil)
	}
	return Created(c, "Entity created successfully", created)
}

// GetAll handles GET / with page, limit, sort and order. Missing or
// unparsable values fall back to page 1, limit 10, createdAt, desc.
func (ctl *Controller[T]) GetAll(c router.Context) error {
	req := repository.PageRequest{
		Page:  lenientInt(c.Query("page")),
		Limit: lenientInt(c.Query("limit")),
		Sort:  strings.TrimSpace(c.Query("sort")),
		Order: repository.SortOrder(strings.ToLower(c.Query("order"))),
	}.WithDefaults()

	page, err := ctl.service.GetAll(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return Paginated(c, "Fetched entities successfully", page)
}

// GetByID handles GET /:id.
func (ctl *Controller[T]) GetByID(c router.Context) error {
	entity, err := ctl.service.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if entity == nil {
		return NewNotFoundError("entity not found")
	}
	return Success(c, "Fetched entity by ID successfully", entity)
}

// Update handles PUT and PATCH /:id.
func (ctl *Controller[T]) Update(c router.Context) error {
	partial, err := ctl.decodeUpdate(c)
	if err != nil {
		return err
	}
	entity, err := ctl.service.Update(c.Request().Context(), c.Param("id"), partial)
	if err != nil {
		return err
	}
	if entity == nil {
		return NewNotFoundError("entity not found")
	}
	return Success(c, "Entity updated successfully", entity)
}

// Delete handles DELETE /:id.
func (ctl *Controller[T]) Delete(c router.Context) error {
	ok, err := ctl.service.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("entity not found")
	}
	return Success(c, "Entity deleted successfully", nil)
}

// Paginate handles GET /paginate with page, limit and all. Non-numeric
// page or limit is rejected before the service is called.
func (ctl *Controller[T]) Paginate(c router.Context) error {
	page, err := strictInt(c.Query("page"), pagination.DefaultPage)
	if err != nil {
		return NewBadRequestError("invalid page or limit parameters", err)
	}
	limit, err := strictInt(c.Query("limit"), pagination.DefaultLimit)
	if err != nil {
		return NewBadRequestError("invalid page or limit parameters", err)
	}

	opts := pagination.Options{Page: page, Limit: limit, All: c.Query("all") == "true"}
	result, err := ctl.service.Paginator(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return Paginated(c, "Fetched paginated entities successfully", result)
}

// Search handles POST /search with a JSON pagination.Options body. An empty
// body runs the default query.
func (ctl *Controller[T]) Search(c router.Context) error {
	var opts pagination.Options
	if err := c.Bind(&opts); err != nil && !errors.Is(err, router.ErrEmptyBody) {
		return NewBadRequestError("invalid search options", err)
	}
	result, err := ctl.service.Paginator(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return Paginated(c, "Fetched paginated entities successfully", result)
}

// BindAndValidate binds the request body into a new T and validates it.
func BindAndValidate[T any](c router.Context) (*T, error) {
	entity := new(T)
	if err := c.Bind(entity); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}
	if err := ValidateDTO(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// BindPartial binds the request body into a non-empty JSON object.
func BindPartial(c router.Context) (map[string]any, error) {
	var partial map[string]any
	if err := c.Bind(&partial); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}
	if len(partial) == 0 {
		return nil, NewValidationError("update requires at least one field", nil)
	}
	return partial, nil
}

func lenientInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func strictInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
