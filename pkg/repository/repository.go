package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/observability/tracing"
	"github.com/nimburion/crudkit/pkg/pagination"
)

// Option configures a GenericRepository.
type Option func(*settings)

type settings struct {
	softDelete   bool
	logger       logger.Logger
	now          func() time.Time
	defaultLimit int
	maxLimit     int
}

// WithHardDelete makes Delete physically remove documents. Soft delete is the default.
func WithHardDelete() Option {
	return func(s *settings) { s.softDelete = false }
}

// WithLogger sets the logger used to report store failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultLimit sets the Paginate page size used when a request omits one.
func WithDefaultLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithMaxLimit caps page sizes for both listing paths.
func WithMaxLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// GenericRepository implements Repository over a docstore.Store collection.
// The collection and soft-delete policy are fixed at construction, so a
// repository is safe for concurrent use.
type GenericRepository[T any] struct {
	store      docstore.Store
	collection string
	mapper     EntityMapper[T]
	paginator  *pagination.Paginator[T]
	settings
}

var _ Repository[struct{}] = (*GenericRepository[struct{}])(nil)

// NewGenericRepository creates a repository for collection using a ReflectionMapper.
func NewGenericRepository[T any](store docstore.Store, collection string, opts ...Option) *GenericRepository[T] {
	return NewGenericRepositoryWithMapper[T](store, collection, NewReflectionMapper[T](), opts...)
}

// NewGenericRepositoryWithMapper creates a repository with a custom mapper.
func NewGenericRepositoryWithMapper[T any](store docstore.Store, collection string, mapper EntityMapper[T], opts ...Option) *GenericRepository[T] {
	s := settings{
		softDelete:   true,
		logger:       logger.Nop(),
		now:          time.Now,
		defaultLimit: pagination.DefaultLimit,
		maxLimit:     pagination.DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With("collection", collection)

	decode := func(rec pagination.Record) (T, error) {
		entity, err := mapper.FromRecord(rec)
		if err != nil {
			var zero T
			return zero, err
		}
		return *entity, nil
	}

	return &GenericRepository[T]{
		store:      store,
		collection: collection,
		mapper:     mapper,
		paginator: pagination.New[T](store, collection, decode,
			pagination.WithLogger(s.logger),
			pagination.WithDefaultLimit(s.defaultLimit),
			pagination.WithMaxLimit(s.maxLimit),
		),
		settings: s,
	}
}

// Collection returns the collection name.
func (r *GenericRepository[T]) Collection() string {
	return r.collection
}

// SoftDelete reports whether Delete marks documents instead of removing them.
func (r *GenericRepository[T]) SoftDelete() bool {
	return r.softDelete
}

// Create stamps lifecycle fields and inserts entity under a store-generated id.
func (r *GenericRepository[T]) Create(ctx context.Context, entity *T) (_ *T, err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBInsert, "create", "")
	defer func() { finish(err) }()

	fields, err := r.newDocumentFields(entity)
	if err != nil {
		return nil, r.fail(ctx, "create", "", ErrCreation, err)
	}
	doc, err := r.store.Insert(ctx, r.collection, fields)
	if err != nil {
		return nil, r.fail(ctx, "create", "", ErrCreation, err)
	}
	created, err := r.toEntity(doc)
	if err != nil {
		return nil, r.fail(ctx, "create", doc.ID, ErrCreation, err)
	}
	return created, nil
}

// CreateWithID inserts entity under a caller-supplied id. It checks for an
// existing document first; a concurrent insert of the same id between the
// check and the write is still reported as ErrAlreadyExists when the store
// enforces uniqueness.
func (r *GenericRepository[T]) CreateWithID(ctx context.Context, id string, entity *T) (_ *T, err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBInsert, "create", id)
	defer func() { finish(err) }()

	_, found, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, r.fail(ctx, "create", id, ErrCreation, err)
	}
	if found {
		return nil, &OperationError{Op: "create", Collection: r.collection, ID: id, Kind: ErrAlreadyExists}
	}

	fields, err := r.newDocumentFields(entity)
	if err != nil {
		return nil, r.fail(ctx, "create", id, ErrCreation, err)
	}
	doc, err := r.store.InsertWithID(ctx, r.collection, id, fields)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return nil, &OperationError{Op: "create", Collection: r.collection, ID: id, Kind: ErrAlreadyExists, Err: err}
	}
	if err != nil {
		return nil, r.fail(ctx, "create", id, ErrCreation, err)
	}
	created, err := r.toEntity(doc)
	if err != nil {
		return nil, r.fail(ctx, "create", id, ErrCreation, err)
	}
	return created, nil
}

// GetByID returns the document. A soft-deleted document fails with
// ErrAlreadyDeleted under the soft-delete policy, an absent one with ErrNotFound.
func (r *GenericRepository[T]) GetByID(ctx context.Context, id string) (_ *T, err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBGet, "get", id)
	defer func() { finish(err) }()

	doc, err := r.live(ctx, "get", id, ErrRetrieval)
	if err != nil {
		return nil, err
	}
	entity, err := r.toEntity(doc)
	if err != nil {
		return nil, r.fail(ctx, "get", id, ErrRetrieval, err)
	}
	return entity, nil
}

// Update merges partial into a live document and refreshes updatedAt. The id
// and the createdAt/deletedAt fields cannot be changed through partial.
func (r *GenericRepository[T]) Update(ctx context.Context, id string, partial map[string]any) (_ *T, err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBUpdate, "update", id)
	defer func() { finish(err) }()

	if _, err := r.live(ctx, "update", id, ErrUpdate); err != nil {
		return nil, err
	}

	changes := make(map[string]any, len(partial)+1)
	for k, v := range partial {
		switch k {
		case IDField, CreatedAtField, DeletedAtField:
			continue
		}
		changes[k] = v
	}
	changes[UpdatedAtField] = r.now()

	if err := r.store.Update(ctx, r.collection, id, docstore.EncodeTimes(r.store, changes).(map[string]any)); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, &OperationError{Op: "update", Collection: r.collection, ID: id, Kind: ErrNotFound, Err: err}
		}
		return nil, r.fail(ctx, "update", id, ErrUpdate, err)
	}

	doc, found, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, r.fail(ctx, "update", id, ErrUpdate, err)
	}
	if !found {
		return nil, &OperationError{Op: "update", Collection: r.collection, ID: id, Kind: ErrNotFound}
	}
	updated, err := r.toEntity(doc)
	if err != nil {
		return nil, r.fail(ctx, "update", id, ErrUpdate, err)
	}
	return updated, nil
}

// Delete soft-deletes the document by stamping deletedAt and updatedAt, or
// removes it under the hard-delete policy.
func (r *GenericRepository[T]) Delete(ctx context.Context, id string) (_ bool, err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBDelete, "delete", id)
	defer func() { finish(err) }()

	if _, err := r.live(ctx, "delete", id, ErrDeletion); err != nil {
		return false, err
	}

	if r.softDelete {
		now := r.store.EncodeTime(r.now())
		err = r.store.Update(ctx, r.collection, id, map[string]any{
			DeletedAtField: now,
			UpdatedAtField: now,
		})
	} else {
		err = r.store.Remove(ctx, r.collection, id)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return false, &OperationError{Op: "delete", Collection: r.collection, ID: id, Kind: ErrNotFound, Err: err}
	}
	if err != nil {
		return false, r.fail(ctx, "delete", id, ErrDeletion, err)
	}
	return true, nil
}

// GetAll lists documents with offset paging ordered by req.Sort. Under the
// soft-delete policy deleted documents are excluded from both the page and
// TotalItems.
func (r *GenericRepository[T]) GetAll(ctx context.Context, req PageRequest) (_ *OffsetPage[T], err error) {
	ctx, finish := r.observe(ctx, tracing.SpanOperationDBQuery, "list", "")
	defer func() { finish(err) }()

	req = req.WithDefaults()
	if req.Limit > r.maxLimit {
		req.Limit = r.maxLimit
	}
	offset, ok := req.Offset()
	if !ok {
		return nil, &pagination.FilterError{Reason: fmt.Sprintf("page %d is out of range", req.Page), Kind: pagination.ErrInvalidFilterValue}
	}

	var where []docstore.Predicate
	if r.softDelete {
		where = append(where, docstore.Predicate{Field: DeletedAtField, Op: docstore.OpEqual, Value: nil})
	}
	plan := pagination.Plan{
		Data: docstore.Query{
			Collection: r.collection,
			Where:      where,
			OrderBy:    []docstore.Order{{Field: req.Sort, Direction: docstore.Direction(req.Order)}},
			Offset:     offset,
			Limit:      req.Limit,
		},
		Count: docstore.Query{Collection: r.collection, Where: where},
	}

	exec, err := pagination.Execute(ctx, r.store, plan)
	if err != nil {
		return nil, r.fail(ctx, "list", "", ErrRetrieval, err)
	}

	data := make([]T, 0, len(exec.Documents))
	for _, doc := range exec.Documents {
		entity, err := r.toEntity(doc)
		if err != nil {
			return nil, r.fail(ctx, "list", doc.ID, ErrRetrieval, err)
		}
		data = append(data, *entity)
	}

	return &OffsetPage[T]{
		Data:        data,
		TotalItems:  exec.Total,
		Page:        req.Page,
		Limit:       req.Limit,
		HasNextPage: exec.Total-int64(offset) > int64(req.Limit),
		HasPrevPage: req.Page > 1,
	}, nil
}

// Paginate runs a cursor-based query. When opts leaves IncludeSoftDeleted
// unset, soft-deleted documents are excluded under the soft-delete policy and
// included otherwise.
func (r *GenericRepository[T]) Paginate(ctx context.Context, opts pagination.Options) (*pagination.Result[T], error) {
	if opts.IncludeSoftDeleted == nil {
		opts.IncludeSoftDeleted = pagination.Bool(!r.softDelete)
	}
	return r.paginator.Paginate(ctx, opts)
}

// live fetches a document that must exist and, under the soft-delete
// policy, must not be deleted.
func (r *GenericRepository[T]) live(ctx context.Context, op, id string, kind error) (docstore.Document, error) {
	doc, found, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return docstore.Document{}, r.fail(ctx, op, id, kind, err)
	}
	if !found {
		return docstore.Document{}, &OperationError{Op: op, Collection: r.collection, ID: id, Kind: ErrNotFound}
	}
	if r.softDelete {
		if v, ok := doc.Fields[DeletedAtField]; ok && v != nil {
			return docstore.Document{}, &OperationError{Op: op, Collection: r.collection, ID: id, Kind: ErrAlreadyDeleted}
		}
	}
	return doc, nil
}

func (r *GenericRepository[T]) newDocumentFields(entity *T) (map[string]any, error) {
	fields, err := r.mapper.ToFields(entity)
	if err != nil {
		return nil, err
	}
	now := r.now()
	fields[CreatedAtField] = now
	fields[UpdatedAtField] = now
	fields[DeletedAtField] = nil
	return docstore.EncodeTimes(r.store, fields).(map[string]any), nil
}

func (r *GenericRepository[T]) toEntity(doc docstore.Document) (*T, error) {
	return r.mapper.FromRecord(pagination.MapDocument(r.store, doc, nil))
}

func (r *GenericRepository[T]) fail(ctx context.Context, op, id string, kind, cause error) error {
	r.logger.WithContext(ctx).Error("document operation failed",
		"operation", op,
		"id", id,
		"error", cause,
	)
	return &OperationError{Op: op, Collection: r.collection, ID: id, Kind: kind, Err: cause}
}

func (r *GenericRepository[T]) observe(ctx context.Context, span tracing.SpanOperation, op, id string) (context.Context, func(error)) {
	system := r.store.Capabilities().System
	opts := []tracing.DatabaseSpanOption{
		tracing.WithDBCollection(r.collection),
		tracing.WithDBSystem(system),
	}
	if id != "" {
		opts = append(opts, tracing.WithDocumentID(id))
	}
	ctx, s := tracing.StartDatabaseSpan(ctx, span, opts...)
	start := time.Now()
	return ctx, func(err error) {
		tracing.End(s, err)
		metrics.RecordStoreOperation(system, r.collection, op, time.Since(start), err)
	}
}
