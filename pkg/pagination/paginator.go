// Package pagination validates declarative query options, composes them into
// document store queries, executes data and count queries concurrently and
// maps the results into typed pages.
package pagination

import (
	"context"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/observability/tracing"
)

// Result is one page of a paginated query.
type Result[T any] struct {
	Data        []T             `json:"data"`
	Total       int64           `json:"total"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
	TotalPages  int             `json:"totalPages"`
	HasNextPage bool            `json:"hasNextPage"`
	HasPrevPage bool            `json:"hasPrevPage"`
	LastVisible docstore.Cursor `json:"lastVisible,omitempty"`
	// ExecutionTime is the query wall-clock time in milliseconds. Results
	// served from a page cache report the lookup time instead.
	ExecutionTime  int64          `json:"executionTime"`
	AppliedFilters AppliedFilters `json:"appliedFilters"`
}

// PageInfo computes the page count and neighbour flags.
func PageInfo(total int64, page, limit int) (totalPages int, hasNext, hasPrev bool) {
	if limit < 1 {
		limit = 1
	}
	totalPages = int((total + int64(limit) - 1) / int64(limit))
	return totalPages, page < totalPages, page > 1
}

// Option configures a Paginator.
type Option func(*settings)

type settings struct {
	defaultLimit int
	maxLimit     int
	logger       logger.Logger
}

// WithDefaultLimit sets the page size used when a request omits one.
func WithDefaultLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithMaxLimit caps the page size. Values below 1 are ignored.
func WithMaxLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger used to report store failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Paginator runs paginated queries against one collection.
type Paginator[T any] struct {
	store      docstore.Store
	collection string
	decode     Decoder[T]
	settings
}

// New creates a Paginator for collection. A nil decode uses DecodeRecord.
func New[T any](store docstore.Store, collection string, decode Decoder[T], opts ...Option) *Paginator[T] {
	s := settings{defaultLimit: DefaultLimit, maxLimit: DefaultMaxLimit, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	if decode == nil {
		decode = DecodeRecord[T]
	}
	return &Paginator[T]{
		store:      store,
		collection: collection,
		decode:     decode,
		settings:   s,
	}
}

// Collection returns the collection the paginator reads.
func (p *Paginator[T]) Collection() string {
	return p.collection
}

// Paginate validates opts, runs the queries and returns one page.
//
// Filter validation failures are returned as *FilterError, unwrapped, before
// any query is issued. Store failures are returned as *QueryError.
func (p *Paginator[T]) Paginate(ctx context.Context, opts Options) (*Result[T], error) {
	opts = opts.normalized(p.defaultLimit, p.maxLimit)
	log := p.logger.WithContext(ctx).With("collection", p.collection)

	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	plan, err := Build(p.store, p.collection, opts)
	if err != nil {
		log.Warn("rejected composite filter", "error", err)
		return nil, err
	}

	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBPaginate,
		tracing.WithDBCollection(p.collection),
		tracing.WithDBSystem(p.store.Capabilities().System),
		tracing.WithFilterCount(len(plan.Data.Where)+len(plan.Data.AnyOf)),
	)
	result, err := p.run(ctx, opts, plan)
	tracing.End(span, err)
	if err != nil {
		log.Error("failed to paginate documents", "error", err)
		return nil, err
	}
	return result, nil
}

func (p *Paginator[T]) run(ctx context.Context, opts Options, plan Plan) (*Result[T], error) {
	exec, err := Execute(ctx, p.store, plan)
	if err != nil {
		return nil, &QueryError{Collection: p.collection, Err: err}
	}

	data := make([]T, 0, len(exec.Documents))
	for _, rec := range MapDocuments(p.store, exec.Documents, opts.Select) {
		item, err := p.decode(rec)
		if err != nil {
			return nil, &QueryError{Collection: p.collection, Err: err}
		}
		data = append(data, item)
	}
	metrics.RecordPageSize(p.collection, len(data))

	totalPages, hasNext, hasPrev := PageInfo(exec.Total, opts.Page, opts.Limit)
	result := &Result[T]{
		Data:           data,
		Total:          exec.Total,
		Page:           opts.Page,
		Limit:          opts.Limit,
		TotalPages:     totalPages,
		HasNextPage:    hasNext,
		HasPrevPage:    hasPrev,
		ExecutionTime:  exec.Elapsed.Milliseconds(),
		AppliedFilters: Normalize(opts),
	}
	if n := len(exec.Documents); n > 0 {
		result.LastVisible = exec.Documents[n-1].Cursor()
	}
	return result, nil
}
