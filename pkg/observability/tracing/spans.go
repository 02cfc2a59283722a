// Package tracing wires OpenTelemetry spans around document store and cache operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operations
const (
	SpanOperationDBQuery    SpanOperation = "db.query"
	SpanOperationDBCount    SpanOperation = "db.count"
	SpanOperationDBGet      SpanOperation = "db.get"
	SpanOperationDBInsert   SpanOperation = "db.insert"
	SpanOperationDBUpdate   SpanOperation = "db.update"
	SpanOperationDBDelete   SpanOperation = "db.delete"
	SpanOperationDBPaginate SpanOperation = "db.paginate"

	SpanOperationCacheGet        SpanOperation = "cache.get"
	SpanOperationCacheSet        SpanOperation = "cache.set"
	SpanOperationCacheInvalidate SpanOperation = "cache.invalidate"
)

// StartDatabaseSpan creates a client span for a document store operation.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	spanOpts := &databaseSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.collection != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.collection)
	}

	ctx, span := otel.Tracer("database").Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*databaseSpanOptions)

type databaseSpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithDBCollection sets the collection name.
func WithDBCollection(collection string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.collection = collection
		opts.attributes = append(opts.attributes, attribute.String("db.collection", collection))
	}
}

// WithDBSystem sets the database system (e.g. "firestore", "mongodb").
func WithDBSystem(system string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithDocumentID sets the document identifier.
func WithDocumentID(id string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.document_id", id))
	}
}

// WithFilterCount records how many filter predicates the query carries.
func WithFilterCount(n int) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("db.filter_count", n))
	}
}

// StartCacheSpan creates a client span for a cache operation.
func StartCacheSpan(ctx context.Context, operation SpanOperation, opts ...CacheSpanOption) (context.Context, trace.Span) {
	spanOpts := &cacheSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("cache.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	ctx, span := otel.Tracer("cache").Start(ctx, fmt.Sprintf("CACHE %s", operation), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// CacheSpanOption configures a cache span.
type CacheSpanOption func(*cacheSpanOptions)

type cacheSpanOptions struct {
	attributes []attribute.KeyValue
}

// WithCacheSystem sets the cache system (e.g. "redis").
func WithCacheSystem(system string) CacheSpanOption {
	return func(opts *cacheSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("cache.system", system))
	}
}

// WithCacheKey sets the cache key.
func WithCacheKey(key string) CacheSpanOption {
	return func(opts *cacheSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("cache.key", key))
	}
}

// WithCacheHit sets whether the lookup was a hit.
func WithCacheHit(hit bool) CacheSpanOption {
	return func(opts *cacheSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Bool("cache.hit", hit))
	}
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
