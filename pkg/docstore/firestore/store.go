// Package firestore implements docstore.Store on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nimburion/crudkit/pkg/docstore"
	storefs "github.com/nimburion/crudkit/pkg/store/firestore"
)

const countAlias = "total"

// Store is a docstore.Store over a Firestore database. Firestore evaluates
// OR filters natively.
type Store struct {
	client  *firestore.Client
	timeout func(context.Context) (context.Context, context.CancelFunc)
}

var _ docstore.Store = (*Store)(nil)

// New returns a Store using the adapter's client and operation timeout.
func New(adapter *storefs.Adapter) *Store {
	return &Store{client: adapter.Client(), timeout: adapter.WithOperationTimeout}
}

// NewFromClient returns a Store over client without an operation timeout.
func NewFromClient(client *firestore.Client) *Store {
	return &Store{
		client:  client,
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) { return ctx, func() {} },
	}
}

// Capabilities implements docstore.Store.
func (s *Store) Capabilities() docstore.Capabilities {
	return docstore.Capabilities{System: "firestore", Disjunction: true}
}

// EncodeTime keeps times as time.Time; the client stores them as timestamps.
func (s *Store) EncodeTime(t time.Time) any {
	return t.UTC()
}

// DecodeTime implements docstore.Store.
func (s *Store) DecodeTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (docstore.Document, error) {
	ref := s.client.Collection(collection).NewDoc()
	return s.create(ctx, ref, fields)
}

// InsertWithID implements docstore.Store.
func (s *Store) InsertWithID(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	return s.create(ctx, s.client.Collection(collection).Doc(id), fields)
}

func (s *Store) create(ctx context.Context, ref *firestore.DocumentRef, fields map[string]any) (docstore.Document, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	if _, err := ref.Create(ctx, fields); err != nil {
		return docstore.Document{}, mapError(err, ref.Path)
	}
	return docstore.Document{ID: ref.ID, Fields: docstore.CloneFields(fields)}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, mapError(err, collection+"/"+id)
	}
	return toDocument(snap), true, nil
}

// Update implements docstore.Store. Dotted keys are field paths.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(partial))
	for path, value := range partial {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapError(err, collection+"/"+id)
	}
	return nil
}

// Remove implements docstore.Store.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		return mapError(err, collection+"/"+id)
	}
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	query, err := s.build(ctx, q, true)
	if err != nil {
		return nil, err
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err, q.Collection)
	}
	docs := make([]docstore.Document, len(snaps))
	for i, snap := range snaps {
		docs[i] = toDocument(snap)
	}
	return docs, nil
}

// Count implements docstore.Store with a server-side count aggregation.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int64, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	query, err := s.build(ctx, q, false)
	if err != nil {
		return 0, err
	}
	res, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, mapError(err, q.Collection)
	}
	return countValue(res[countAlias])
}

func countValue(v any) (int64, error) {
	switch n := v.(type) {
	case *firestorepb.Value:
		return n.GetIntegerValue(), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("unexpected count aggregation result %T", v)
}

// build translates q. Ordering, cursor and paging are applied only when paged is set.
func (s *Store) build(ctx context.Context, q docstore.Query, paged bool) (firestore.Query, error) {
	coll := s.client.Collection(q.Collection)
	query := coll.Query

	filter, err := entityFilter(coll, q)
	if err != nil {
		return query, err
	}
	if filter != nil {
		query = query.WhereEntity(filter)
	}
	if !paged {
		return query, nil
	}

	for _, o := range q.OrderBy {
		query = query.OrderBy(o.Field, direction(o.Direction))
	}

	if q.StartAfter != "" {
		id, err := q.StartAfter.DocumentID()
		if err != nil {
			return query, err
		}
		snap, err := coll.Doc(id).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return query, fmt.Errorf("%w: cursor document %s no longer exists", docstore.ErrInvalidCursor, id)
		}
		if err != nil {
			return query, mapError(err, q.Collection)
		}
		query = query.StartAfter(snap)
	}

	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query, nil
}

// entityFilter conjoins Where and every AnyOf group into one filter, or
// returns nil when q is unfiltered.
func entityFilter(coll *firestore.CollectionRef, q docstore.Query) (firestore.EntityFilter, error) {
	var all []firestore.EntityFilter
	for _, p := range q.Where {
		f, err := propertyFilter(coll, p)
		if err != nil {
			return nil, err
		}
		all = append(all, f)
	}
	for _, group := range q.AnyOf {
		var or firestore.OrFilter
		for _, p := range group {
			f, err := propertyFilter(coll, p)
			if err != nil {
				return nil, err
			}
			or.Filters = append(or.Filters, f)
		}
		switch len(or.Filters) {
		case 0:
		case 1:
			all = append(all, or.Filters[0])
		default:
			all = append(all, or)
		}
	}
	switch len(all) {
	case 0:
		return nil, nil
	case 1:
		return all[0], nil
	}
	return firestore.AndFilter{Filters: all}, nil
}

func propertyFilter(coll *firestore.CollectionRef, p docstore.Predicate) (firestore.PropertyFilter, error) {
	if !p.Op.Valid() {
		return firestore.PropertyFilter{}, fmt.Errorf("%w: operator %q", docstore.ErrUnsupported, p.Op)
	}
	value := p.Value
	if p.Field == docstore.DocumentID {
		value = documentRefs(coll, p.Value)
	}
	return firestore.PropertyFilter{Path: p.Field, Operator: string(p.Op), Value: value}, nil
}

// documentRefs converts id values to document references, which Firestore
// requires when filtering on the document id.
func documentRefs(coll *firestore.CollectionRef, v any) any {
	if items, ok := docstore.AsSlice(v); ok {
		refs := make([]any, len(items))
		for i, item := range items {
			refs[i] = documentRefs(coll, item)
		}
		return refs
	}
	if id, ok := v.(string); ok {
		return coll.Doc(id)
	}
	return v
}

func direction(d docstore.Direction) firestore.Direction {
	if d == docstore.Desc {
		return firestore.Desc
	}
	return firestore.Asc
}

func toDocument(snap *firestore.DocumentSnapshot) docstore.Document {
	fields := snap.Data()
	if fields == nil {
		fields = map[string]any{}
	}
	return docstore.Document{ID: snap.Ref.ID, Fields: fields}
}

// mapError wraps gRPC status errors with the matching docstore error kind.
func mapError(err error, target string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var kind error
	switch status.Code(err) {
	case codes.NotFound:
		kind = docstore.ErrNotFound
	case codes.AlreadyExists:
		kind = docstore.ErrAlreadyExists
	case codes.FailedPrecondition:
		kind = docstore.ErrFailedPrecondition
	case codes.ResourceExhausted:
		kind = docstore.ErrResourceExhausted
	case codes.PermissionDenied, codes.Unauthenticated:
		kind = docstore.ErrPermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = docstore.ErrUnavailable
	case codes.InvalidArgument, codes.Unimplemented:
		kind = docstore.ErrUnsupported
	default:
		return fmt.Errorf("firestore %s: %w", target, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, target, err)
}
