// Package mongodb implements docstore.Store on MongoDB. Each collection holds
// documents keyed by a string _id; the remaining keys are the document fields.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nimburion/crudkit/pkg/docstore"
	storemongo "github.com/nimburion/crudkit/pkg/store/mongodb"
)

const idKey = "_id"

// Server error codes classified by mapError.
const (
	codeUnauthorized          = 13
	codeAuthenticationFailed  = 18
	codeMaxTimeMSExpired      = 50
	codeExceededMemoryLimit   = 292
	codeNoQueryExecutionPlans = 291
)

// Store is a docstore.Store over one MongoDB database.
type Store struct {
	db      *mongo.Database
	timeout func(context.Context) (context.Context, context.CancelFunc)
	newID   func() string
}

var _ docstore.Store = (*Store)(nil)

// New returns a Store on the adapter's database, bounded by its operation timeout.
func New(adapter *storemongo.Adapter) *Store {
	s := NewFromDatabase(adapter.Database())
	s.timeout = adapter.WithOperationTimeout
	return s
}

// NewFromDatabase returns a Store on db without an operation timeout.
func NewFromDatabase(db *mongo.Database) *Store {
	return &Store{
		db:      db,
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) { return ctx, func() {} },
		newID:   uuid.NewString,
	}
}

// Capabilities implements docstore.Store.
func (s *Store) Capabilities() docstore.Capabilities {
	return docstore.Capabilities{System: "mongodb", Disjunction: true}
}

// EncodeTime stores times as BSON datetimes, which keep millisecond precision.
func (s *Store) EncodeTime(t time.Time) any {
	return t.UTC().Truncate(time.Millisecond)
}

// DecodeTime implements docstore.Store.
func (s *Store) DecodeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case primitive.DateTime:
		return t.Time().UTC(), true
	}
	return time.Time{}, false
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (docstore.Document, error) {
	return s.InsertWithID(ctx, collection, s.newID(), fields)
}

// InsertWithID implements docstore.Store.
func (s *Store) InsertWithID(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	raw := bson.M{}
	for k, v := range fields {
		raw[k] = v
	}
	raw[idKey] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, raw); err != nil {
		return docstore.Document{}, mapError(err, collection+"/"+id)
	}
	out := docstore.CloneFields(fields)
	if out == nil {
		out = map[string]any{}
	}
	return docstore.Document{ID: id, Fields: out}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	return s.findByID(ctx, collection, id)
}

func (s *Store) findByID(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: idKey, Value: id}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, mapError(err, collection+"/"+id)
	}
	return toDocument(raw), true, nil
}

// Update implements docstore.Store with $set; dotted keys address nested fields.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	coll := s.db.Collection(collection)
	filter := bson.D{{Key: idKey, Value: id}}
	if len(partial) == 0 {
		n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
		if err != nil {
			return mapError(err, collection+"/"+id)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}
		return nil
	}

	set := bson.D{}
	for k, v := range partial {
		set = append(set, bson.E{Key: k, Value: v})
	}
	res, err := coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return mapError(err, collection+"/"+id)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return nil
}

// Remove implements docstore.Store.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.D{{Key: idKey, Value: id}})
	if err != nil {
		return mapError(err, collection+"/"+id)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return nil
}

// Query implements docstore.Store. Results are ordered by OrderBy and then by
// _id in the direction of the last order; StartAfter becomes a keyset filter
// over the same keys.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}
	keys := sortKeys(q.OrderBy)

	if q.StartAfter != "" {
		id, err := q.StartAfter.DocumentID()
		if err != nil {
			return nil, err
		}
		anchor, found, err := s.findByID(ctx, q.Collection, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: cursor document %s no longer exists", docstore.ErrInvalidCursor, id)
		}
		filter = and(filter, afterFilter(keys, anchor))
	}

	opts := options.Find().SetSort(sortSpec(keys))
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err, q.Collection)
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, mapError(err, q.Collection)
	}
	docs := make([]docstore.Document, len(raws))
	for i, raw := range raws {
		docs[i] = toDocument(raw)
	}
	return docs, nil
}

// Count implements docstore.Store.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int64, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	filter, err := buildFilter(q)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(q.Collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, mapError(err, q.Collection)
	}
	return n, nil
}

func toDocument(raw bson.M) docstore.Document {
	id := fmt.Sprint(raw[idKey])
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == idKey {
			continue
		}
		fields[k] = normalize(v)
	}
	return docstore.Document{ID: id, Fields: fields}
}

// normalize converts driver container types to plain maps and slices.
func normalize(v any) any {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	}
	return v
}

// mapError wraps driver failures with the matching docstore error kind.
func mapError(err error, target string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var kind error
	var serverErr mongo.ServerError
	switch {
	case mongo.IsDuplicateKeyError(err):
		kind = docstore.ErrAlreadyExists
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		kind = docstore.ErrUnavailable
	case errors.As(err, &serverErr):
		switch {
		case serverErr.HasErrorCode(codeUnauthorized), serverErr.HasErrorCode(codeAuthenticationFailed):
			kind = docstore.ErrPermissionDenied
		case serverErr.HasErrorCode(codeExceededMemoryLimit):
			kind = docstore.ErrResourceExhausted
		case serverErr.HasErrorCode(codeNoQueryExecutionPlans):
			kind = docstore.ErrFailedPrecondition
		case serverErr.HasErrorCode(codeMaxTimeMSExpired):
			kind = docstore.ErrUnavailable
		}
	}
	if kind == nil {
		return fmt.Errorf("mongodb %s: %w", target, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, target, err)
}
