// Package memory is an in-process docstore.Store. It backs tests and local
// development and mirrors Firestore filter semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// Store keeps collections in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	disjunction bool
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithoutDisjunction makes the store report no native OR support and reject
// queries carrying AnyOf groups.
func WithoutDisjunction() Option {
	return func(s *Store) { s.disjunction = false }
}

// WithIDGenerator overrides the uuid-based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: map[string]map[string]map[string]any{},
		disjunction: true,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

// Capabilities implements docstore.Store.
func (s *Store) Capabilities() docstore.Capabilities {
	return docstore.Capabilities{System: "memory", Disjunction: s.disjunction}
}

// EncodeTime keeps times as UTC time.Time values.
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
	return s.InsertWithID(ctx, collection, s.newID(), fields)
}

// InsertWithID implements docstore.Store.
func (s *Store) InsertWithID(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if _, exists := docs[id]; exists {
		return docstore.Document{}, fmt.Errorf("%w: %s/%s", docstore.ErrAlreadyExists, collection, id)
	}
	stored := docstore.CloneFields(fields)
	if stored == nil {
		stored = map[string]any{}
	}
	docs[id] = stored
	return docstore.Document{ID: id, Fields: docstore.CloneFields(stored)}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, false, nil
	}
	return docstore.Document{ID: id, Fields: docstore.CloneFields(fields)}, true, nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	for key, value := range docstore.CloneFields(partial) {
		docstore.SetPath(fields, key, value)
	}
	return nil
}

// Remove implements docstore.Store.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if _, ok := docs[id]; !ok {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	delete(docs, id)
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.AnyOf) > 0 && !s.disjunction {
		return nil, fmt.Errorf("%w: disjunctive filters", docstore.ErrUnsupported)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filter(q)
	sort.SliceStable(matched, func(i, j int) bool {
		return compareDocs(matched[i], matched[j], q.OrderBy) < 0
	})

	if q.StartAfter != "" {
		id, err := q.StartAfter.DocumentID()
		if err != nil {
			return nil, err
		}
		fields, ok := s.collections[q.Collection][id]
		if !ok {
			return nil, fmt.Errorf("%w: cursor document %s no longer exists", docstore.ErrInvalidCursor, id)
		}
		anchor := docstore.Document{ID: id, Fields: fields}
		start := sort.Search(len(matched), func(i int) bool {
			return compareDocs(matched[i], anchor, q.OrderBy) > 0
		})
		matched = matched[start:]
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]docstore.Document, len(matched))
	for i, doc := range matched {
		out[i] = docstore.Document{ID: doc.ID, Fields: docstore.CloneFields(doc.Fields)}
	}
	return out, nil
}

// Count implements docstore.Store.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.AnyOf) > 0 && !s.disjunction {
		return 0, fmt.Errorf("%w: disjunctive filters", docstore.ErrUnsupported)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filter(q))), nil
}

// Len returns the number of documents stored in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) collection(name string) map[string]map[string]any {
	docs, ok := s.collections[name]
	if !ok {
		docs = map[string]map[string]any{}
		s.collections[name] = docs
	}
	return docs
}

// filter must be called with the read lock held. Returned documents share
// field maps with the store.
func (s *Store) filter(q docstore.Query) []docstore.Document {
	var out []docstore.Document
	for id, fields := range s.collections[q.Collection] {
		doc := docstore.Document{ID: id, Fields: fields}
		if matchesQuery(doc, q) {
			out = append(out, doc)
		}
	}
	return out
}

func matchesQuery(doc docstore.Document, q docstore.Query) bool {
	for _, p := range q.Where {
		if !matches(doc, p) {
			return false
		}
	}
	for _, group := range q.AnyOf {
		hit := false
		for _, p := range group {
			if matches(doc, p) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// compareDocs orders by each Order in turn, then by id in the direction of
// the last order (ascending when unordered).
func compareDocs(a, b docstore.Document, orders []docstore.Order) int {
	last := docstore.Asc
	for _, o := range orders {
		c := compare(fieldValue(a, o.Field), fieldValue(b, o.Field))
		if o.Direction == docstore.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		last = o.Direction
	}
	c := compare(a.ID, b.ID)
	if last == docstore.Desc {
		c = -c
	}
	return c
}

func fieldValue(doc docstore.Document, field string) any {
	if field == docstore.DocumentID {
		return doc.ID
	}
	v, _ := docstore.Lookup(doc.Fields, field)
	return v
}
