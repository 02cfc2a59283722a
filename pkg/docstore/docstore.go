// Package docstore defines the document store contract the pagination engine
// and the generic repository are built on. Backends live in sub-packages.
package docstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// DocumentID is the field key addressing a document's identifier in predicates and orderings.
const DocumentID = "__name__"

// Operator is a filter comparison operator.
type Operator string

// Supported operators.
const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
)

// Valid reports whether o is one of the supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpArrayContains, OpArrayContainsAny, OpIn, OpNotIn:
		return true
	}
	return false
}

// TakesList reports whether the operator expects a list value.
func (o Operator) TakesList() bool {
	return o == OpIn || o == OpNotIn || o == OpArrayContainsAny
}

// IsRange reports whether the operator is an ordering comparison.
func (o Operator) IsRange() bool {
	return o == OpLess || o == OpLessOrEqual || o == OpGreater || o == OpGreaterOrEqual
}

// Predicate restricts a query to documents whose Field satisfies Op against Value.
type Predicate struct {
	Field string
	Op    Operator
	Value any
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
}

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order sorts query results by Field.
type Order struct {
	Field     string
	Direction Direction
}

// Cursor is an opaque continuation token derived from a previously returned document.
type Cursor string

// CursorFor returns the cursor positioned on the document with the given id.
func CursorFor(id string) Cursor {
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(id)))
}

// DocumentID decodes the identifier of the document the cursor points at.
func (c Cursor) DocumentID() (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCursor, string(c))
	}
	return string(raw), nil
}

// Query describes a read against one collection.
//
// Where predicates are conjoined. Each AnyOf group is a disjunction of its
// predicates and is conjoined with Where and the other groups. StartAfter
// resumes right after the cursor document in OrderBy order. Limit 0 means no cap.
type Query struct {
	Collection string
	Where      []Predicate
	AnyOf      [][]Predicate
	OrderBy    []Order
	StartAfter Cursor
	Offset     int
	Limit      int
}

// Document is a stored document. Fields hold store-native values.
type Document struct {
	ID     string
	Fields map[string]any
}

// Cursor returns the continuation token positioned on d.
func (d Document) Cursor() Cursor {
	return CursorFor(d.ID)
}

// Capabilities advertises optional store features.
type Capabilities struct {
	// System names the backend, used as the db.system span attribute and metric label.
	System string
	// Disjunction is true when AnyOf groups are evaluated natively.
	Disjunction bool
}

// Store is a collection-oriented document database.
type Store interface {
	// Insert stores fields under a store-generated id.
	Insert(ctx context.Context, collection string, fields map[string]any) (Document, error)
	// InsertWithID stores fields under id, failing with ErrAlreadyExists on collision.
	InsertWithID(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
	// Get returns the document, or found=false when absent.
	Get(ctx context.Context, collection, id string) (doc Document, found bool, err error)
	// Update merges partial into the document. Dotted keys address nested fields.
	// Fails with ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	// Remove physically deletes the document, failing with ErrNotFound when absent.
	Remove(ctx context.Context, collection, id string) error
	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]Document, error)
	// Count returns the number of documents matching q, ignoring ordering and paging.
	Count(ctx context.Context, q Query) (int64, error)
	// EncodeTime converts a portable time to the store-native temporal value.
	EncodeTime(t time.Time) any
	// DecodeTime converts a store-native temporal value back to time.Time.
	DecodeTime(v any) (time.Time, bool)
	// Capabilities reports optional features.
	Capabilities() Capabilities
}
