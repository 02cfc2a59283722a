package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilterValue classifies a filter that fails validation.
	ErrInvalidFilterValue = errors.New("invalid filter value")
	// ErrUnsupportedFilter classifies a filter shape the store cannot evaluate,
	// such as an "or" group against a store without native disjunction.
	ErrUnsupportedFilter = errors.New("unsupported filter")
	// ErrQueryExecution classifies a store failure while paginating.
	ErrQueryExecution = errors.New("query execution failed")
)

// FilterError reports a rejected filter condition. It matches
// ErrInvalidFilterValue or ErrUnsupportedFilter through errors.Is.
type FilterError struct {
	Filter FilterCondition
	Reason string
	Kind   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s: %s (key=%q operator=%q)", e.Kind, e.Reason, e.Filter.Key, e.Filter.Operator)
}

// Is matches the error kind.
func (e *FilterError) Is(target error) bool {
	return target == e.Kind
}

// IsValidation reports whether err is a filter validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidFilterValue) || errors.Is(err, ErrUnsupportedFilter)
}

// QueryError wraps a store failure raised while paginating a collection.
type QueryError struct {
	Collection string
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to paginate documents in %s: %v", e.Collection, e.Err)
}

// Unwrap exposes both the generic kind and the store cause.
func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryExecution, e.Err}
}
