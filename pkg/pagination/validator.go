package pagination

import (
	"fmt"
	"reflect"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// MaxListValues is the largest list accepted by in, not-in and array-contains-any.
const MaxListValues = 10

// Validate checks a single filter condition. It has no side effects.
func Validate(filter FilterCondition) error {
	if isNil(filter.Value) {
		return invalid(filter, "value must not be null")
	}
	if filter.Key == "" {
		return invalid(filter, "key is required")
	}
	if !filter.Operator.Valid() {
		return invalid(filter, "unknown operator")
	}

	items, isList := docstore.AsSlice(filter.Value)
	switch {
	case filter.Operator == docstore.OpArrayContains:
		if isList {
			return invalid(filter, "array-contains requires a scalar value")
		}
	case filter.Operator.TakesList():
		if !isList {
			return invalid(filter, fmt.Sprintf("%s requires an array value", filter.Operator))
		}
		if len(items) == 0 {
			return invalid(filter, fmt.Sprintf("%s requires a non-empty array", filter.Operator))
		}
		if len(items) > MaxListValues {
			return invalid(filter, fmt.Sprintf("%s accepts at most %d values, got %d", filter.Operator, MaxListValues, len(items)))
		}
	}
	return nil
}

// ValidateOptions validates every flat and composite filter condition, the
// order clauses and the page offset, returning the first failure.
func ValidateOptions(opts Options) error {
	for _, f := range opts.Filters {
		if err := Validate(f); err != nil {
			return err
		}
	}
	for _, group := range opts.CompositeFilters {
		if group.Type != CompositeAnd && group.Type != CompositeOr {
			return &FilterError{
				Reason: fmt.Sprintf("unknown composite filter type %q", group.Type),
				Kind:   ErrInvalidFilterValue,
			}
		}
		if group.Type == CompositeOr && len(group.Conditions) == 0 {
			return &FilterError{Reason: "or group requires at least one condition", Kind: ErrInvalidFilterValue}
		}
		for _, f := range group.Conditions {
			if err := Validate(f); err != nil {
				return err
			}
		}
	}
	if dr := opts.DateRange; dr != nil && dr.Field == "" && (dr.Start != nil || dr.End != nil) {
		return &FilterError{Reason: "date range requires a field", Kind: ErrInvalidFilterValue}
	}
	for _, ob := range opts.OrderBy {
		if ob.Field == "" {
			return &FilterError{Reason: "orderBy requires a field", Kind: ErrInvalidFilterValue}
		}
		if ob.Direction != "" && ob.Direction != docstore.Asc && ob.Direction != docstore.Desc {
			return &FilterError{
				Reason: fmt.Sprintf("unknown orderBy direction %q for %s", ob.Direction, ob.Field),
				Kind:   ErrInvalidFilterValue,
			}
		}
	}
	if !opts.All && opts.LastVisible == "" {
		if _, ok := Offset(opts.Page, opts.Limit); !ok {
			return &FilterError{Reason: fmt.Sprintf("page %d is out of range", opts.Page), Kind: ErrInvalidFilterValue}
		}
	}
	return nil
}

func invalid(filter FilterCondition, reason string) error {
	return &FilterError{Filter: filter, Reason: reason, Kind: ErrInvalidFilterValue}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
