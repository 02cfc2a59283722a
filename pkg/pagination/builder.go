package pagination

import (
	"fmt"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// SoftDeleteField marks soft-deleted documents when non-null.
const SoftDeleteField = "deletedAt"

// Plan is the pair of queries a paginated read issues.
type Plan struct {
	Data  docstore.Query
	Count docstore.Query
}

// Build composes the data and count queries for collection. opts must be
// normalized and validated.
//
// Composition order: filters, composite groups, date range, soft-delete
// restriction, ordering, then cursor and limit. The count query shares the
// predicates and omits ordering and paging.
func Build(store docstore.Store, collection string, opts Options) (Plan, error) {
	q := docstore.Query{Collection: collection}

	for _, f := range opts.Filters {
		q.Where = append(q.Where, predicate(store, f))
	}

	for _, group := range opts.CompositeFilters {
		switch group.Type {
		case CompositeAnd:
			for _, f := range group.Conditions {
				q.Where = append(q.Where, predicate(store, f))
			}
		case CompositeOr:
			if !store.Capabilities().Disjunction {
				return Plan{}, &FilterError{
					Reason: "or composite filters are not supported by the " + store.Capabilities().System + " store",
					Kind:   ErrUnsupportedFilter,
				}
			}
			anyOf := make([]docstore.Predicate, 0, len(group.Conditions))
			for _, f := range group.Conditions {
				anyOf = append(anyOf, predicate(store, f))
			}
			q.AnyOf = append(q.AnyOf, anyOf)
		}
	}

	if dr := opts.DateRange; dr != nil && dr.Field != "" {
		if dr.Start != nil {
			q.Where = append(q.Where, docstore.Predicate{Field: dr.Field, Op: docstore.OpGreaterOrEqual, Value: store.EncodeTime(*dr.Start)})
		}
		if dr.End != nil {
			q.Where = append(q.Where, docstore.Predicate{Field: dr.Field, Op: docstore.OpLessOrEqual, Value: store.EncodeTime(*dr.End)})
		}
	}

	if opts.IncludeSoftDeleted == nil || !*opts.IncludeSoftDeleted {
		q.Where = append(q.Where, docstore.Predicate{Field: SoftDeleteField, Op: docstore.OpEqual, Value: nil})
	}

	count := docstore.Query{Collection: collection, Where: q.Where, AnyOf: q.AnyOf}

	for _, ob := range opts.OrderBy {
		q.OrderBy = append(q.OrderBy, docstore.Order{Field: ob.Field, Direction: ob.Direction})
	}

	if !opts.All {
		q.StartAfter = opts.LastVisible
		if opts.LastVisible == "" {
			offset, ok := Offset(opts.Page, opts.Limit)
			if !ok {
				return Plan{}, &FilterError{Reason: fmt.Sprintf("page %d is out of range", opts.Page), Kind: ErrInvalidFilterValue}
			}
			q.Offset = offset
		}
		q.Limit = opts.Limit
	}

	return Plan{Data: q, Count: count}, nil
}

func predicate(store docstore.Store, f FilterCondition) docstore.Predicate {
	return docstore.Predicate{Field: f.Key, Op: f.Operator, Value: docstore.EncodeTimes(store, f.Value)}
}
