package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// sortKey is one ordering key with the _id tie-break already appended.
type sortKey struct {
	field string
	desc  bool
}

func fieldName(field string) string {
	if field == docstore.DocumentID {
		return idKey
	}
	return field
}

// buildFilter translates Where and AnyOf into a MongoDB filter document.
func buildFilter(q docstore.Query) (bson.D, error) {
	var clauses bson.A
	for _, p := range q.Where {
		c, err := predicate(p)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	for _, group := range q.AnyOf {
		var or bson.A
		for _, p := range group {
			c, err := predicate(p)
			if err != nil {
				return nil, err
			}
			or = append(or, c)
		}
		switch len(or) {
		case 0:
		case 1:
			clauses = append(clauses, or[0])
		default:
			clauses = append(clauses, bson.D{{Key: "$or", Value: or}})
		}
	}
	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// predicate renders one predicate. Inequalities exclude documents lacking
// the field, and equality with nil matches missing or null fields.
func predicate(p docstore.Predicate) (bson.D, error) {
	field := fieldName(p.Field)
	cond := func(op string, v any) bson.D {
		return bson.D{{Key: field, Value: bson.D{{Key: op, Value: v}}}}
	}

	switch p.Op {
	case docstore.OpEqual:
		if p.Value == nil {
			return bson.D{{Key: field, Value: nil}}, nil
		}
		return cond("$eq", p.Value), nil
	case docstore.OpNotEqual:
		if p.Value == nil {
			return cond("$ne", nil), nil
		}
		return cond("$nin", bson.A{p.Value, nil}), nil
	case docstore.OpLess:
		return cond("$lt", p.Value), nil
	case docstore.OpLessOrEqual:
		return cond("$lte", p.Value), nil
	case docstore.OpGreater:
		return cond("$gt", p.Value), nil
	case docstore.OpGreaterOrEqual:
		return cond("$gte", p.Value), nil
	case docstore.OpArrayContains:
		return cond("$elemMatch", bson.D{{Key: "$eq", Value: p.Value}}), nil
	case docstore.OpArrayContainsAny:
		list, err := listValue(p)
		if err != nil {
			return nil, err
		}
		return cond("$elemMatch", bson.D{{Key: "$in", Value: list}}), nil
	case docstore.OpIn:
		list, err := listValue(p)
		if err != nil {
			return nil, err
		}
		return cond("$in", list), nil
	case docstore.OpNotIn:
		list, err := listValue(p)
		if err != nil {
			return nil, err
		}
		return cond("$nin", append(list, nil)), nil
	}
	return nil, fmt.Errorf("%w: operator %q", docstore.ErrUnsupported, p.Op)
}

func listValue(p docstore.Predicate) (bson.A, error) {
	items, ok := docstore.AsSlice(p.Value)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list for %s", docstore.ErrUnsupported, p.Op, p.Field)
	}
	return bson.A(items), nil
}

func sortKeys(orders []docstore.Order) []sortKey {
	keys := make([]sortKey, 0, len(orders)+1)
	last := false
	hasID := false
	for _, o := range orders {
		k := sortKey{field: fieldName(o.Field), desc: o.Direction == docstore.Desc}
		keys = append(keys, k)
		last = k.desc
		if k.field == idKey {
			hasID = true
		}
	}
	if !hasID {
		keys = append(keys, sortKey{field: idKey, desc: last})
	}
	return keys
}

func sortSpec(keys []sortKey) bson.D {
	spec := make(bson.D, len(keys))
	for i, k := range keys {
		dir := 1
		if k.desc {
			dir = -1
		}
		spec[i] = bson.E{Key: k.field, Value: dir}
	}
	return spec
}

// afterFilter selects documents sorting strictly after anchor under keys:
// (k1 after a1) OR (k1 = a1 AND k2 after a2) OR ...
func afterFilter(keys []sortKey, anchor docstore.Document) bson.D {
	var branches bson.A
	var prefix bson.A
	for _, k := range keys {
		v := anchorValue(anchor, k.field)
		if after := afterClause(k, v); after != nil {
			branch := append(append(bson.A{}, prefix...), after)
			if len(branch) == 1 {
				branches = append(branches, after)
			} else {
				branches = append(branches, bson.D{{Key: "$and", Value: branch}})
			}
		}
		prefix = append(prefix, bson.D{{Key: k.field, Value: v}})
	}
	if len(branches) == 0 {
		// nothing sorts after the anchor
		return bson.D{{Key: idKey, Value: bson.D{{Key: "$exists", Value: false}}}}
	}
	return bson.D{{Key: "$or", Value: branches}}
}

// afterClause matches values sorting after v. Null and missing sort first in
// ascending order and last in descending order.
func afterClause(k sortKey, v any) bson.D {
	switch {
	case v == nil && !k.desc:
		return bson.D{{Key: k.field, Value: bson.D{{Key: "$ne", Value: nil}}}}
	case v == nil && k.desc:
		return nil
	case k.desc:
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: k.field, Value: bson.D{{Key: "$lt", Value: v}}}},
			bson.D{{Key: k.field, Value: nil}},
		}}}
	}
	return bson.D{{Key: k.field, Value: bson.D{{Key: "$gt", Value: v}}}}
}

func anchorValue(doc docstore.Document, field string) any {
	if field == idKey {
		return doc.ID
	}
	v, _ := docstore.Lookup(doc.Fields, field)
	return v
}

func and(a, b bson.D) bson.D {
	if len(a) == 0 {
		return b
	}
	return bson.D{{Key: "$and", Value: bson.A{a, b}}}
}
