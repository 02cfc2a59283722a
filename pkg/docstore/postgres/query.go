package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/nimburion/crudkit/pkg/docstore"
)

const jsonNull = "'null'::jsonb"

var rangeOps = map[docstore.Operator]string{
	docstore.OpLess:           "<",
	docstore.OpLessOrEqual:    "<=",
	docstore.OpGreater:        ">",
	docstore.OpGreaterOrEqual: ">=",
}

// sqlBuilder accumulates positional arguments.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) param(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) jsonParam(v any) (string, error) {
	raw, err := json.Marshal(encodeValue(v))
	if err != nil {
		return "", fmt.Errorf("%w: value %v cannot be compared as JSON: %v", docstore.ErrUnsupported, v, err)
	}
	return b.param(string(raw)) + "::jsonb", nil
}

func (b *sqlBuilder) jsonList(p docstore.Predicate, wrap bool) ([]string, error) {
	items, ok := docstore.AsSlice(p.Value)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list for %s", docstore.ErrUnsupported, p.Op, p.Field)
	}
	out := make([]string, len(items))
	for i, item := range items {
		var v any = item
		if wrap {
			v = []any{item}
		}
		ph, err := b.jsonParam(v)
		if err != nil {
			return nil, err
		}
		out[i] = ph
	}
	return out, nil
}

// fieldExpr addresses a document field as JSONB. The id column is lifted to
// JSONB so that every predicate compares JSONB values.
func fieldExpr(field string) string {
	if field == docstore.DocumentID {
		return "to_jsonb(id)"
	}
	var sb strings.Builder
	sb.WriteString("data")
	for _, part := range docstore.SplitPath(field) {
		sb.WriteString("->")
		sb.WriteString(pq.QuoteLiteral(part))
	}
	return sb.String()
}

func (b *sqlBuilder) where(q docstore.Query) (string, error) {
	conds := []string{"collection = " + b.param(q.Collection)}
	for _, p := range q.Where {
		c, err := b.predicate(p)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	for _, group := range q.AnyOf {
		var ors []string
		for _, p := range group {
			c, err := b.predicate(p)
			if err != nil {
				return "", err
			}
			ors = append(ors, c)
		}
		if len(ors) > 0 {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	return strings.Join(conds, " AND "), nil
}

// predicate renders one predicate. Inequalities exclude documents lacking
// the field and range comparisons only match values of the same JSON type.
func (b *sqlBuilder) predicate(p docstore.Predicate) (string, error) {
	x := fieldExpr(p.Field)
	present := fmt.Sprintf("%s IS NOT NULL AND %s <> %s", x, x, jsonNull)

	switch p.Op {
	case docstore.OpEqual:
		if p.Value == nil {
			return fmt.Sprintf("(%s IS NULL OR %s = %s)", x, x, jsonNull), nil
		}
		v, err := b.jsonParam(p.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", x, v), nil
	case docstore.OpNotEqual:
		if p.Value == nil {
			return "(" + present + ")", nil
		}
		v, err := b.jsonParam(p.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s AND %s <> %s)", present, x, v), nil
	case docstore.OpLess, docstore.OpLessOrEqual, docstore.OpGreater, docstore.OpGreaterOrEqual:
		if p.Value == nil {
			return "FALSE", nil
		}
		v, err := b.jsonParam(p.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = jsonb_typeof(%s) AND %s %s %s)", x, v, x, rangeOps[p.Op], v), nil
	case docstore.OpArrayContains:
		v, err := b.jsonParam([]any{p.Value})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND %s @> %s)", x, x, v), nil
	case docstore.OpArrayContainsAny:
		list, err := b.jsonList(p, true)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = x + " @> " + v
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND (%s))", x, strings.Join(parts, " OR ")), nil
	case docstore.OpIn:
		list, err := b.jsonList(p, false)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s IN (%s)", x, strings.Join(list, ", ")), nil
	case docstore.OpNotIn:
		list, err := b.jsonList(p, false)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "(" + present + ")", nil
		}
		return fmt.Sprintf("(%s AND %s NOT IN (%s))", present, x, strings.Join(list, ", ")), nil
	}
	return "", fmt.Errorf("%w: operator %q", docstore.ErrUnsupported, p.Op)
}

// sortKey is one ORDER BY term. Missing fields sort as JSON null, which
// orders before every other JSONB value.
type sortKey struct {
	expr  string
	field string
	desc  bool
	id    bool
}

func sortKeys(orders []docstore.Order) []sortKey {
	keys := make([]sortKey, 0, len(orders)+1)
	last, hasID := false, false
	for _, o := range orders {
		k := sortKey{field: o.Field, desc: o.Direction == docstore.Desc}
		if o.Field == docstore.DocumentID {
			k.expr, k.id, hasID = "id", true, true
		} else {
			k.expr = fmt.Sprintf("COALESCE(%s, %s)", fieldExpr(o.Field), jsonNull)
		}
		keys = append(keys, k)
		last = k.desc
	}
	if !hasID {
		keys = append(keys, sortKey{expr: "id", field: docstore.DocumentID, desc: last, id: true})
	}
	return keys
}

func orderClause(keys []sortKey) string {
	terms := make([]string, len(keys))
	for i, k := range keys {
		dir := "ASC"
		if k.desc {
			dir = "DESC"
		}
		terms[i] = k.expr + " " + dir
	}
	return strings.Join(terms, ", ")
}

// after selects rows sorting strictly after anchor under keys.
func (b *sqlBuilder) after(keys []sortKey, anchor docstore.Document) (string, error) {
	var branches, prefix []string
	for _, k := range keys {
		var v string
		if k.id {
			v = b.param(anchor.ID)
		} else {
			value, _ := docstore.Lookup(anchor.Fields, k.field)
			ph, err := b.jsonParam(value)
			if err != nil {
				return "", err
			}
			v = ph
		}
		cmp := ">"
		if k.desc {
			cmp = "<"
		}
		branch := append(append([]string{}, prefix...), fmt.Sprintf("%s %s %s", k.expr, cmp, v))
		branches = append(branches, "("+strings.Join(branch, " AND ")+")")
		prefix = append(prefix, fmt.Sprintf("%s = %s", k.expr, v))
	}
	return "(" + strings.Join(branches, " OR ") + ")", nil
}

func (s *Store) selectSQL(q docstore.Query, anchor *docstore.Document) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	keys := sortKeys(q.OrderBy)
	if anchor != nil {
		after, err := b.after(keys, *anchor)
		if err != nil {
			return "", nil, err
		}
		where += " AND " + after
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, data FROM %s WHERE %s ORDER BY %s", s.table, where, orderClause(keys))
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.param(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + b.param(q.Offset))
	}
	return sb.String(), b.args, nil
}

func (s *Store) countSQL(q docstore.Query) (string, []any, error) {
	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.table, where), b.args, nil
}
