package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// Paging defaults.
const (
	DefaultPage     = 1
	DefaultLimit    = 10
	DefaultMaxLimit = 100
)

// DocumentID is the filter key addressing the document identifier.
const DocumentID = docstore.DocumentID

// FilterCondition is a single key/operator/value restriction. Key may be a
// dotted path or DocumentID.
type FilterCondition struct {
	Key      string            `json:"key"`
	Operator docstore.Operator `json:"operator"`
	Value    any               `json:"value"`
}

// UnmarshalJSON decodes {"$date": "<RFC3339>"} values, alone or inside a
// list, into time.Time.
func (f *FilterCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key      string            `json:"key"`
		Operator docstore.Operator `json:"operator"`
		Value    json.RawMessage   `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Key, f.Operator, f.Value = raw.Key, raw.Operator, nil
	if len(raw.Value) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return err
	}
	decoded, err := decodeValue(value)
	if err != nil {
		return fmt.Errorf("filter %q: %w", raw.Key, err)
	}
	f.Value = decoded
	return nil
}

func decodeValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case map[string]any:
		if s, ok := val["$date"].(string); ok && len(val) == 1 {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("invalid $date %q: %w", s, err)
			}
			return t, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			d, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			d, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
	return v, nil
}

// CompositeType combines the conditions of a CompositeFilter.
type CompositeType string

// Composite filter types.
const (
	CompositeAnd CompositeType = "and"
	CompositeOr  CompositeType = "or"
)

// CompositeFilter groups conditions under AND or OR.
type CompositeFilter struct {
	Type       CompositeType     `json:"type"`
	Conditions []FilterCondition `json:"conditions"`
}

// OrderBy is one sort key. Direction defaults to ascending.
type OrderBy struct {
	Field     string             `json:"field"`
	Direction docstore.Direction `json:"direction,omitempty"`
}

// OrderList is an ordered list of sort keys, the first being primary. In JSON
// it accepts either a single object or an array.
type OrderList []OrderBy

// UnmarshalJSON accepts an object or an array of objects.
func (o *OrderList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single OrderBy
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*o = OrderList{single}
		return nil
	}
	var list []OrderBy
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*o = list
	return nil
}

// DateRange bounds Field inclusively. Either end may be omitted.
type DateRange struct {
	Field string     `json:"field"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Options is the closed set of pagination options.
type Options struct {
	Page             int               `json:"page,omitempty"`
	Limit            int               `json:"limit,omitempty"`
	Filters          []FilterCondition `json:"filters,omitempty"`
	CompositeFilters []CompositeFilter `json:"compositeFilters,omitempty"`
	LastVisible      docstore.Cursor   `json:"lastVisible,omitempty"`
	OrderBy          OrderList         `json:"orderBy,omitempty"`
	Select           []string          `json:"select,omitempty"`
	DateRange        *DateRange        `json:"dateRange,omitempty"`
	// IncludeSoftDeleted is tri-state so repositories can apply their policy
	// default when the caller leaves it unset.
	IncludeSoftDeleted *bool `json:"includeSoftDeleted,omitempty"`
	All                bool  `json:"all,omitempty"`
}

// Bool returns a pointer to b, for IncludeSoftDeleted.
func Bool(b bool) *bool {
	return &b
}

// Offset returns how many documents precede page at limit. ok is false when
// the offset does not fit in an int.
func Offset(page, limit int) (offset int, ok bool) {
	if page <= 1 || limit <= 0 {
		return 0, true
	}
	if page-1 > math.MaxInt/limit {
		return 0, false
	}
	return (page - 1) * limit, true
}

// normalized applies defaults: page >= 1, limit in [1, maxLimit], empty
// order directions defaulted to ascending.
func (o Options) normalized(defaultLimit, maxLimit int) Options {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = defaultLimit
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	if maxLimit > 0 && o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	if len(o.OrderBy) > 0 {
		orders := make(OrderList, 0, len(o.OrderBy))
		for _, ob := range o.OrderBy {
			if ob.Direction == "" {
				ob.Direction = docstore.Asc
			}
			orders = append(orders, ob)
		}
		o.OrderBy = orders
	}
	return o
}
