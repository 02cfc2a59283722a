package docstore

import (
	"reflect"
	"strings"
	"time"
)

// AsSlice returns v as a []any when it is a slice or array (byte slices excluded).
func AsSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// SplitPath splits a dotted field path.
func SplitPath(field string) []string {
	return strings.Split(field, ".")
}

// Lookup resolves a dotted path inside fields.
func Lookup(fields map[string]any, field string) (any, bool) {
	var cur any = fields
	for _, part := range SplitPath(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath assigns value at a dotted path, creating intermediate maps.
func SetPath(fields map[string]any, field string, value any) {
	parts := SplitPath(field)
	cur := fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// EncodeTimes replaces every time.Time inside v with the store-native representation.
func EncodeTimes(s Store, v any) any {
	switch val := v.(type) {
	case time.Time:
		return s.EncodeTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return s.EncodeTime(*val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = EncodeTimes(s, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = EncodeTimes(s, item)
		}
		return out
	}
	if items, ok := AsSlice(v); ok {
		return EncodeTimes(s, items)
	}
	return v
}

// DecodeTimes replaces every store-native temporal value inside v with time.Time.
func DecodeTimes(s Store, v any) any {
	if t, ok := s.DecodeTime(v); ok {
		return t
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DecodeTimes(s, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DecodeTimes(s, item)
		}
		return out
	}
	return v
}

// CloneFields deep-copies nested maps and slices.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	return cloneValue(fields).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
