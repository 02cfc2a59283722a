package memory

import (
	"reflect"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// type classes, in ascending sort order
const (
	classNull = iota
	classBool
	classNumber
	classTime
	classString
	classArray
	classMap
	classOther
)

func classify(v any) (int, any) {
	switch val := v.(type) {
	case nil:
		return classNull, nil
	case bool:
		return classBool, val
	case string:
		return classString, val
	case time.Time:
		return classTime, val
	case *time.Time:
		if val == nil {
			return classNull, nil
		}
		return classTime, *val
	case map[string]any:
		return classMap, val
	}
	if f, ok := toFloat(v); ok {
		return classNumber, f
	}
	if items, ok := docstore.AsSlice(v); ok {
		return classArray, items
	}
	return classOther, v
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// compare orders any two values. Values of different classes order by class.
func compare(a, b any) int {
	ca, va := classify(a)
	cb, vb := classify(b)
	if ca != cb {
		return sign(ca - cb)
	}
	switch ca {
	case classNull:
		return 0
	case classBool:
		x, y := va.(bool), vb.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case classNumber:
		x, y := va.(float64), vb.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case classTime:
		return va.(time.Time).Compare(vb.(time.Time))
	case classString:
		return strings.Compare(va.(string), vb.(string))
	case classArray:
		x, y := va.([]any), vb.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return sign(len(x) - len(y))
	}
	// maps and unknown types have no meaningful order
	return 0
}

func equal(a, b any) bool {
	ca, va := classify(a)
	cb, vb := classify(b)
	if ca != cb {
		return false
	}
	if ca == classMap || ca == classOther {
		return reflect.DeepEqual(va, vb)
	}
	return compare(a, b) == 0
}

func sameClass(a, b any) bool {
	ca, _ := classify(a)
	cb, _ := classify(b)
	return ca == cb
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func containsEqual(items []any, v any) bool {
	for _, item := range items {
		if equal(item, v) {
			return true
		}
	}
	return false
}

// matches evaluates one predicate with Firestore semantics: inequality and
// not-in skip documents lacking the field, range comparisons only match
// values of the same type class.
func matches(doc docstore.Document, p docstore.Predicate) bool {
	var (
		value   any
		present bool
	)
	if p.Field == docstore.DocumentID {
		value, present = doc.ID, true
	} else {
		value, present = docstore.Lookup(doc.Fields, p.Field)
	}

	switch p.Op {
	case docstore.OpEqual:
		if p.Value == nil {
			return !present || value == nil
		}
		return present && equal(value, p.Value)
	case docstore.OpNotEqual:
		if p.Value == nil {
			return present && value != nil
		}
		return present && value != nil && !equal(value, p.Value)
	case docstore.OpLess, docstore.OpLessOrEqual, docstore.OpGreater, docstore.OpGreaterOrEqual:
		if !present || value == nil || !sameClass(value, p.Value) {
			return false
		}
		c := compare(value, p.Value)
		switch p.Op {
		case docstore.OpLess:
			return c < 0
		case docstore.OpLessOrEqual:
			return c <= 0
		case docstore.OpGreater:
			return c > 0
		}
		return c >= 0
	case docstore.OpArrayContains:
		items, ok := docstore.AsSlice(value)
		return present && ok && containsEqual(items, p.Value)
	case docstore.OpArrayContainsAny:
		items, ok := docstore.AsSlice(value)
		wanted, _ := docstore.AsSlice(p.Value)
		if !present || !ok {
			return false
		}
		for _, w := range wanted {
			if containsEqual(items, w) {
				return true
			}
		}
		return false
	case docstore.OpIn:
		wanted, _ := docstore.AsSlice(p.Value)
		return present && containsEqual(wanted, value)
	case docstore.OpNotIn:
		wanted, _ := docstore.AsSlice(p.Value)
		return present && value != nil && !containsEqual(wanted, value)
	}
	return false
}
