package pagination

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nimburion/crudkit/pkg/docstore"
)

// IDField is the key under which a record carries its document id.
const IDField = "id"

// Record is a mapped document: its id plus its fields with portable values.
type Record map[string]any

// ID returns the record's document id.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// MapDocument converts a stored document into a Record, decoding
// store-native temporal values. A non-empty sel keeps only id and the listed
// fields that are present.
func MapDocument(store docstore.Store, doc docstore.Document, sel []string) Record {
	fields := docstore.DecodeTimes(store, map[string]any(doc.Fields)).(map[string]any)
	if len(sel) == 0 {
		out := make(Record, len(fields)+1)
		for k, v := range fields {
			out[k] = v
		}
		out[IDField] = doc.ID
		return out
	}

	out := Record{IDField: doc.ID}
	for _, field := range sel {
		if field == IDField {
			continue
		}
		if v, ok := docstore.Lookup(fields, field); ok {
			docstore.SetPath(out, field, v)
		}
	}
	return out
}

// MapDocuments maps every document with MapDocument.
func MapDocuments(store docstore.Store, docs []docstore.Document, sel []string) []Record {
	out := make([]Record, len(docs))
	for i, doc := range docs {
		out[i] = MapDocument(store, doc, sel)
	}
	return out
}

// Decoder turns a Record into the caller's type.
type Decoder[T any] func(Record) (T, error)

// DecodeRecord decodes r into T using json field names, flattening embedded
// structs. Records and plain maps pass through unchanged.
func DecodeRecord[T any](r Record) (T, error) {
	var out T
	switch target := any(&out).(type) {
	case *Record:
		*target = r
		return out, nil
	case *map[string]any:
		*target = map[string]any(r)
		return out, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return out, fmt.Errorf("decode %s into %s: %w", r.ID(), reflect.TypeOf(out), err)
	}
	return out, nil
}

// AppliedComposite echoes a composite filter group.
type AppliedComposite struct {
	Type       CompositeType    `json:"type"`
	Conditions []map[string]any `json:"conditions"`
}

// AppliedFilters describes the filters and ordering a result was computed
// with. It is descriptive only.
type AppliedFilters struct {
	Filters          map[string]any                `json:"filters"`
	CompositeFilters []AppliedComposite            `json:"compositeFilters,omitempty"`
	DateRange        *DateRange                    `json:"dateRange,omitempty"`
	OrderBy          map[string]docstore.Direction `json:"orderBy"`
}

// Normalize builds the applied-filter metadata. A key appearing twice keeps
// its last value.
func Normalize(opts Options) AppliedFilters {
	applied := AppliedFilters{
		Filters:   make(map[string]any, len(opts.Filters)),
		DateRange: opts.DateRange,
		OrderBy:   make(map[string]docstore.Direction, len(opts.OrderBy)),
	}
	for _, f := range opts.Filters {
		applied.Filters[f.Key] = f.Value
	}
	for _, group := range opts.CompositeFilters {
		echo := AppliedComposite{Type: group.Type, Conditions: make([]map[string]any, 0, len(group.Conditions))}
		for _, f := range group.Conditions {
			echo.Conditions = append(echo.Conditions, map[string]any{f.Key: f.Value})
		}
		applied.CompositeFilters = append(applied.CompositeFilters, echo)
	}
	for _, ob := range opts.OrderBy {
		dir := ob.Direction
		if dir != docstore.Desc {
			dir = docstore.Asc
		}
		applied.OrderBy[ob.Field] = dir
	}
	return applied
}
