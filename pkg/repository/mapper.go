package repository

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/pagination"
)

// Lifecycle field names stamped by the repository.
const (
	IDField        = pagination.IDField
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
	DeletedAtField = pagination.SoftDeleteField
)

// Base carries the identifier and lifecycle timestamps. Embed it in document types.
type Base struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}

// Deleted reports whether the document is soft-deleted.
func (b Base) Deleted() bool {
	return b.DeletedAt != nil
}

// EntityMapper defines how to map between a document type and stored fields
type EntityMapper[T any] interface {
	// ToFields returns the stored fields of entity, excluding id and lifecycle fields.
	ToFields(entity *T) (map[string]any, error)

	// FromRecord builds an entity from a mapped document.
	FromRecord(rec pagination.Record) (*T, error)
}

// ReflectionMapper maps structs through their json tags. Anonymous embedded
// structs are flattened, "-" fields are skipped and omitempty is honoured.
type ReflectionMapper[T any] struct{}

// NewReflectionMapper creates a new reflection-based entity mapper
func NewReflectionMapper[T any]() *ReflectionMapper[T] {
	return &ReflectionMapper[T]{}
}

// ToFields converts entity to a field map using reflection
func (m *ReflectionMapper[T]) ToFields(entity *T) (map[string]any, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	v := reflect.ValueOf(entity).Elem()
	if v.Kind() == reflect.Map {
		fields, ok := toValue(v).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unsupported map type %s", v.Type())
		}
		return withoutLifecycle(fields), nil
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("unsupported entity kind %s", v.Kind())
	}
	return withoutLifecycle(structFields(v)), nil
}

// FromRecord decodes rec into T with pagination.DecodeRecord
func (m *ReflectionMapper[T]) FromRecord(rec pagination.Record) (*T, error) {
	entity, err := pagination.DecodeRecord[T](rec)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func withoutLifecycle(fields map[string]any) map[string]any {
	for _, key := range []string{IDField, CreatedAtField, UpdatedAtField, DeletedAtField} {
		delete(fields, key)
	}
	return fields
}

var timeType = reflect.TypeOf(time.Time{})

func structFields(v reflect.Value) map[string]any {
	out := map[string]any{}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}

		fv := v.Field(i)
		if field.Anonymous && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				for k, val := range structFields(fv) {
					out[k] = val
				}
				continue
			}
		}

		if name == "" {
			name = field.Name
		}
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}
		out[name] = toValue(fv)
	}
	return out
}

// toValue converts reflected values to plain maps, slices and scalars,
// keeping time.Time intact.
func toValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return toValue(v.Elem())
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface()
		}
		return structFields(v)
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = toValue(v.Index(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = toValue(iter.Value())
		}
		return out
	}
	if v.Type().PkgPath() != "" {
		// Named scalars such as `type Status string` are stored as their
		// underlying kind so stores compare them with plain filter values.
		switch v.Kind() {
		case reflect.String:
			return v.String()
		case reflect.Bool:
			return v.Bool()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return v.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return v.Uint()
		case reflect.Float32, reflect.Float64:
			return v.Float()
		}
	}
	return v.Interface()
}
