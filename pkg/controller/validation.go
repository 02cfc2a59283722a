package controller

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Validator is implemented by request DTOs with their own rules.
type Validator interface {
	Validate() error
}

// ValidateDTO runs dto's Validate method when it has one. Otherwise it
// checks exported fields tagged `validate:"required"` for zero values.
func ValidateDTO(dto any) error {
	v := reflect.ValueOf(dto)
	if dto == nil || v.Kind() == reflect.Pointer && v.IsNil() {
		return NewValidationError("request body is required", nil)
	}

	if validator, ok := dto.(Validator); ok {
		err := validator.Validate()
		if err == nil {
			return nil
		}
		var appErr *AppError
		if errors.As(err, &appErr) {
			return err
		}
		return NewValidationError(err.Error(), nil)
	}

	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var missing []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || !strings.Contains(field.Tag.Get("validate"), "required") {
			continue
		}
		if v.Field(i).IsZero() {
			missing = append(missing, fieldName(field))
		}
	}
	if len(missing) > 0 {
		return NewValidationError(
			fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
			map[string]any{"missing": missing},
		)
	}
	return nil
}

// FieldErrors collects per-field validation failures for a DTO.
type FieldErrors map[string]string

// Add records msg for field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = msg
}

// Err returns nil when nothing was recorded and a 400 AppError otherwise.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	details := make(map[string]any, len(f))
	fields := make([]string, 0, len(f))
	for k, v := range f {
		details[k] = v
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return NewValidationError("invalid fields: "+strings.Join(fields, ", "), details)
}

func fieldName(f reflect.StructField) string {
	name := strings.Split(f.Tag.Get("json"), ",")[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
