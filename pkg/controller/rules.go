package controller

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	rulesOnce sync.Once
	rules     *validator.Validate
)

func ruleValidator() *validator.Validate {
	rulesOnce.Do(func() {
		rules = validator.New(validator.WithRequiredStructEnabled())
		rules.RegisterTagNameFunc(func(f reflect.StructField) string {
			return fieldName(f)
		})
	})
	return rules
}

// Messages maps "field.tag" (or just "field") to the message reported when
// that rule fails.
type Messages map[string]string

func (m Messages) lookup(field, tag string) string {
	if msg, ok := m[field+"."+tag]; ok {
		return msg
	}
	if msg, ok := m[field]; ok {
		return msg
	}
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "is too short"
	case "oneof":
		return "has an unsupported value"
	}
	return "is invalid"
}

// ValidateRules checks the `validate` struct tags of dto and reports every
// failing field, keyed by its json name, as a 400 validation error.
func ValidateRules(dto any, messages Messages) error {
	err := ruleValidator().Struct(dto)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err.Error(), nil)
	}
	fields := FieldErrors{}
	for _, fe := range verrs {
		name := fe.Field()
		if ns := fe.Namespace(); strings.Count(ns, ".") > 1 {
			name = ns[strings.Index(ns, ".")+1:]
		}
		fields.Add(name, messages.lookup(name, fe.Tag()))
	}
	return fields.Err()
}

// ValidateValue checks a single value against tag, recording the failure on
// fields under name.
func ValidateValue(fields FieldErrors, name string, value any, tag string, messages Messages) {
	if err := ruleValidator().Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields.Add(name, messages.lookup(name, verrs[0].Tag()))
			return
		}
		fields.Add(name, messages.lookup(name, ""))
	}
}
