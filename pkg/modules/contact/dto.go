package contact

import (
	"fmt"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/server/router"
)

var messages = controller.Messages{
	"firstName": "First name is required",
	"lastName":  "Last name is required",
	"email":     "Invalid email format",
	"phone":     "Phone must be at least 10 digits",
}

// CreateRequest is the body of POST /contacts.
type CreateRequest struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=10"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Validate implements controller.Validator.
func (r *CreateRequest) Validate() error {
	return controller.ValidateRules(r, messages)
}

func (r *CreateRequest) contact() *Contact {
	return &Contact{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      normalizeEmail(r.Email),
		Phone:      r.Phone,
		Address:    r.Address,
		PostalCode: r.PostalCode,
		City:       r.City,
		Country:    r.Country,
		Message:    r.Message,
		Active:     true,
	}
}

// updateRules lists the fields a PATCH or PUT may change. Other keys are dropped.
var updateRules = map[string]string{
	"firstName":  "min=1",
	"lastName":   "min=1",
	"email":      "email",
	"phone":      "min=10",
	"address":    "",
	"postalCode": "",
	"city":       "",
	"country":    "",
	"message":    "",
	"active":     "",
}

func decodeCreate(c router.Context) (*Contact, error) {
	req, err := controller.BindAndValidate[CreateRequest](c)
	if err != nil {
		return nil, err
	}
	return req.contact(), nil
}

func decodeUpdate(c router.Context) (map[string]any, error) {
	body, err := controller.BindPartial(c)
	if err != nil {
		return nil, err
	}

	partial := make(map[string]any, len(body))
	fields := controller.FieldErrors{}
	for key, value := range body {
		rule, known := updateRules[key]
		if !known {
			continue
		}
		if key == "active" {
			if _, ok := value.(bool); !ok {
				fields.Add(key, "must be a boolean")
				continue
			}
			partial[key] = value
			continue
		}
		s, ok := value.(string)
		if !ok {
			fields.Add(key, fmt.Sprintf("must be a string, got %T", value))
			continue
		}
		if key == "email" {
			s = normalizeEmail(s)
		}
		if rule != "" {
			controller.ValidateValue(fields, key, s, rule, messages)
		}
		partial[key] = s
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return nil, controller.NewValidationError("update requires at least one contact field", nil)
	}
	return partial, nil
}
