// Package contact serves the contact resource: the generic CRUD routes plus
// request validation and email normalization.
package contact

import (
	"strings"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/repository"
	"github.com/nimburion/crudkit/pkg/server/router"
	"github.com/nimburion/crudkit/pkg/service"
)

const (
	// Collection holds contact documents.
	Collection = "contacts"
	// BasePath is where the contact routes are mounted.
	BasePath = "/api/v1/contacts"
)

// Contact is a stored contact.
type Contact struct {
	repository.Base
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Message    string `json:"message,omitempty"`
	Active     bool   `json:"active"`
}

// NewRepository returns the contact repository over store.
func NewRepository(store docstore.Store, opts ...repository.Option) *repository.GenericRepository[Contact] {
	return repository.NewGenericRepository[Contact](store, Collection, opts...)
}

// Module wires the contact service to its routes.
type Module struct {
	service    *service.Service[Contact]
	controller *controller.Controller[Contact]
}

// New creates the contact module over svc.
func New(svc *service.Service[Contact]) *Module {
	return &Module{
		service: svc,
		controller: controller.New[Contact](svc,
			controller.WithCreateDecoder[Contact](decodeCreate),
			controller.WithUpdateDecoder[Contact](decodeUpdate),
		),
	}
}

// Service returns the contact service.
func (m *Module) Service() *service.Service[Contact] {
	return m.service
}

// Register mounts the contact routes under BasePath.
func (m *Module) Register(r router.Router) error {
	m.controller.Register(r.Group(BasePath))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
