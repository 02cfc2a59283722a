// Package subscription serves the subscription resource. Besides the generic
// CRUD routes it can cancel a subscription and list the subscriptions of one
// user.
package subscription

import (
	"context"
	"time"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
	"github.com/nimburion/crudkit/pkg/service"
)

const (
	// Collection holds subscription documents.
	Collection = "subscriptions"
	// BasePath is where the subscription routes are mounted.
	BasePath = "/api/v1/subscriptions"
)

// Status is the lifecycle state of a subscription.
type Status string

// Subscription states.
const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusPending   Status = "pending"
)

// Subscription is a user's subscription to a plan.
type Subscription struct {
	repository.Base
	UserID          string     `json:"userId"`
	PlanID          string     `json:"planId"`
	Status          Status     `json:"status"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	LastBillingDate *time.Time `json:"lastBillingDate,omitempty"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	PaymentMethod   string     `json:"paymentMethod"`
	AutoRenew       bool       `json:"autoRenew"`
	CancelReason    string     `json:"cancelReason,omitempty"`
}

// NewRepository returns the subscription repository over store.
func NewRepository(store docstore.Store, opts ...repository.Option) *repository.GenericRepository[Subscription] {
	return repository.NewGenericRepository[Subscription](store, Collection, opts...)
}

// Service adds cancellation and per-user listing to the generic service.
type Service struct {
	*service.Service[Subscription]
}

// NewService wraps svc.
func NewService(svc *service.Service[Subscription]) *Service {
	return &Service{Service: svc}
}

// Cancel marks a live subscription cancelled and turns off renewal. An empty
// reason leaves any previous cancelReason in place.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*Subscription, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	partial := map[string]any{
		"status":    string(StatusCancelled),
		"autoRenew": false,
	}
	if reason != "" {
		partial["cancelReason"] = reason
	}
	return s.Update(ctx, id, partial)
}

// ListByUser pages through the live subscriptions of userID.
func (s *Service) ListByUser(ctx context.Context, userID string, page, limit int) (*pagination.Result[Subscription], error) {
	return s.Paginator(ctx, pagination.Options{
		Page:  page,
		Limit: limit,
		Filters: []pagination.FilterCondition{
			{Key: "userId", Operator: docstore.OpEqual, Value: userID},
		},
	})
}
