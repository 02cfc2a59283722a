package subscription

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nimburion/crudkit/pkg/controller"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/server/router"
)

var messages = controller.Messages{
	"userId":        "User ID is required",
	"planId":        "Plan ID is required",
	"paymentMethod": "Payment method is required",
	"currency":      "Currency is required",
	"amount":        "Amount must be positive",
	"status":        "Status must be one of active, cancelled, expired, pending",
}

// CreateRequest is the body of POST /subscriptions.
type CreateRequest struct {
	UserID        string  `json:"userId" validate:"required"`
	PlanID        string  `json:"planId" validate:"required"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Currency      string  `json:"currency" validate:"required"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	// AutoRenew defaults to true.
	AutoRenew *bool `json:"autoRenew,omitempty"`
}

// Validate implements controller.Validator.
func (r *CreateRequest) Validate() error {
	return controller.ValidateRules(r, messages)
}

// CancelRequest is the optional body of POST /subscriptions/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Module wires the subscription service to its routes.
type Module struct {
	service    *Service
	controller *controller.Controller[Subscription]
	now        func() time.Time
}

// New creates the subscription module over svc.
func New(svc *Service) *Module {
	m := &Module{service: svc, now: time.Now}
	m.controller = controller.New[Subscription](svc,
		controller.WithCreateDecoder[Subscription](m.decodeCreate),
		controller.WithUpdateDecoder[Subscription](decodeUpdate),
	)
	return m
}

// Service returns the subscription service.
func (m *Module) Service() *Service {
	return m.service
}

// Register mounts the subscription routes under BasePath. The user listing
// and cancel routes go first so /:id does not shadow them.
func (m *Module) Register(r router.Router) error {
	g := r.Group(BasePath)
	g.GET("/user/:userId", m.ListByUser)
	g.POST("/:id/cancel", m.Cancel)
	m.controller.Register(g)
	return nil
}

// Cancel handles POST /:id/cancel.
func (m *Module) Cancel(c router.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, router.ErrEmptyBody) {
		return controller.NewBadRequestError("invalid request body", err)
	}
	sub, err := m.service.Cancel(c.Request().Context(), c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		return err
	}
	return controller.Success(c, "Subscription cancelled successfully", sub)
}

// ListByUser handles GET /user/:userId with page and limit.
func (m *Module) ListByUser(c router.Context) error {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		return controller.NewValidationError("userId is required", nil)
	}
	page, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	result, err := m.service.ListByUser(c.Request().Context(), userID, page, limit)
	if err != nil {
		return err
	}
	return controller.Paginated(c, "Fetched user subscriptions successfully", result)
}

func (m *Module) decodeCreate(c router.Context) (*Subscription, error) {
	req, err := controller.BindAndValidate[CreateRequest](c)
	if err != nil {
		return nil, err
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	return &Subscription{
		UserID:        req.UserID,
		PlanID:        req.PlanID,
		Status:        StatusActive,
		StartDate:     m.now().UTC(),
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		PaymentMethod: req.PaymentMethod,
		AutoRenew:     autoRenew,
	}, nil
}

func decodeUpdate(c router.Context) (map[string]any, error) {
	body, err := controller.BindPartial(c)
	if err != nil {
		return nil, err
	}

	partial := make(map[string]any, len(body))
	fields := controller.FieldErrors{}
	for key, value := range body {
		switch key {
		case "autoRenew":
			if _, ok := value.(bool); !ok {
				fields.Add(key, "must be a boolean")
				continue
			}
			partial[key] = value
		case "status":
			s, _ := value.(string)
			controller.ValidateValue(fields, key, s, "oneof=active cancelled expired pending", messages)
			partial[key] = s
		case "cancelReason", "paymentMethod":
			s, ok := value.(string)
			if !ok {
				fields.Add(key, "must be a string")
				continue
			}
			partial[key] = s
		}
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return nil, controller.NewValidationError("update requires at least one subscription field", nil)
	}
	return partial, nil
}

func pageParams(c router.Context) (int, int, error) {
	page, limit := pagination.DefaultPage, pagination.DefaultLimit
	for name, dst := range map[string]*int{"page": &page, "limit": &limit} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, controller.NewBadRequestError("invalid page or limit parameters", err)
		}
		*dst = n
	}
	return page, limit, nil
}
