package controller

import (
	"net/http"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/server/router"
)

// SuccessResponse is the envelope for successful responses. Single
// entities go in Data, listings in Pagination.
type SuccessResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// Success writes a 200 response carrying data.
func Success(c router.Context, message string, data any) error {
	return respond(c, http.StatusOK, SuccessResponse{Message: message, Data: data})
}

// Created writes a 201 response carrying data.
func Created(c router.Context, message string, data any) error {
	return respond(c, http.StatusCreated, SuccessResponse{Message: message, Data: data})
}

// Paginated writes a 200 response carrying a listing.
func Paginated(c router.Context, message string, page any) error {
	return respond(c, http.StatusOK, SuccessResponse{Message: message, Pagination: page})
}

// Error writes the mapped error response for err.
func Error(c router.Context, err error) error {
	status, body := MapError(c.Request().Context(), err)
	return c.JSON(status, body)
}

func respond(c router.Context, status int, body SuccessResponse) error {
	body.Success = true
	body.RequestID = logger.RequestIDFromContext(c.Request().Context())
	return c.JSON(status, body)
}
