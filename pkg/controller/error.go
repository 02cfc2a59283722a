package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
)

// AppError is the error contract rendered to HTTP clients.
type AppError struct {
	Code            string
	FallbackMessage string
	Details         map[string]any
	HTTPStatus      int
	Cause           error
}

// NewError creates an AppError with a machine-readable code.
func NewError(code string, cause error) *AppError {
	return &AppError{Code: code, Cause: cause}
}

func (e *AppError) Error() string {
	msg := e.FallbackMessage
	if msg == "" {
		msg = e.Code
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithMessage sets the human-readable message.
func (e *AppError) WithMessage(msg string) *AppError {
	e.FallbackMessage = msg
	return e
}

// WithHTTPStatus sets the response status.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// WithDetails attaches structured details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewValidationError creates a 400 error.
func NewValidationError(message string, details map[string]any) *AppError {
	return NewError("validation.failed", nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusBadRequest).
		WithDetails(details)
}

// NewBadRequestError creates a 400 error for malformed requests.
func NewBadRequestError(message string, cause error) *AppError {
	return NewError("validation.bad_request", cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *AppError {
	return NewError("resource.not_found", nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusNotFound)
}

// NewConflictError creates a 409 error.
func NewConflictError(message string, cause error) *AppError {
	return NewError("resource.conflict", cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusConflict)
}

// NewInternalError creates a 500 error.
func NewInternalError(message string, cause error) *AppError {
	return NewError("internal.error", cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusInternalServerError)
}

// FromError classifies err into an AppError. Errors that are already an
// AppError are returned as is.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var filterErr *pagination.FilterError
	switch {
	case errors.As(err, &filterErr):
		details := map[string]any{"reason": filterErr.Reason}
		if filterErr.Filter.Key != "" {
			details["key"] = filterErr.Filter.Key
			details["operator"] = string(filterErr.Filter.Operator)
		}
		code := "validation.invalid_filter"
		if errors.Is(err, pagination.ErrUnsupportedFilter) {
			code = "validation.unsupported_filter"
		}
		return NewError(code, err).
			WithMessage(filterErr.Error()).
			WithHTTPStatus(http.StatusBadRequest).
			WithDetails(details)
	case errors.Is(err, docstore.ErrInvalidCursor):
		return NewError("validation.invalid_cursor", err).
			WithMessage("lastVisible is not a valid cursor").
			WithHTTPStatus(http.StatusBadRequest)
	case errors.Is(err, repository.ErrAlreadyDeleted):
		return NewError("resource.gone", err).
			WithMessage("entity has been deleted").
			WithHTTPStatus(http.StatusGone)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		return NewError("resource.not_found", err).
			WithMessage("entity not found").
			WithHTTPStatus(http.StatusNotFound)
	case errors.Is(err, repository.ErrAlreadyExists), errors.Is(err, docstore.ErrAlreadyExists):
		return NewConflictError("entity already exists", err)
	case errors.Is(err, docstore.ErrPermissionDenied):
		return NewError("auth.forbidden", err).
			WithMessage("permission denied by the document store").
			WithHTTPStatus(http.StatusForbidden)
	case errors.Is(err, docstore.ErrResourceExhausted):
		return NewError("store.quota_exceeded", err).
			WithMessage("document store quota exceeded").
			WithHTTPStatus(http.StatusTooManyRequests)
	case errors.Is(err, docstore.ErrUnavailable):
		return NewError("store.unavailable", err).
			WithMessage("document store temporarily unavailable").
			WithHTTPStatus(http.StatusServiceUnavailable)
	case errors.Is(err, docstore.ErrFailedPrecondition):
		return NewInternalError("query requires an index that does not exist", err)
	}
	return NewInternalError("an unexpected error occurred", err)
}

// MapError converts err into a status and response body.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	appErr := FromError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	// FallbackMessage never carries the cause, so it is safe to expose.
	message := appErr.FallbackMessage
	if message == "" {
		message = "an unexpected error occurred"
	}

	return status, ErrorResponse{
		Error:     errorCategory(status, appErr.Code),
		Code:      appErr.Code,
		Message:   message,
		RequestID: logger.RequestIDFromContext(ctx),
		Details:   appErr.Details,
	}
}

func errorCategory(status int, code string) string {
	if strings.HasPrefix(code, "validation.") {
		return "validation_error"
	}
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGone:
		return "gone"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= 500 {
		return "internal_server_error"
	}
	return "application_error"
}
