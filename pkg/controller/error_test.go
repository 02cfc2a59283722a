package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/pagination"
	"github.com/nimburion/crudkit/pkg/repository"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "message only", err: NewNotFoundError("entity not found"), want: "entity not found"},
		{name: "with cause", err: NewInternalError("database error", errors.New("timeout")), want: "database error: timeout"},
		{name: "code fallback", err: NewError("resource.gone", nil), want: "resource.gone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	opErr := func(kind, cause error) error {
		return &repository.OperationError{Op: "get", Collection: "notes", ID: "n1", Kind: kind, Err: cause}
	}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid filter",
			err:        &pagination.FilterError{Filter: pagination.FilterCondition{Key: "status", Operator: "=="}, Reason: "value must not be null", Kind: pagination.ErrInvalidFilterValue},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation.invalid_filter",
		},
		{
			name:       "unsupported filter",
			err:        &pagination.FilterError{Reason: "or groups are not supported", Kind: pagination.ErrUnsupportedFilter},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation.unsupported_filter",
		},
		{
			name:       "invalid cursor",
			err:        &pagination.QueryError{Collection: "notes", Err: docstore.ErrInvalidCursor},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation.invalid_cursor",
		},
		{name: "not found", err: opErr(repository.ErrNotFound, nil), wantStatus: http.StatusNotFound, wantCode: "resource.not_found"},
		{name: "already deleted", err: opErr(repository.ErrAlreadyDeleted, nil), wantStatus: http.StatusGone, wantCode: "resource.gone"},
		{name: "already exists", err: opErr(repository.ErrAlreadyExists, nil), wantStatus: http.StatusConflict, wantCode: "resource.conflict"},
		{
			name:       "permission denied",
			err:        opErr(repository.ErrRetrieval, fmt.Errorf("rpc: %w", docstore.ErrPermissionDenied)),
			wantStatus: http.StatusForbidden,
			wantCode:   "auth.forbidden",
		},
		{
			name:       "quota",
			err:        &pagination.QueryError{Collection: "notes", Err: docstore.ErrResourceExhausted},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "store.quota_exceeded",
		},
		{
			name:       "unavailable",
			err:        opErr(repository.ErrCreation, docstore.ErrUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "store.unavailable",
		},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal.error"},
		{name: "app error passthrough", err: fmt.Errorf("wrapped: %w", NewConflictError("dup", nil)), wantStatus: http.StatusConflict, wantCode: "resource.conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if got.HTTPStatus != tt.wantStatus || got.Code != tt.wantCode {
				t.Errorf("FromError() = %d %s, want %d %s", got.HTTPStatus, got.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	ctx := logger.ContextWithRequestID(context.Background(), "req-1")

	status, body := MapError(ctx, errors.New("secret connection string"))
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d", status)
	}
	if body.Error != "internal_server_error" || body.Message != "an unexpected error occurred" || body.RequestID != "req-1" {
		t.Errorf("body = %+v", body)
	}

	status, body = MapError(ctx, NewValidationError("bad input", map[string]any{"field": "email"}))
	if status != http.StatusBadRequest || body.Error != "validation_error" || body.Details["field"] != "email" {
		t.Errorf("validation mapping = %d %+v", status, body)
	}

	status, body = MapError(context.Background(), &repository.OperationError{Op: "get", Kind: repository.ErrAlreadyDeleted})
	if status != http.StatusGone || body.Error != "gone" || body.RequestID != "" {
		t.Errorf("gone mapping = %d %+v", status, body)
	}
}

type signup struct {
	Email string `json:"email" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Note  string `json:"note"`
}

type checked struct{ ok bool }

func (c checked) Validate() error {
	if !c.ok {
		return errors.New("not ok")
	}
	return nil
}

func TestValidateDTO(t *testing.T) {
	var nilDTO *signup
	tests := []struct {
		name    string
		dto     any
		wantErr bool
	}{
		{name: "nil", dto: nil, wantErr: true},
		{name: "nil pointer", dto: nilDTO, wantErr: true},
		{name: "required missing", dto: &signup{Email: "a@b.c"}, wantErr: true},
		{name: "required present", dto: &signup{Email: "a@b.c", Name: "A"}},
		{name: "validator fails", dto: checked{}, wantErr: true},
		{name: "validator passes", dto: checked{ok: true}},
		{name: "non struct", dto: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDTO(tt.dto)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDTO() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && FromError(err).HTTPStatus != http.StatusBadRequest {
				t.Errorf("ValidateDTO() status = %d", FromError(err).HTTPStatus)
			}
		})
	}

	err := ValidateDTO(&signup{})
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("ValidateDTO() = %v", err)
	}
	missing, _ := appErr.Details["missing"].([]string)
	if len(missing) != 2 || missing[0] != "email" || missing[1] != "name" {
		t.Errorf("missing = %v", missing)
	}
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	if fe.Err() != nil {
		t.Fatal("empty FieldErrors must not fail")
	}
	fe.Add("phone", "too short")
	fe.Add("email", "invalid format")
	err := fe.Err()
	if err == nil || err.Error() != "invalid fields: email, phone" {
		t.Errorf("Err() = %v", err)
	}
}
