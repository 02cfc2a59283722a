package repository

import (
	"errors"
	"fmt"
)

// Error kinds returned by repository operations. Match them with errors.Is.
var (
	ErrNotFound       = errors.New("document not found")
	ErrAlreadyDeleted = errors.New("document has been deleted")
	ErrAlreadyExists  = errors.New("document already exists")
	ErrCreation       = errors.New("failed to create document")
	ErrUpdate         = errors.New("failed to update document")
	ErrDeletion       = errors.New("failed to delete document")
	ErrRetrieval      = errors.New("failed to retrieve document")
)

// OperationError describes a failed repository operation. Kind is one of the
// package error kinds; Err, when set, is the underlying cause.
type OperationError struct {
	Op         string
	Collection string
	ID         string
	Kind       error
	Err        error
}

func (e *OperationError) Error() string {
	target := e.Collection
	if e.ID != "" {
		target = fmt.Sprintf("%s/%s", e.Collection, e.ID)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, target, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, target, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *OperationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
