package docstore

import "errors"

// Store error kinds. Backends wrap native failures with one of these so callers
// can classify them with errors.Is while the native cause stays in the chain.
var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrInvalidCursor      = errors.New("invalid cursor")
	ErrUnsupported        = errors.New("operation not supported by store")
	ErrFailedPrecondition = errors.New("query requires an index")
	ErrResourceExhausted  = errors.New("store quota exceeded")
	ErrPermissionDenied   = errors.New("store permission denied")
	ErrUnavailable        = errors.New("store unavailable")
)
