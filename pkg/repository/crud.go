package repository

import (
	"context"

	"github.com/nimburion/crudkit/pkg/pagination"
)

// Reader provides read operations for documents of type T
type Reader[T any] interface {
	GetByID(ctx context.Context, id string) (*T, error)
	GetAll(ctx context.Context, req PageRequest) (*OffsetPage[T], error)
	Paginate(ctx context.Context, opts pagination.Options) (*pagination.Result[T], error)
}

// Writer provides write operations for documents of type T
type Writer[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)
	CreateWithID(ctx context.Context, id string, entity *T) (*T, error)
	Update(ctx context.Context, id string, partial map[string]any) (*T, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Repository combines Reader and Writer for complete CRUD operations
type Repository[T any] interface {
	Reader[T]
	Writer[T]
}

// SortOrder defines the sort direction for offset listings.
type SortOrder string

// Sort order constants
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Offset listing defaults.
const (
	DefaultSortField = CreatedAtField
	DefaultSortOrder = SortDesc
)

// PageRequest specifies an offset-based listing.
type PageRequest struct {
	Page  int
	Limit int
	Sort  string
	Order SortOrder
}

// WithDefaults fills unset fields: page 1, limit 10, newest first.
func (p PageRequest) WithDefaults() PageRequest {
	if p.Page < 1 {
		p.Page = pagination.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = pagination.DefaultLimit
	}
	if p.Sort == "" {
		p.Sort = DefaultSortField
	}
	if p.Order != SortAsc && p.Order != SortDesc {
		p.Order = DefaultSortOrder
	}
	return p
}

// Offset calculates the number of documents to skip. ok is false when the
// page lies beyond any representable offset.
func (p PageRequest) Offset() (offset int, ok bool) {
	return pagination.Offset(p.Page, p.Limit)
}

// OffsetPage is one page of an offset-based listing.
type OffsetPage[T any] struct {
	Data        []T   `json:"data"`
	TotalItems  int64 `json:"totalItems"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}
