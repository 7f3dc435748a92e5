package item

import (
	"context"

	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
)

// Repository defines operations for the tracked item catalog.
type Repository interface {
	Create(ctx context.Context, item *TrackedItem) error
	GetByID(ctx context.Context, itemID id.ID) (*TrackedItem, error)
	GetByCode(ctx context.Context, code string) (*TrackedItem, error)
	Update(ctx context.Context, item *TrackedItem) error
	Delete(ctx context.Context, itemID id.ID) error
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*TrackedItem], error)
	Exists(ctx context.Context, itemID id.ID) (bool, error)
}

// ListFilter for filtering tracked items.
type ListFilter struct {
	domain.ListFilter

	Tracked  *bool
	Category *string
}
