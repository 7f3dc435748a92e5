package declaration

import (
	"context"
	"time"

	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
)

// ListFilter narrows declaration queries.
type ListFilter struct {
	domain.ListFilter

	PeriodType *PeriodType
	Year       *int
	Status     *Status
}

// Repository is the declaration persistence contract.
type Repository interface {
	Create(ctx context.Context, d *Declaration) error
	Update(ctx context.Context, d *Declaration) error
	GetByID(ctx context.Context, declID id.ID) (*Declaration, error)

	// FindActiveByPeriod returns the non-cancelled declaration covering
	// a period, or a not-found error.
	FindActiveByPeriod(ctx context.Context, t PeriodType, year, index int) (*Declaration, error)

	// FindLatestBefore returns the most recent active declaration of the
	// same type ending strictly before the given date, used to chain
	// opening stocks. Not-found means "first period ever".
	FindLatestBefore(ctx context.Context, t PeriodType, before time.Time) (*Declaration, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Declaration], error)
}
