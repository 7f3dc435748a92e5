// Package tax provides the tax movement ledger: the accumulation register
// every declaration and reconciliation figure is derived from.
package tax

import (
	"context"
	"time"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain"
)

// Filter narrows ledger queries.
type Filter struct {
	domain.ListFilter

	ItemID         *id.ID
	CounterpartyID *id.ID
	Status         *entity.DocStatus
	MovementType   *entity.MovementType
	RateSource     *entity.RateSource
	Category       *string

	DateFrom *time.Time
	DateTo   *time.Time

	// CreatedTo bounds the record's creation time, not the business date.
	CreatedTo *time.Time

	Year     *int
	Quarter  *int
	Semester *int

	SourceDocType string
	SourceDocID   string
}

// CounterpartyTotals is one aggregation row: submitted volumes and tax for
// one counterparty over a period. A nil CounterpartyID groups the internal
// movements (transfers, production) that have no counterparty.
type CounterpartyTotals struct {
	CounterpartyID *id.ID         `db:"counterparty_id"`
	Entries        types.Quantity `db:"entries"`
	Exits          types.Quantity `db:"exits"`
	TaxAmount      types.Money    `db:"tax_amount"`
}

// Repository is the ledger's persistence contract.
//
// Create must enforce line-level idempotency through the storage layer's
// uniqueness constraint on (source_doc_type, source_doc_id, source_line_no)
// over non-cancelled movements, surfacing violations as
// apperror.CodeMovementExists.
type Repository interface {
	Create(ctx context.Context, m *entity.TaxMovement) error
	Update(ctx context.Context, m *entity.TaxMovement) error
	GetByID(ctx context.Context, movementID id.ID) (*entity.TaxMovement, error)

	// FindActiveBySourceLine returns the non-cancelled movement for a
	// source document line, or a not-found error.
	FindActiveBySourceLine(ctx context.Context, docType, docID string, lineNo int) (*entity.TaxMovement, error)

	// ListBySourceDoc returns every movement (any status) tied to a
	// source document.
	ListBySourceDoc(ctx context.Context, docType, docID string) ([]*entity.TaxMovement, error)

	// Delete physically removes a movement. Only drafts may be deleted.
	Delete(ctx context.Context, movementID id.ID) error

	List(ctx context.Context, filter Filter) (domain.ListResult[*entity.TaxMovement], error)

	// RecentSubmitted returns submitted movements of an item dated since
	// the given time, newest first, capped at limit.
	RecentSubmitted(ctx context.Context, itemID id.ID, since time.Time, limit int) ([]*entity.TaxMovement, error)

	// PeriodTotals aggregates submitted movements in [from, to] grouped
	// by counterparty.
	PeriodTotals(ctx context.Context, from, to time.Time) ([]CounterpartyTotals, error)
}
