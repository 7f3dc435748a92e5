package entity

import (
	"context"
	"time"

	"gnrtax/internal/core/apperror"
)

// DocStatus is the lifecycle state shared by ledger documents.
// Transitions: draft -> submitted -> cancelled. Drafts may be hard-deleted;
// submitted documents are only ever cancelled (soft), preserving the audit trail.
type DocStatus string

const (
	StatusDraft     DocStatus = "draft"
	StatusSubmitted DocStatus = "submitted"
	StatusCancelled DocStatus = "cancelled"
)

// Document is the base type for business transactions
// (tax movements, declaration periods).
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, unique within type+period)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Status is the lifecycle state
	Status DocStatus `db:"status" json:"status"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new draft Document with generated ID.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		Status:       StatusDraft,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// CanModify checks if document can be modified.
// Only drafts may be edited; corrections go through supersede.
func (d *Document) CanModify() error {
	if d.Status != StatusDraft {
		return apperror.NewBusinessRule(
			apperror.CodeMovementSubmitted,
			"Cannot modify a submitted or cancelled document.",
		).WithDetail("document_id", d.ID.String()).
			WithDetail("status", string(d.Status))
	}
	return nil
}

// IsDraft reports whether the document is still a draft.
func (d *Document) IsDraft() bool { return d.Status == StatusDraft }

// IsSubmitted reports whether the document is submitted.
func (d *Document) IsSubmitted() bool { return d.Status == StatusSubmitted }

// IsCancelled reports whether the document is cancelled.
func (d *Document) IsCancelled() bool { return d.Status == StatusCancelled }

// IsActive reports whether the document counts toward the ledger
// (anything not cancelled).
func (d *Document) IsActive() bool { return d.Status != StatusCancelled }

// MarkSubmitted transitions the document to submitted.
func (d *Document) MarkSubmitted() {
	d.Status = StatusSubmitted
	d.Touch()
}

// MarkCancelled transitions the document to cancelled.
func (d *Document) MarkCancelled() {
	d.Status = StatusCancelled
	d.Touch()
}

// IsBackdated checks if document date is in the past.
func (d *Document) IsBackdated() bool {
	return d.Date.Before(time.Now().UTC().Truncate(24 * time.Hour))
}
