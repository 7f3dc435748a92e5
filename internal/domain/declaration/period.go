// Package declaration aggregates the movement ledger into periodic
// declarations: quarterly statements, semestrial client lists, annual
// recaps.
package declaration

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
)

// PeriodType is the declaration periodicity.
type PeriodType string

const (
	PeriodQuarterly  PeriodType = "quarterly"
	PeriodSemestrial PeriodType = "semestrial"
	PeriodAnnual     PeriodType = "annual"
)

// IsValidPeriodType checks the type against the known set.
func IsValidPeriodType(t PeriodType) bool {
	switch t {
	case PeriodQuarterly, PeriodSemestrial, PeriodAnnual:
		return true
	}
	return false
}

// Status is the declaration lifecycle state. Unlike movements,
// declarations have an extra terminal step: validation with the
// authorities, after which the covered period closes for posting.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

// PeriodBounds returns the inclusive date range of a period.
// index is the quarter (1-4) or semester (1-2); ignored for annual.
func PeriodBounds(t PeriodType, year, index int) (time.Time, time.Time, error) {
	switch t {
	case PeriodQuarterly:
		if index < 1 || index > 4 {
			return time.Time{}, time.Time{}, apperror.NewValidation("quarter must be between 1 and 4").
				WithDetail("index", index)
		}
		start := time.Date(year, time.Month((index-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0).Add(-time.Nanosecond), nil
	case PeriodSemestrial:
		if index < 1 || index > 2 {
			return time.Time{}, time.Time{}, apperror.NewValidation("semester must be 1 or 2").
				WithDetail("index", index)
		}
		start := time.Date(year, time.Month((index-1)*6+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 6, 0).Add(-time.Nanosecond), nil
	case PeriodAnnual:
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0).Add(-time.Nanosecond), nil
	}
	return time.Time{}, time.Time{}, apperror.NewValidation("unknown period type").
		WithDetail("type", string(t))
}

// PeriodCode builds the display code: "2026-T2", "2026-S1", "2026".
func PeriodCode(t PeriodType, year, index int) string {
	switch t {
	case PeriodQuarterly:
		return fmt.Sprintf("%d-T%d", year, index)
	case PeriodSemestrial:
		return fmt.Sprintf("%d-S%d", year, index)
	default:
		return fmt.Sprintf("%d", year)
	}
}

// Declaration is one generated declaration period with its aggregated
// figures frozen at generation time.
type Declaration struct {
	entity.BaseDocument

	Number string `db:"number" json:"number"`

	PeriodType PeriodType `db:"period_type" json:"periodType"`
	Year       int        `db:"year" json:"year"`
	// Index is the quarter or semester number within the year (1 for annual)
	Index int    `db:"period_index" json:"index"`
	Code  string `db:"code" json:"code"`

	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`

	Status Status `db:"status" json:"status"`

	// Stock figures in litres
	OpeningStock types.Quantity `db:"opening_stock" json:"openingStock"`
	Entries      types.Quantity `db:"entries" json:"entries"`
	Exits        types.Quantity `db:"exits" json:"exits"`
	ClosingStock types.Quantity `db:"closing_stock" json:"closingStock"`

	// Exits split by attestation status of the counterparty
	ExitsReduced  types.Quantity `db:"exits_reduced" json:"exitsReduced"`
	ExitsStandard types.Quantity `db:"exits_standard" json:"exitsStandard"`

	// TaxDue is the total tax over the period's submitted movements
	TaxDue types.Money `db:"tax_due" json:"taxDue"`

	// ClientCount is the number of distinct counterparties with exits
	ClientCount int `db:"client_count" json:"clientCount"`

	GeneratedAt time.Time  `db:"generated_at" json:"generatedAt"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	ValidatedAt *time.Time `db:"validated_at" json:"validatedAt,omitempty"`

	// Amendment lineage: a validated declaration is never edited, it is
	// superseded by an amending copy
	AmendsID    *id.ID `db:"amends_id" json:"amendsId,omitempty"`
	AmendedByID *id.ID `db:"amended_by_id" json:"amendedById,omitempty"`
	Comment     string `db:"comment" json:"comment,omitempty"`
}

// NewDeclaration creates a draft declaration for a period.
func NewDeclaration(t PeriodType, year, index int) (*Declaration, error) {
	start, end, err := PeriodBounds(t, year, index)
	if err != nil {
		return nil, err
	}
	return &Declaration{
		BaseDocument: entity.NewBaseDocument(),
		PeriodType:   t,
		Year:         year,
		Index:        index,
		Code:         PeriodCode(t, year, index),
		StartDate:    start,
		EndDate:      end,
		Status:       StatusDraft,
		TaxDue:       decimal.Zero,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Validate implements entity.Validatable.
func (d *Declaration) Validate(ctx context.Context) error {
	if !IsValidPeriodType(d.PeriodType) {
		return apperror.NewValidation("invalid period type").
			WithDetail("field", "periodType")
	}
	if d.Year < 2000 || d.Year > 2200 {
		return apperror.NewValidation("year out of range").
			WithDetail("field", "year").
			WithDetail("value", d.Year)
	}
	if d.StartDate.IsZero() || d.EndDate.IsZero() || d.EndDate.Before(d.StartDate) {
		return apperror.NewValidation("invalid period bounds")
	}
	return nil
}

// StockBalanced reports whether closing = opening + entries - exits.
func (d *Declaration) StockBalanced() bool {
	return d.ClosingStock == d.OpeningStock+d.Entries-d.Exits
}

// IsDraft reports whether the declaration is editable.
func (d *Declaration) IsDraft() bool { return d.Status == StatusDraft }

// IsValidated reports whether the declaration was filed and accepted.
func (d *Declaration) IsValidated() bool { return d.Status == StatusValidated }

// IsActive reports whether the declaration counts for its period.
func (d *Declaration) IsActive() bool { return d.Status != StatusCancelled }

// MarkSubmitted transitions draft -> submitted.
func (d *Declaration) MarkSubmitted() error {
	if d.Status != StatusDraft {
		return apperror.NewBusinessRule("DECLARATION_NOT_DRAFT", "only a draft declaration can be submitted").
			WithDetail("status", string(d.Status))
	}
	now := time.Now().UTC()
	d.SubmittedAt = &now
	d.Status = StatusSubmitted
	d.Touch()
	return nil
}

// MarkValidated transitions submitted -> validated.
func (d *Declaration) MarkValidated() error {
	if d.Status == StatusValidated {
		return apperror.NewBusinessRule(apperror.CodeDeclarationValidated, "declaration is already validated").
			WithDetail("code", d.Code)
	}
	if d.Status != StatusSubmitted {
		return apperror.NewBusinessRule("DECLARATION_NOT_SUBMITTED", "only a submitted declaration can be validated").
			WithDetail("status", string(d.Status))
	}
	now := time.Now().UTC()
	d.ValidatedAt = &now
	d.Status = StatusValidated
	d.Touch()
	return nil
}

// MarkCancelled transitions draft/submitted -> cancelled. Validated
// declarations cannot be cancelled, only amended.
func (d *Declaration) MarkCancelled() error {
	if d.Status == StatusValidated {
		return apperror.NewBusinessRule(apperror.CodeDeclarationValidated, "validated declaration must be amended, not cancelled").
			WithDetail("code", d.Code)
	}
	d.Status = StatusCancelled
	d.Touch()
	return nil
}
