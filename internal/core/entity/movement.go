// Package entity provides core domain entities.
package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
)

// MovementType classifies a tax movement in the ledger.
type MovementType string

const (
	MovementEntry      MovementType = "entry"
	MovementExit       MovementType = "exit"
	MovementSale       MovementType = "sale"
	MovementPurchase   MovementType = "purchase"
	MovementTransfer   MovementType = "transfer"
	MovementProduction MovementType = "production"
)

// Label returns the French statutory label used on declarations.
func (t MovementType) Label() string {
	switch t {
	case MovementEntry:
		return "Entrée"
	case MovementExit:
		return "Sortie"
	case MovementSale:
		return "Vente"
	case MovementPurchase:
		return "Achat"
	case MovementTransfer:
		return "Transfert"
	case MovementProduction:
		return "Production"
	}
	return string(t)
}

// IncreasesStock reports whether the movement adds to tracked stock.
func (t MovementType) IncreasesStock() bool {
	switch t {
	case MovementEntry, MovementPurchase, MovementProduction:
		return true
	}
	return false
}

// DecreasesStock reports whether the movement removes from tracked stock.
func (t MovementType) DecreasesStock() bool {
	switch t {
	case MovementExit, MovementSale:
		return true
	}
	return false
}

// IsValidMovementType checks the type against the known set.
func IsValidMovementType(t MovementType) bool {
	switch t {
	case MovementEntry, MovementExit, MovementSale, MovementPurchase,
		MovementTransfer, MovementProduction:
		return true
	}
	return false
}

// CounterpartyKind distinguishes client and supplier references.
type CounterpartyKind string

const (
	CounterpartyClient   CounterpartyKind = "client"
	CounterpartySupplier CounterpartyKind = "supplier"
)

// RateSource records which resolver produced the movement's rate.
// Reconciliation uses it to spot unverified category defaults.
type RateSource string

const (
	RateSourceDocument RateSource = "document"
	RateSourceItem     RateSource = "item"
	RateSourceHistory  RateSource = "history"
	RateSourceCategory RateSource = "category"
	RateSourceManual   RateSource = "manual"
	RateSourceNone     RateSource = "none"
)

// amountEpsilon is the absolute floor of the amount consistency tolerance.
var amountEpsilon = types.MustMoney("0.01")

// TaxMovement is the ledger's atomic fact: one per
// (source document, source line, tracked item).
//
// Movements are never silently edited once submitted. Corrections cancel the
// original and insert a superseding copy, preserving the audit lineage via
// SupersededBy.
type TaxMovement struct {
	Document

	// Tracked item reference
	ItemID id.ID `db:"item_id" json:"itemId"`

	// MovementType: entry/exit/sale/purchase/transfer/production
	MovementType MovementType `db:"movement_type" json:"movementType"`

	// Quantity in litres (canonical unit, always > 0)
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// UnitPrice in euros per litre (commercial price, informational)
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	// Rate is the resolved tax rate in euros per litre.
	// Zero means "no rate found" — an explicit resolution failure, never a default.
	Rate types.Rate `db:"rate" json:"rate"`

	// TaxAmount = Quantity * Rate (within rounding tolerance)
	TaxAmount types.Money `db:"tax_amount" json:"taxAmount"`

	// RateSource records which resolution strategy produced Rate
	RateSource RateSource `db:"rate_source" json:"rateSource"`

	// Counterparty (client or supplier), optional for internal transfers
	CounterpartyID   *id.ID           `db:"counterparty_id" json:"counterpartyId,omitempty"`
	CounterpartyKind CounterpartyKind `db:"counterparty_kind" json:"counterpartyKind,omitempty"`

	// Category is the tax category (GNR, Fioul, AdBlue, ...)
	Category string `db:"category" json:"category"`

	// Declaration period markers, derived from Date
	Quarter  int `db:"quarter" json:"quarter"`
	Semester int `db:"semester" json:"semester"`
	Year     int `db:"year" json:"year"`

	// Source document reference (host ERP document that caused this movement)
	SourceDocType string `db:"source_doc_type" json:"sourceDocType"`
	SourceDocID   string `db:"source_doc_id" json:"sourceDocId"`
	SourceLineNo  int    `db:"source_line_no" json:"sourceLineNo"`

	// SupersededBy links to the corrected copy when this movement was replaced
	SupersededBy *id.ID `db:"superseded_by" json:"supersededBy,omitempty"`

	SubmittedAt *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
}

// NewTaxMovement creates a draft movement for a source document line.
func NewTaxMovement(itemID id.ID, movementType MovementType, date time.Time) *TaxMovement {
	m := &TaxMovement{
		Document:     NewDocument(),
		ItemID:       itemID,
		MovementType: movementType,
		UnitPrice:    decimal.Zero,
		Rate:         decimal.Zero,
		TaxAmount:    decimal.Zero,
		RateSource:   RateSourceNone,
	}
	m.Date = date
	m.SetPeriodMarkers(date)
	return m
}

// SetPeriodMarkers derives quarter/semester/year from the movement date.
func (m *TaxMovement) SetPeriodMarkers(date time.Time) {
	m.Date = date
	m.Year = date.Year()
	m.Quarter = (int(date.Month())-1)/3 + 1
	m.Semester = (int(date.Month())-1)/6 + 1
}

// ApplyRate sets the rate and recomputes the tax amount.
func (m *TaxMovement) ApplyRate(rate types.Rate, source RateSource) {
	m.Rate = rate
	m.RateSource = source
	m.TaxAmount = rate.Mul(m.Quantity.Decimal()).Round(2)
}

// AmountTolerance returns the accepted |amount - quantity*rate| deviation:
// max(5% of the expected amount, 0.01 EUR).
func (m *TaxMovement) AmountTolerance() types.Money {
	expected := m.Rate.Mul(m.Quantity.Decimal()).Abs()
	rel := expected.Mul(decimal.NewFromFloat(0.05))
	if rel.LessThan(amountEpsilon) {
		return amountEpsilon
	}
	return rel
}

// AmountConsistent reports whether the stored tax amount matches
// quantity*rate within tolerance.
func (m *TaxMovement) AmountConsistent() bool {
	expected := m.Rate.Mul(m.Quantity.Decimal())
	return m.TaxAmount.Sub(expected).Abs().LessThanOrEqual(m.AmountTolerance())
}

// Validate implements Validatable.
func (m *TaxMovement) Validate(ctx context.Context) error {
	if err := m.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(m.ItemID) {
		return apperror.NewValidation("item is required").
			WithDetail("field", "itemId")
	}

	if !IsValidMovementType(m.MovementType) {
		return apperror.NewValidation("invalid movement type").
			WithDetail("field", "movementType").
			WithDetail("value", string(m.MovementType))
	}

	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", m.Quantity.String())
	}

	if m.Rate.IsNegative() {
		return apperror.NewValidation("rate cannot be negative").
			WithDetail("field", "rate")
	}

	// Zero is the explicit "no rate found" marker; nonzero rates must be plausible.
	if m.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.NewRateImplausible(m.Rate.String())
	}

	if m.SourceDocType == "" || m.SourceDocID == "" {
		return apperror.NewValidation("source document reference is required").
			WithDetail("field", "sourceDoc")
	}

	return nil
}

// MarkSubmitted transitions to submitted, stamping the time.
func (m *TaxMovement) MarkSubmitted() {
	now := time.Now().UTC()
	m.SubmittedAt = &now
	m.Document.MarkSubmitted()
}

// MarkCancelled transitions to cancelled, stamping the time.
func (m *TaxMovement) MarkCancelled() {
	now := time.Now().UTC()
	m.CancelledAt = &now
	m.Document.MarkCancelled()
}

// Supersede links this (cancelled) movement to its corrected copy.
func (m *TaxMovement) Supersede(byID id.ID) {
	m.SupersededBy = &byID
	m.MarkCancelled()
}

// Ensure interface compliance at compile time.
var _ Validatable = (*TaxMovement)(nil)
