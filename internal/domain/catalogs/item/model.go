// Package item provides the TrackedItem catalog: products flagged for
// GNR-style tax tracking, extending the host ERP's product master.
package item

import (
	"context"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/category"
)

// TrackedItem is a product subject to fuel tax tracking.
type TrackedItem struct {
	entity.Catalog

	// Tracked is the tracking flag; untracked items never produce movements
	Tracked bool `db:"tracked" json:"tracked"`

	// Category is the assigned tax category (GNR, Fioul, AdBlue)
	Category category.Category `db:"category" json:"category"`

	// BaselineRate is the configured per-item tax rate (EUR/L).
	// Zero means "not configured" — the rate engine falls through.
	BaselineRate types.Rate `db:"baseline_rate" json:"baselineRate"`

	// Unit is the item's commercial unit of measure (litre, hl, m3, ...)
	Unit string `db:"unit" json:"unit"`

	// Group is the product group text from the host ERP, used by
	// category detection alongside code and name
	Group string `db:"item_group" json:"group,omitempty"`
}

// NewTrackedItem creates a tracked item.
func NewTrackedItem(code, name string, cat category.Category) *TrackedItem {
	return &TrackedItem{
		Catalog:      entity.NewCatalog(code, name),
		Tracked:      true,
		Category:     cat,
		BaselineRate: decimal.Zero,
		Unit:         "litre",
	}
}

// Validate implements entity.Validatable.
func (i *TrackedItem) Validate(ctx context.Context) error {
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}

	if i.BaselineRate.IsNegative() {
		return apperror.NewValidation("baseline rate cannot be negative").
			WithDetail("field", "baselineRate")
	}

	if i.BaselineRate.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.NewRateImplausible(i.BaselineRate.String()).
			WithDetail("field", "baselineRate")
	}

	if i.Tracked && !i.Category.IsTracked() {
		return apperror.NewValidation("tracked item requires a tax category").
			WithDetail("field", "category")
	}

	return nil
}

// DetectCategory re-runs keyword detection over the item's texts.
func (i *TrackedItem) DetectCategory() category.Category {
	return category.Detect(i.Code, i.Name, i.Group)
}
