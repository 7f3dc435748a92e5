package rate

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/category"
)

// TaxLine is a tax line carried by the source document, as extracted by
// the capture layer from the host ERP event.
type TaxLine struct {
	Description string
	Amount      types.Money
}

// SourceContext describes the document line a rate is being resolved for.
// All fields are optional; a nil SourceContext resolves from item
// configuration and history only.
type SourceContext struct {
	DocType        string
	DocID          string
	QuantityLitres decimal.Decimal
	LineRate       *types.Rate // explicit per-line rate, if the source carries one
	TaxLines       []TaxLine
}

// Strategy is one source of truth tried during resolution. ok=false means
// the strategy has nothing to offer for this line; an error means it tried
// and failed (logged, then resolution moves on).
type Strategy interface {
	Source() entity.RateSource
	Attempt(ctx context.Context, cfg Config, it *item.TrackedItem, src *SourceContext) (types.Rate, bool, error)
}

// HistoryPoint is one prior submitted movement used by the history strategy.
type HistoryPoint struct {
	Date      time.Time
	Rate      types.Rate
	Quantity  types.Quantity
	TaxAmount types.Money
}

// HistoryProvider supplies recent submitted movements for an item, most
// recent first.
type HistoryProvider interface {
	RecentRates(ctx context.Context, itemID id.ID, since time.Time, limit int) ([]HistoryPoint, error)
}

func plausible(cfg Config, r types.Rate) bool {
	return r.IsPositive() && r.LessThanOrEqual(cfg.MaxPlausible)
}

// documentStrategy reads the rate off the source document itself: an
// explicit per-line rate when present, otherwise the quotient of a
// recognized tax line amount and the line quantity.
type documentStrategy struct{}

func (documentStrategy) Source() entity.RateSource { return entity.RateSourceDocument }

func (documentStrategy) Attempt(_ context.Context, cfg Config, _ *item.TrackedItem, src *SourceContext) (types.Rate, bool, error) {
	if src == nil {
		return decimal.Zero, false, nil
	}
	if src.LineRate != nil && plausible(cfg, *src.LineRate) {
		return *src.LineRate, true, nil
	}
	if src.QuantityLitres.IsZero() {
		return decimal.Zero, false, nil
	}
	for _, tl := range src.TaxLines {
		if !matchesTaxKeyword(cfg, tl.Description) {
			continue
		}
		// credit notes carry negative amounts, the rate is still positive
		r := tl.Amount.Abs().Div(src.QuantityLitres.Abs())
		if plausible(cfg, r) {
			return r, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func matchesTaxKeyword(cfg Config, desc string) bool {
	d := strings.ToLower(desc)
	for _, kw := range cfg.TaxKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// itemStrategy uses the rate configured on the tracked item card.
type itemStrategy struct{}

func (itemStrategy) Source() entity.RateSource { return entity.RateSourceItem }

func (itemStrategy) Attempt(_ context.Context, cfg Config, it *item.TrackedItem, _ *SourceContext) (types.Rate, bool, error) {
	if it == nil || it.BaselineRate.IsZero() {
		return decimal.Zero, false, nil
	}
	if !plausible(cfg, it.BaselineRate) {
		return decimal.Zero, false, nil
	}
	return it.BaselineRate, true, nil
}

// historyStrategy derives the rate from recent submitted movements of the
// same item: a recency-weighted average over a 30-day window, widened to
// 90 days when the short window is empty. Points whose recorded amount
// disagrees with rate*quantity beyond tolerance are discarded as noise.
type historyStrategy struct {
	history HistoryProvider
}

func (historyStrategy) Source() entity.RateSource { return entity.RateSourceHistory }

func (s historyStrategy) Attempt(ctx context.Context, cfg Config, it *item.TrackedItem, _ *SourceContext) (types.Rate, bool, error) {
	if s.history == nil || it == nil {
		return decimal.Zero, false, nil
	}
	now := time.Now()
	points, err := s.history.RecentRates(ctx, it.ID, now.Add(-cfg.HistoryLookback), cfg.HistoryLimit)
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(points) == 0 {
		points, err = s.history.RecentRates(ctx, it.ID, now.Add(-cfg.HistoryFallback), cfg.HistoryLimit)
		if err != nil {
			return decimal.Zero, false, err
		}
	}

	weightedSum := decimal.Zero
	weightTotal := decimal.Zero
	weight := int64(len(points))
	for _, p := range points {
		w := decimal.NewFromInt(weight)
		weight--
		if !plausible(cfg, p.Rate) || !pointConsistent(p) {
			continue
		}
		weightedSum = weightedSum.Add(p.Rate.Mul(w))
		weightTotal = weightTotal.Add(w)
	}
	if weightTotal.IsZero() {
		return decimal.Zero, false, nil
	}
	avg := weightedSum.Div(weightTotal)
	if !plausible(cfg, avg) {
		return decimal.Zero, false, nil
	}
	return avg, true, nil
}

// pointConsistent checks that the point's recorded tax amount matches
// rate*quantity within max(5%, 0.01 EUR).
func pointConsistent(p HistoryPoint) bool {
	expected := p.Rate.Mul(p.Quantity.Decimal())
	tolerance := decimal.Max(
		expected.Abs().Mul(decimal.NewFromFloat(0.05)),
		decimal.New(1, -2),
	)
	return p.TaxAmount.Sub(expected).Abs().LessThanOrEqual(tolerance)
}

// categoryStrategy falls back to the statutory default of the item's fuel
// category. AdBlue legitimately defaults to zero, which is a terminal
// "no tax" answer rather than a failure, so a configured zero is returned
// as a hit.
type categoryStrategy struct{}

func (categoryStrategy) Source() entity.RateSource { return entity.RateSourceCategory }

func (categoryStrategy) Attempt(_ context.Context, cfg Config, it *item.TrackedItem, _ *SourceContext) (types.Rate, bool, error) {
	if it == nil {
		return decimal.Zero, false, nil
	}
	cat := it.Category
	if cat == category.CategoryUnknown {
		cat = it.DetectCategory()
	}
	r, ok := cfg.Defaults[cat]
	if !ok {
		return decimal.Zero, false, nil
	}
	if r.IsNegative() || r.GreaterThan(cfg.MaxPlausible) {
		return decimal.Zero, false, nil
	}
	return r, true, nil
}
