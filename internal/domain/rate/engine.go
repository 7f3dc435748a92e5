package rate

import (
	"context"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/pkg/logger"
)

// Resolution is the engine's answer: the rate and which strategy produced it.
// A zero rate with RateSourceNone means every strategy came up empty.
type Resolution struct {
	Rate   types.Rate
	Source entity.RateSource
}

// Engine resolves tax rates by walking an ordered strategy list and taking
// the first plausible answer. Resolve never returns an error: a line must
// always materialize, with a zero rate flagged for later reconciliation in
// the worst case.
type Engine struct {
	strategies []Strategy
	config     *ConfigProvider
}

// NewEngine builds an engine with the standard strategy order:
// source document, item configuration, movement history, category default.
func NewEngine(config *ConfigProvider, history HistoryProvider) *Engine {
	return &Engine{
		strategies: []Strategy{
			documentStrategy{},
			itemStrategy{},
			historyStrategy{history: history},
			categoryStrategy{},
		},
		config: config,
	}
}

// NewEngineWithStrategies builds an engine with a caller-supplied strategy
// list, tried in order.
func NewEngineWithStrategies(config *ConfigProvider, strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies, config: config}
}

// Resolve finds the applicable tax rate for an item in the context of a
// source document line. src may be nil for document-free resolution
// (API lookups, movements captured without a source document).
func (e *Engine) Resolve(ctx context.Context, it *item.TrackedItem, src *SourceContext) Resolution {
	cfg := e.config.Get(ctx)

	for _, s := range e.strategies {
		r, ok, err := s.Attempt(ctx, cfg, it, src)
		if err != nil {
			logger.Warn(ctx, "rate strategy failed, trying next",
				"strategy", string(s.Source()),
				"error", err,
			)
			continue
		}
		if ok {
			return Resolution{Rate: r, Source: s.Source()}
		}
	}

	if it != nil {
		logger.Warn(ctx, "no rate source matched, resolving to zero",
			"item_code", it.Code,
		)
	}
	return Resolution{Rate: decimal.Zero, Source: entity.RateSourceNone}
}

// TaxFor computes the tax amount for a quantity of an item: resolved rate
// times litres, rounded to the cent.
func (e *Engine) TaxFor(ctx context.Context, it *item.TrackedItem, litres decimal.Decimal) (types.Money, Resolution) {
	res := e.Resolve(ctx, it, nil)
	return res.Rate.Mul(litres).Round(2), res
}
