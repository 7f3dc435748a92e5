package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/category"
)

type stubHistory struct {
	short  []HistoryPoint
	wide   []HistoryPoint
	err    error
	calls  int
}

func (s *stubHistory) RecentRates(_ context.Context, _ id.ID, since time.Time, _ int) ([]HistoryPoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if time.Since(since) > 45*24*time.Hour {
		return s.wide, nil
	}
	return s.short, nil
}

func provider() *ConfigProvider {
	return NewConfigProvider(time.Minute, nil)
}

func gnrItem() *item.TrackedItem {
	return item.NewTrackedItem("GNR-001", "Gazole Non Routier", category.CategoryGNR)
}

func qty(litres int64) types.Quantity {
	return types.Quantity(litres * types.QuantityScale)
}

func point(age time.Duration, rate, amount string, litres int64) HistoryPoint {
	return HistoryPoint{
		Date:      time.Now().Add(-age),
		Rate:      types.MustMoney(rate),
		Quantity:  qty(litres),
		TaxAmount: types.MustMoney(amount),
	}
}

func TestResolve_DocumentTaxLine(t *testing.T) {
	engine := NewEngine(provider(), nil)

	src := &SourceContext{
		DocType:        "SalesInvoice",
		QuantityLitres: decimal.NewFromInt(1000),
		TaxLines: []TaxLine{
			{Description: "Remise volume", Amount: types.MustMoney("-50")},
			{Description: "TICPE carburant", Amount: types.MustMoney("3860")},
		},
	}

	res := engine.Resolve(context.Background(), gnrItem(), src)
	assert.Equal(t, entity.RateSourceDocument, res.Source)
	assert.True(t, res.Rate.Equal(types.MustMoney("3.86")), "got %s", res.Rate)
}

func TestResolve_ExplicitLineRateWins(t *testing.T) {
	engine := NewEngine(provider(), nil)

	lineRate := types.MustMoney("4.12")
	src := &SourceContext{
		QuantityLitres: decimal.NewFromInt(500),
		LineRate:       &lineRate,
		TaxLines: []TaxLine{
			{Description: "accise GNR", Amount: types.MustMoney("1930")},
		},
	}

	res := engine.Resolve(context.Background(), gnrItem(), src)
	assert.Equal(t, entity.RateSourceDocument, res.Source)
	assert.True(t, res.Rate.Equal(lineRate))
}

func TestResolve_ImplausibleDocumentRateSkipped(t *testing.T) {
	engine := NewEngine(provider(), nil)

	it := gnrItem()
	it.BaselineRate = types.MustMoney("3.86")

	// 200 EUR/L is above the resolution ceiling, fall through to the item
	src := &SourceContext{
		QuantityLitres: decimal.NewFromInt(10),
		TaxLines: []TaxLine{
			{Description: "TICPE", Amount: types.MustMoney("2000")},
		},
	}

	res := engine.Resolve(context.Background(), it, src)
	assert.Equal(t, entity.RateSourceItem, res.Source)
	assert.True(t, res.Rate.Equal(it.BaselineRate))
}

func TestResolve_ItemBeforeHistory(t *testing.T) {
	hist := &stubHistory{short: []HistoryPoint{point(24*time.Hour, "9.99", "9990", 1000)}}
	engine := NewEngine(provider(), hist)

	it := gnrItem()
	it.BaselineRate = types.MustMoney("2.46")

	res := engine.Resolve(context.Background(), it, nil)
	assert.Equal(t, entity.RateSourceItem, res.Source)
	assert.Equal(t, 0, hist.calls, "history must not be queried when the item answers")
}

func TestResolve_HistoryWeightedAverage(t *testing.T) {
	hist := &stubHistory{short: []HistoryPoint{
		point(24*time.Hour, "4.00", "4000", 1000),  // weight 2
		point(10*24*time.Hour, "1.00", "1000", 1000), // weight 1
	}}
	engine := NewEngine(provider(), hist)

	res := engine.Resolve(context.Background(), gnrItem(), nil)
	require.Equal(t, entity.RateSourceHistory, res.Source)
	// (4*2 + 1*1) / 3 = 3
	assert.True(t, res.Rate.Equal(types.MustMoney("3")), "got %s", res.Rate)
}

func TestResolve_HistoryDiscardsInconsistentPoints(t *testing.T) {
	hist := &stubHistory{short: []HistoryPoint{
		// amount wildly off rate*qty, must be discarded
		point(24*time.Hour, "4.00", "100", 1000),
		point(48*time.Hour, "3.86", "3860", 1000),
	}}
	engine := NewEngine(provider(), hist)

	res := engine.Resolve(context.Background(), gnrItem(), nil)
	require.Equal(t, entity.RateSourceHistory, res.Source)
	assert.True(t, res.Rate.Equal(types.MustMoney("3.86")))
}

func TestResolve_HistoryWidensWindow(t *testing.T) {
	hist := &stubHistory{
		short: nil,
		wide:  []HistoryPoint{point(60*24*time.Hour, "3.86", "3860", 1000)},
	}
	engine := NewEngine(provider(), hist)

	res := engine.Resolve(context.Background(), gnrItem(), nil)
	assert.Equal(t, entity.RateSourceHistory, res.Source)
	assert.Equal(t, 2, hist.calls)
}

func TestResolve_HistoryErrorFallsThrough(t *testing.T) {
	hist := &stubHistory{err: errors.New("db down")}
	engine := NewEngine(provider(), hist)

	res := engine.Resolve(context.Background(), gnrItem(), nil)
	assert.Equal(t, entity.RateSourceCategory, res.Source)
	assert.True(t, res.Rate.Equal(types.MustMoney("3.86")))
}

func TestResolve_CategoryDefaults(t *testing.T) {
	engine := NewEngine(provider(), &stubHistory{})

	tests := []struct {
		name string
		item *item.TrackedItem
		want string
	}{
		{"gnr", gnrItem(), "3.86"},
		{"fioul", item.NewTrackedItem("FOD-1", "Fioul domestique", category.CategoryFioul), "2.46"},
		{"adblue", item.NewTrackedItem("ADB-1", "AdBlue 10L", category.CategoryAdBlue), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Resolve(context.Background(), tt.item, nil)
			assert.Equal(t, entity.RateSourceCategory, res.Source)
			assert.True(t, res.Rate.Equal(types.MustMoney(tt.want)), "got %s", res.Rate)
		})
	}
}

func TestResolve_NothingMatchesYieldsZero(t *testing.T) {
	engine := NewEngine(provider(), &stubHistory{})

	it := item.NewTrackedItem("MISC-1", "Produit divers", category.CategoryUnknown)
	it.Tracked = false

	res := engine.Resolve(context.Background(), it, nil)
	assert.Equal(t, entity.RateSourceNone, res.Source)
	assert.True(t, res.Rate.IsZero())
}

func TestTaxFor(t *testing.T) {
	engine := NewEngine(provider(), nil)

	it := gnrItem()
	it.BaselineRate = types.MustMoney("3.86")

	amount, res := engine.TaxFor(context.Background(), it, decimal.NewFromInt(1000))
	assert.Equal(t, entity.RateSourceItem, res.Source)
	assert.True(t, amount.Equal(types.MustMoney("3860")), "got %s", amount)
}

func TestConfigProvider_RefreshAndInvalidate(t *testing.T) {
	loads := 0
	p := NewConfigProvider(time.Hour, func(context.Context) (Config, error) {
		loads++
		cfg := DefaultConfig()
		cfg.MaxPlausible = types.MustMoney("75")
		return cfg, nil
	})

	// fresh: loader not called
	cfg := p.Get(context.Background())
	assert.Equal(t, 0, loads)
	assert.True(t, cfg.MaxPlausible.Equal(types.MustMoney("50")))

	p.Invalidate()
	cfg = p.Get(context.Background())
	assert.Equal(t, 1, loads)
	assert.True(t, cfg.MaxPlausible.Equal(types.MustMoney("75")))
}

func TestConfigProvider_KeepsConfigOnLoaderError(t *testing.T) {
	p := NewConfigProvider(time.Hour, func(context.Context) (Config, error) {
		return Config{}, errors.New("settings unavailable")
	})
	p.Invalidate()

	cfg := p.Get(context.Background())
	assert.True(t, cfg.MaxPlausible.Equal(types.MustMoney("50")), "previous config kept")
}
