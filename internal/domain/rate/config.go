// Package rate resolves the authoritative tax rate for a tracked item,
// trying several sources in strict priority order.
package rate

import (
	"context"
	"sync"
	"time"

	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/category"
	"gnrtax/pkg/logger"
)

// Config holds the rate engine's tunables. It is an explicit object handed
// to the engine, never an ambient global lookup.
type Config struct {
	// Defaults are the per-category statutory fallback rates
	Defaults category.Defaults

	// TaxKeywords match tax lines embedded in source documents
	// (case-insensitive substring match)
	TaxKeywords []string

	// MaxPlausible is the rate acceptance ceiling (EUR/L) during resolution.
	// Historical analysis uses a wider ceiling, see reconciliation.
	MaxPlausible types.Rate

	// History window: primary lookback, wider fallback, max points
	HistoryLookback time.Duration
	HistoryFallback time.Duration
	HistoryLimit    int
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Defaults: category.StatutoryDefaults(),
		TaxKeywords: []string{
			"gnr", "ticpe", "tirib", "accise",
			"taxe intérieure", "taxe interieure", "taxe carburant", "excise",
		},
		MaxPlausible:    types.MustMoney("50"),
		HistoryLookback: 30 * 24 * time.Hour,
		HistoryFallback: 90 * 24 * time.Hour,
		HistoryLimit:    10,
	}
}

// ConfigProvider serves the engine's Config with bounded-TTL refresh.
// A loader (typically backed by a settings table) is polled at most once
// per TTL; Invalidate forces a reload on the next Get after a
// configuration-change event.
type ConfigProvider struct {
	mu       sync.RWMutex
	cfg      Config
	loadedAt time.Time
	ttl      time.Duration
	loader   func(ctx context.Context) (Config, error)
}

// NewConfigProvider creates a provider. A nil loader pins DefaultConfig.
func NewConfigProvider(ttl time.Duration, loader func(ctx context.Context) (Config, error)) *ConfigProvider {
	return &ConfigProvider{
		cfg:      DefaultConfig(),
		loadedAt: time.Now(),
		ttl:      ttl,
		loader:   loader,
	}
}

// Get returns the current config, refreshing it when stale.
// A failed refresh keeps the previous config: resolution must not stall
// because the settings store is briefly unavailable.
func (p *ConfigProvider) Get(ctx context.Context) Config {
	p.mu.RLock()
	fresh := p.loader == nil || time.Since(p.loadedAt) < p.ttl
	cfg := p.cfg
	p.mu.RUnlock()

	if fresh {
		return cfg
	}

	loaded, err := p.loader(ctx)
	if err != nil {
		logger.Warn(ctx, "rate config refresh failed, keeping previous",
			"error", err,
		)
		p.mu.Lock()
		p.loadedAt = time.Now()
		cfg = p.cfg
		p.mu.Unlock()
		return cfg
	}

	p.mu.Lock()
	p.cfg = loaded
	p.loadedAt = time.Now()
	p.mu.Unlock()
	return loaded
}

// Invalidate marks the config stale so the next Get reloads it.
func (p *ConfigProvider) Invalidate() {
	p.mu.Lock()
	p.loadedAt = time.Time{}
	p.mu.Unlock()
}
