// Package uom normalizes unit-of-measure quantities to litres,
// the ledger's canonical volume unit.
package uom

import (
	"context"
	"strings"

	"gnrtax/pkg/logger"
)

// factor is the litre multiplier for one unit.
type factor struct {
	unit       string
	multiplier float64
}

// Conversion table. Order matters for the substring fallback: longer,
// more specific names first so "hectolitre" never matches as "litre".
var factors = []factor{
	{"hectolitre", 100},
	{"hectoliter", 100},
	{"kilolitre", 1000},
	{"kiloliter", 1000},
	{"millilitre", 0.001},
	{"milliliter", 0.001},
	{"centilitre", 0.01},
	{"centiliter", 0.01},
	{"décilitre", 0.1},
	{"decilitre", 0.1},
	{"litre", 1},
	{"liter", 1},
	{"baril", 158.987},
	{"barrel", 158.987},
	{"gallon", 3.78541},
	{"m3", 1000},
	{"m³", 1000},
	{"dm3", 1},
	{"dm³", 1},
	{"cl", 0.01},
	{"ml", 0.001},
	{"hl", 100},
	{"gal", 3.78541},
	{"bbl", 158.987},
	{"l", 1},
}

// Converter converts arbitrary UOM quantities to litres.
// Zero value is ready to use.
type Converter struct{}

// NewConverter returns a Converter.
func NewConverter() *Converter { return &Converter{} }

// multiplierFor resolves the litre multiplier for a unit name.
// Exact match first, then substring. Returns (1, false) for unknown units.
func multiplierFor(unit string) (float64, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		// Empty unit means the quantity is already in litres.
		return 1, true
	}

	for _, f := range factors {
		if u == f.unit {
			return f.multiplier, true
		}
	}
	for _, f := range factors {
		if strings.Contains(u, f.unit) {
			return f.multiplier, true
		}
	}
	return 1, false
}

// ToLitres converts quantity expressed in unit to litres.
// Unknown units are passed through unchanged with a warning: a wrong volume
// is recoverable by reconciliation, a dropped movement is not.
func (c *Converter) ToLitres(ctx context.Context, quantity float64, unit string) float64 {
	mult, known := multiplierFor(unit)
	if !known {
		logger.Warn(ctx, "unknown unit of measure, passing quantity through",
			"unit", unit,
			"quantity", quantity,
		)
	}
	return quantity * mult
}

// FromLitres converts a litre quantity back to the given unit.
// Inverse of ToLitres for all supported units.
func (c *Converter) FromLitres(ctx context.Context, litres float64, unit string) float64 {
	mult, known := multiplierFor(unit)
	if !known {
		logger.Warn(ctx, "unknown unit of measure, passing quantity through",
			"unit", unit,
			"quantity", litres,
		)
	}
	return litres / mult
}

// IsKnownUnit reports whether the unit resolves to a conversion factor.
func IsKnownUnit(unit string) bool {
	_, known := multiplierFor(unit)
	return known
}
