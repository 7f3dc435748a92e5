// Package category classifies tracked items into fuel tax categories and
// carries the statutory default rates used as the rate resolver of last resort.
package category

import (
	"strings"

	"gnrtax/internal/core/types"
)

// Category is a fuel tax category.
type Category string

const (
	CategoryGNR     Category = "GNR"
	CategoryFioul   Category = "Fioul"
	CategoryAdBlue  Category = "AdBlue"
	CategoryUnknown Category = ""
)

// keywordSets maps categories to identifier/name keywords, checked in order.
// AdBlue and Fioul are checked before GNR so "fioul" never falls through to
// a generic diesel match. Sub-variants (winter blends, bio blends) map to the
// parent category.
var keywordSets = []struct {
	category Category
	keywords []string
}{
	{CategoryAdBlue, []string{"adblue", "ad blue", "ad-blue", "urée", "uree", "aus 32"}},
	{CategoryFioul, []string{"fioul", "fod", "fuel domestique", "heating oil", "mazout"}},
	{CategoryGNR, []string{
		"gnr", "gazole non routier", "non routier", "non-routier",
		"gnr hiver", "gnr winter", "gnr grand froid",
		"gnr bio", "gnr b7", "gnr b10", "gnr xtl",
		"off-road diesel", "off road diesel",
	}},
}

// Detect infers the tax category from item identifier, name and group texts.
// Returns CategoryUnknown when nothing matches.
func Detect(texts ...string) Category {
	joined := strings.ToLower(strings.Join(texts, " "))
	if joined == "" {
		return CategoryUnknown
	}
	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if strings.Contains(joined, kw) {
				return set.category
			}
		}
	}
	return CategoryUnknown
}

// IsTracked reports whether the category is subject to GNR-style tracking.
func (c Category) IsTracked() bool {
	return c == CategoryGNR || c == CategoryFioul || c == CategoryAdBlue
}

// Defaults holds per-category statutory default rates (EUR/L).
type Defaults map[Category]types.Rate

// StatutoryDefaults returns the built-in statutory default rates.
// AdBlue carries no excise, so its default is zero ("no rate").
func StatutoryDefaults() Defaults {
	return Defaults{
		CategoryGNR:    types.MustMoney("3.86"),
		CategoryFioul:  types.MustMoney("2.46"),
		CategoryAdBlue: types.Zero(),
	}
}

// RateFor returns the default rate for a category, zero when absent.
func (d Defaults) RateFor(c Category) types.Rate {
	if r, ok := d[c]; ok {
		return r
	}
	return types.Zero()
}
