package category

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  Category
	}{
		{"plain gnr code", []string{"GNR-001", "Gazole Non Routier"}, CategoryGNR},
		{"gnr winter blend", []string{"GNRH-22", "GNR Hiver grand froid"}, CategoryGNR},
		{"gnr bio blend", []string{"", "GNR B7 biocarburant"}, CategoryGNR},
		{"fioul", []string{"FOD-10", "Fioul domestique"}, CategoryFioul},
		{"fioul not gnr", []string{"", "Fioul ordinaire non routier"}, CategoryFioul},
		{"adblue", []string{"ADB-5", "AdBlue bidon 10L"}, CategoryAdBlue},
		{"adblue spaced", []string{"", "Ad Blue vrac"}, CategoryAdBlue},
		{"unrelated product", []string{"LUB-01", "Huile moteur 15W40"}, CategoryUnknown},
		{"empty", nil, CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.texts...); got != tt.want {
				t.Errorf("Detect(%v) = %q, want %q", tt.texts, got, tt.want)
			}
		})
	}
}

func TestStatutoryDefaults(t *testing.T) {
	d := StatutoryDefaults()

	if d.RateFor(CategoryGNR).IsZero() {
		t.Error("GNR default should be nonzero")
	}
	if d.RateFor(CategoryFioul).IsZero() {
		t.Error("Fioul default should be nonzero")
	}
	if !d.RateFor(CategoryAdBlue).IsZero() {
		t.Error("AdBlue carries no excise, default should be zero")
	}
	if !d.RateFor(CategoryUnknown).IsZero() {
		t.Error("unknown category should resolve to zero")
	}
}

func TestIsTracked(t *testing.T) {
	if !CategoryGNR.IsTracked() || !CategoryFioul.IsTracked() || !CategoryAdBlue.IsTracked() {
		t.Error("fuel categories must be tracked")
	}
	if CategoryUnknown.IsTracked() {
		t.Error("unknown category must not be tracked")
	}
}
