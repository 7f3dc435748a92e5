package uom

import (
	"context"
	"math"
	"testing"
)

func TestToLitres(t *testing.T) {
	conv := NewConverter()
	ctx := context.Background()

	tests := []struct {
		name string
		qty  float64
		unit string
		want float64
	}{
		{"litre exact", 1000, "litre", 1000},
		{"litre short", 42, "L", 42},
		{"empty unit is litres", 17.5, "", 17.5},
		{"hectolitre", 10, "hectolitre", 1000},
		{"hl short", 2.5, "hl", 250},
		{"cubic metre", 5, "m3", 5000},
		{"cubic metre unicode", 5, "m³", 5000},
		{"gallon", 1, "gallon", 3.78541},
		{"barrel", 1, "baril", 158.987},
		{"millilitre", 500, "ml", 0.5},
		{"case insensitive", 3, "Hectolitre", 300},
		{"substring match", 7, "Litres", 7},
		{"substring hectolitre before litre", 1, "hectolitres", 100},
		{"unknown unit passes through", 12, "palette", 12},
		{"zero quantity", 0, "m3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.ToLitres(ctx, tt.qty, tt.unit)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ToLitres(%v, %q) = %v, want %v", tt.qty, tt.unit, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	conv := NewConverter()
	ctx := context.Background()

	units := []string{"litre", "hl", "hectolitre", "m3", "gallon", "baril", "ml", "cl", ""}
	for _, u := range units {
		for _, qty := range []float64{0, 1, 3.14, 1000, 0.001} {
			got := conv.FromLitres(ctx, conv.ToLitres(ctx, qty, u), u)
			if math.Abs(got-qty) > 1e-9 {
				t.Errorf("round trip %v %q = %v", qty, u, got)
			}
		}
	}
}

func TestNeverNegativeForNonNegativeInput(t *testing.T) {
	conv := NewConverter()
	ctx := context.Background()

	for _, u := range []string{"litre", "m3", "unknown-unit", ""} {
		if got := conv.ToLitres(ctx, 0, u); got < 0 {
			t.Errorf("ToLitres(0, %q) = %v, negative", u, got)
		}
		if got := conv.ToLitres(ctx, 123.4, u); got < 0 {
			t.Errorf("ToLitres(123.4, %q) = %v, negative", u, got)
		}
	}
}
