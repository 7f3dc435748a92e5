package attestation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gnrtax/internal/core/types"
)

var (
	reduced  = types.MustMoney("3.86")
	standard = types.MustMoney("24.81")
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(reduced, standard)
}

func datePtr(t time.Time) *time.Time { return &t }

func TestIsValidBoundary(t *testing.T) {
	e := newTestEvaluator()
	asOf := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		deposit time.Time
		want    bool
	}{
		{"deposited yesterday", asOf.AddDate(0, 0, -1), true},
		{"exactly three years old", asOf.AddDate(-3, 0, 0), true},
		{"three years and one day old", asOf.AddDate(-3, 0, -1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Certificate{DossierNumber: "AGR-2023-042", DepositDate: datePtr(tt.deposit)}
			assert.Equal(t, tt.want, e.IsValid(c, asOf))
		})
	}
}

func TestMissingFieldsInvalid(t *testing.T) {
	e := newTestEvaluator()
	asOf := time.Now()
	deposit := asOf.AddDate(0, -6, 0)

	// Dossier number without deposit date: invalid, standard rate.
	c := Certificate{DossierNumber: "AGR-2025-007"}
	assert.False(t, e.IsValid(c, asOf))
	assert.True(t, e.ApplicableRate(c, asOf).Equal(standard))

	// Deposit date without dossier number: invalid.
	c = Certificate{DepositDate: datePtr(deposit)}
	assert.False(t, e.IsValid(c, asOf))

	// Both present and fresh: reduced rate.
	c = Certificate{DossierNumber: "AGR-2025-007", DepositDate: datePtr(deposit)}
	assert.True(t, e.ApplicableRate(c, asOf).Equal(reduced))
}

func TestEvaluateStatuses(t *testing.T) {
	e := newTestEvaluator()
	asOf := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cert    Certificate
		status  Status
	}{
		{"no attestation", Certificate{}, StatusNone},
		{
			"expired",
			Certificate{DossierNumber: "X", DepositDate: datePtr(asOf.AddDate(-4, 0, 0))},
			StatusExpired,
		},
		{
			"expiring within three months",
			Certificate{DossierNumber: "X", DepositDate: datePtr(asOf.AddDate(-3, 0, 30))},
			StatusExpiringSoon,
		},
		{
			"valid",
			Certificate{DossierNumber: "X", DepositDate: datePtr(asOf.AddDate(0, -1, 0))},
			StatusValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := e.Evaluate(tt.cert, asOf)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, msg)
		})
	}
}
