// Package reconciliation scans the movement ledger for anomalies:
// inconsistent amounts, implausible or suspect rates, statistical
// outliers, and operator-defined rule violations.
package reconciliation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
)

// AnomalyKind identifies the check that fired.
type AnomalyKind string

const (
	AnomalyAmountMismatch   AnomalyKind = "amount_mismatch"
	AnomalyRateZero         AnomalyKind = "rate_zero"
	AnomalyRateBelowFloor   AnomalyKind = "rate_below_floor"
	AnomalyRateAboveCeiling AnomalyKind = "rate_above_ceiling"
	AnomalySuspectDefault   AnomalyKind = "suspect_default"
	AnomalyOutlier          AnomalyKind = "statistical_outlier"
	AnomalyCustomRule       AnomalyKind = "custom_rule"
)

// Severity grades an anomaly for triage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is one finding on one movement.
type Anomaly struct {
	MovementID id.ID          `json:"movementId"`
	ItemID     id.ID          `json:"itemId"`
	Kind       AnomalyKind    `json:"kind"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Config holds the detector thresholds. Analysis bounds are deliberately
// wider than the resolution ceiling: a stored rate above 50 EUR/L got past
// resolution somehow and must surface here, not be silently ignored.
type Config struct {
	// RateFloor is the lowest believable nonzero rate (EUR/L)
	RateFloor types.Rate

	// RateCeiling is the analysis upper bound (EUR/L)
	RateCeiling types.Rate

	// SuspectRates are well-known default values; movements carrying one
	// without a document-backed source deserve a second look
	SuspectRates []types.Rate

	// MinPointsForStats is the minimum per-item sample size before the
	// outlier check runs
	MinPointsForStats int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RateFloor:   types.MustMoney("0.1"),
		RateCeiling: types.MustMoney("100"),
		SuspectRates: []types.Rate{
			types.MustMoney("3.86"),
			types.MustMoney("2.46"),
			types.MustMoney("1.0"),
			types.MustMoney("24.81"),
		},
		MinPointsForStats: 5,
	}
}

// Detector runs the built-in checks over a batch of movements.
type Detector struct {
	cfg   Config
	rules *RuleSet
}

// NewDetector creates a detector. rules may be nil.
func NewDetector(cfg Config, rules *RuleSet) *Detector {
	return &Detector{cfg: cfg, rules: rules}
}

// Analyze checks each movement individually, then runs the per-item
// statistical pass over the whole batch.
func (d *Detector) Analyze(movements []*entity.TaxMovement) []Anomaly {
	var anomalies []Anomaly
	for _, m := range movements {
		anomalies = append(anomalies, d.checkMovement(m)...)
	}
	anomalies = append(anomalies, d.checkOutliers(movements)...)
	return anomalies
}

func (d *Detector) checkMovement(m *entity.TaxMovement) []Anomaly {
	var out []Anomaly

	if !m.AmountConsistent() {
		expected := m.Rate.Mul(m.Quantity.Decimal()).Round(2)
		out = append(out, Anomaly{
			MovementID: m.ID,
			ItemID:     m.ItemID,
			Kind:       AnomalyAmountMismatch,
			Severity:   SeverityCritical,
			Message:    "tax amount does not match rate times quantity",
			Details: map[string]any{
				"expected": expected.String(),
				"actual":   m.TaxAmount.String(),
			},
		})
	}

	switch {
	case m.Rate.IsZero():
		// AdBlue is legitimately untaxed
		if m.Category != "AdBlue" {
			out = append(out, Anomaly{
				MovementID: m.ID,
				ItemID:     m.ItemID,
				Kind:       AnomalyRateZero,
				Severity:   SeverityWarning,
				Message:    "no tax rate was resolved for this movement",
				Details:    map[string]any{"rate_source": string(m.RateSource)},
			})
		}
	case m.Rate.LessThan(d.cfg.RateFloor):
		out = append(out, Anomaly{
			MovementID: m.ID,
			ItemID:     m.ItemID,
			Kind:       AnomalyRateBelowFloor,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("rate %s is below the plausibility floor %s", m.Rate, d.cfg.RateFloor),
		})
	case m.Rate.GreaterThan(d.cfg.RateCeiling):
		out = append(out, Anomaly{
			MovementID: m.ID,
			ItemID:     m.ItemID,
			Kind:       AnomalyRateAboveCeiling,
			Severity:   SeverityCritical,
			Message:    fmt.Sprintf("rate %s is above the plausibility ceiling %s", m.Rate, d.cfg.RateCeiling),
		})
	}

	if d.isSuspectDefault(m) {
		out = append(out, Anomaly{
			MovementID: m.ID,
			ItemID:     m.ItemID,
			Kind:       AnomalySuspectDefault,
			Severity:   SeverityInfo,
			Message:    "rate equals a well-known default without document backing",
			Details: map[string]any{
				"rate":        m.Rate.String(),
				"rate_source": string(m.RateSource),
			},
		})
	}

	if d.rules != nil {
		out = append(out, d.rules.Evaluate(m)...)
	}

	return out
}

// isSuspectDefault flags rates that equal a statutory default when the
// rate was not read off a source document.
func (d *Detector) isSuspectDefault(m *entity.TaxMovement) bool {
	if m.RateSource == entity.RateSourceDocument || m.RateSource == entity.RateSourceManual {
		return false
	}
	for _, suspect := range d.cfg.SuspectRates {
		if m.Rate.Equal(suspect) {
			return true
		}
	}
	return false
}

// checkOutliers flags movements whose rate deviates from the item's mean
// by tiered multiples of the standard deviation. Items with fewer than
// MinPointsForStats submitted movements are skipped.
func (d *Detector) checkOutliers(movements []*entity.TaxMovement) []Anomaly {
	byItem := make(map[id.ID][]*entity.TaxMovement)
	for _, m := range movements {
		if m.Rate.IsZero() {
			continue
		}
		byItem[m.ItemID] = append(byItem[m.ItemID], m)
	}

	var out []Anomaly
	for itemID, group := range byItem {
		if len(group) < d.cfg.MinPointsForStats {
			continue
		}
		mean, stddev := rateStats(group)
		if stddev == 0 {
			continue
		}
		for _, m := range group {
			rf, _ := m.Rate.Float64()
			z := math.Abs(rf-mean) / stddev
			severity, flagged := outlierSeverity(z)
			if !flagged {
				continue
			}
			out = append(out, Anomaly{
				MovementID: m.ID,
				ItemID:     itemID,
				Kind:       AnomalyOutlier,
				Severity:   severity,
				Message:    fmt.Sprintf("rate deviates %.1f standard deviations from the item mean", z),
				Details: map[string]any{
					"rate":   m.Rate.String(),
					"mean":   decimal.NewFromFloat(mean).Round(4).String(),
					"stddev": decimal.NewFromFloat(stddev).Round(4).String(),
				},
			})
		}
	}
	return out
}

func outlierSeverity(z float64) (Severity, bool) {
	switch {
	case z >= 3:
		return SeverityCritical, true
	case z >= 2:
		return SeverityWarning, true
	case z >= 1.5:
		return SeverityInfo, true
	}
	return "", false
}

func rateStats(group []*entity.TaxMovement) (mean, stddev float64) {
	n := float64(len(group))
	var sum float64
	for _, m := range group {
		rf, _ := m.Rate.Float64()
		sum += rf
	}
	mean = sum / n

	var variance float64
	for _, m := range group {
		rf, _ := m.Rate.Float64()
		variance += (rf - mean) * (rf - mean)
	}
	variance /= n
	return mean, math.Sqrt(variance)
}
