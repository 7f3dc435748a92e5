package reconciliation

import (
	"context"
	"fmt"
	"time"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/pkg/logger"
)

// correctionEpsilon: rate deltas at or below this are not worth a
// supersede cycle.
var correctionEpsilon = types.MustMoney("0.01")

// scanPageSize bounds one ledger page during analysis.
const scanPageSize = 500

// Report summarizes one analysis run.
type Report struct {
	Examined        int       `json:"examined"`
	Anomalies       []Anomaly `json:"anomalies"`
	Recommendations []string  `json:"recommendations"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
}

// CorrectionError records one movement the corrector could not fix.
type CorrectionError struct {
	MovementID id.ID  `json:"movementId"`
	Reason     string `json:"reason"`
}

// CorrectionReport summarizes a bulk recomputation.
type CorrectionReport struct {
	Examined  int               `json:"examined"`
	Corrected int               `json:"corrected"`
	Unchanged int               `json:"unchanged"`
	Skipped   int               `json:"skipped"`
	Errors    []CorrectionError `json:"errors,omitempty"`
}

// Service drives ledger scans and bulk corrections.
type Service struct {
	ledger   *tax.Service
	items    item.Repository
	rates    *rate.Engine
	detector *Detector
}

// NewService wires the reconciliation pipeline.
func NewService(ledger *tax.Service, items item.Repository, rates *rate.Engine, detector *Detector) *Service {
	return &Service{
		ledger:   ledger,
		items:    items,
		rates:    rates,
		detector: detector,
	}
}

// Analyze scans submitted movements in a date range and reports every
// anomaly found.
func (s *Service) Analyze(ctx context.Context, from, to time.Time) (*Report, error) {
	status := entity.StatusSubmitted
	var movements []*entity.TaxMovement

	filter := tax.Filter{
		Status:   &status,
		DateFrom: &from,
		DateTo:   &to,
	}
	filter.Limit = scanPageSize

	for {
		page, err := s.ledger.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		movements = append(movements, page.Items...)
		if len(page.Items) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	anomalies := s.detector.Analyze(movements)
	report := &Report{
		Examined:        len(movements),
		Anomalies:       anomalies,
		Recommendations: recommend(anomalies),
		From:            from,
		To:              to,
	}

	logger.Info(ctx, "ledger analysis finished",
		"examined", report.Examined,
		"anomalies", len(report.Anomalies),
	)
	return report, nil
}

// recommend turns anomaly counts into operator guidance.
func recommend(anomalies []Anomaly) []string {
	counts := make(map[AnomalyKind]int)
	for _, a := range anomalies {
		counts[a.Kind]++
	}

	var out []string
	if n := counts[AnomalyRateZero] + counts[AnomalySuspectDefault]; n > 0 {
		out = append(out, fmt.Sprintf("%d movement(s) carry a zero or suspect default rate; run recompute over them", n))
	}
	if n := counts[AnomalyAmountMismatch]; n > 0 {
		out = append(out, fmt.Sprintf("%d movement(s) have a tax amount inconsistent with quantity*rate; check the source documents", n))
	}
	if n := counts[AnomalyRateBelowFloor] + counts[AnomalyRateAboveCeiling]; n > 0 {
		out = append(out, fmt.Sprintf("%d movement(s) have a rate outside plausible bounds; verify item baseline rates", n))
	}
	if n := counts[AnomalyOutlier]; n > 0 {
		out = append(out, fmt.Sprintf("%d movement(s) deviate statistically from their item's rate history", n))
	}
	if n := counts[AnomalyCustomRule]; n > 0 {
		out = append(out, fmt.Sprintf("%d movement(s) flagged by custom rules", n))
	}
	return out
}

// Recompute re-resolves the rate of the given movements and supersedes
// those whose rate moved by more than a cent per litre. limit bounds the
// number of corrections performed in one run (0 means no bound). Errors
// are collected per movement; one bad record never aborts the batch.
func (s *Service) Recompute(ctx context.Context, movementIDs []id.ID, limit int) (*CorrectionReport, error) {
	report := &CorrectionReport{}

	for _, movementID := range movementIDs {
		if limit > 0 && report.Corrected >= limit {
			break
		}
		report.Examined++

		if err := s.recomputeOne(ctx, movementID, report); err != nil {
			report.Errors = append(report.Errors, CorrectionError{
				MovementID: movementID,
				Reason:     err.Error(),
			})
		}
	}

	logger.Info(ctx, "bulk recomputation finished",
		"examined", report.Examined,
		"corrected", report.Corrected,
		"unchanged", report.Unchanged,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Service) recomputeOne(ctx context.Context, movementID id.ID, report *CorrectionReport) error {
	m, err := s.ledger.GetByID(ctx, movementID)
	if err != nil {
		return err
	}
	if !m.IsSubmitted() {
		report.Skipped++
		return nil
	}

	it, err := s.items.GetByID(ctx, m.ItemID)
	if err != nil {
		return err
	}

	// Replay the resolution with the movement's stored source-document
	// context so provenance comes out the same as at capture time.
	var src *rate.SourceContext
	if m.SourceDocType != "" {
		src = &rate.SourceContext{
			DocType:        m.SourceDocType,
			DocID:          m.SourceDocID,
			QuantityLitres: m.Quantity.Decimal(),
		}
	}

	res := s.rates.Resolve(ctx, it, src)
	if res.Source == entity.RateSourceNone {
		// nothing better to offer, leave the movement alone
		report.Skipped++
		return nil
	}

	if res.Rate.Sub(m.Rate).Abs().LessThanOrEqual(correctionEpsilon) {
		report.Unchanged++
		return nil
	}

	corrected := cloneForCorrection(m)
	corrected.ApplyRate(res.Rate, res.Source)

	if err := s.ledger.Supersede(ctx, m.ID, corrected); err != nil {
		return err
	}
	report.Corrected++
	return nil
}

// cloneForCorrection copies a movement into a fresh draft carrying the
// same business facts, ready to receive the corrected rate.
func cloneForCorrection(m *entity.TaxMovement) *entity.TaxMovement {
	c := entity.NewTaxMovement(m.ItemID, m.MovementType, m.Date)
	c.Number = m.Number + "-R"
	c.Quantity = m.Quantity
	c.UnitPrice = m.UnitPrice
	c.CounterpartyID = m.CounterpartyID
	c.CounterpartyKind = m.CounterpartyKind
	c.Category = m.Category
	c.SourceDocType = m.SourceDocType
	c.SourceDocID = m.SourceDocID
	c.SourceLineNo = m.SourceLineNo
	c.Comment = m.Comment
	return c
}
