package declaration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/attestation"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/pkg/logger"
)

// Ledger is the slice of the movement register the aggregator reads.
type Ledger interface {
	PeriodTotals(ctx context.Context, from, to time.Time) ([]tax.CounterpartyTotals, error)
}

// ClientLine is one row of the client-level breakdown: a counterparty's
// exit volume and tax over a period, with its attestation status as
// evaluated at aggregation time.
type ClientLine struct {
	Client      *client.Client     `json:"client"`
	Volume      types.Quantity     `json:"volume"`
	TaxAmount   types.Money        `json:"taxAmount"`
	Attestation attestation.Status `json:"-"`
	// AttestationLabel is the human-readable status for reports
	AttestationLabel string `json:"attestationStatus"`
}

// Aggregator folds the submitted movement ledger into declaration figures.
// Attestation validity is evaluated when the aggregation runs, not when
// movements were captured, so an expired certificate reclassifies past
// exits on the next generation.
type Aggregator struct {
	ledger    Ledger
	decls     Repository
	clients   client.Repository
	evaluator *attestation.Evaluator
}

// NewAggregator wires the aggregation pipeline.
func NewAggregator(ledger Ledger, decls Repository, clients client.Repository, evaluator *attestation.Evaluator) *Aggregator {
	return &Aggregator{
		ledger:    ledger,
		decls:     decls,
		clients:   clients,
		evaluator: evaluator,
	}
}

// Populate computes the period figures and writes them into d.
func (a *Aggregator) Populate(ctx context.Context, d *Declaration) error {
	rows, err := a.ledger.PeriodTotals(ctx, d.StartDate, d.EndDate)
	if err != nil {
		return err
	}

	opening, err := a.openingStock(ctx, d)
	if err != nil {
		return err
	}

	var entries, exits, exitsReduced, exitsStandard types.Quantity
	taxDue := decimal.Zero
	clientCount := 0
	now := time.Now()

	certs, err := a.loadCertificates(ctx, rows)
	if err != nil {
		return err
	}

	for _, row := range rows {
		entries += row.Entries
		exits += row.Exits
		taxDue = taxDue.Add(row.TaxAmount)

		if row.Exits <= 0 {
			continue
		}
		if row.CounterpartyID != nil {
			clientCount++
		}
		if c, ok := certs[counterpartyKey(row.CounterpartyID)]; ok && a.evaluator.IsValid(c.Certificate(), now) {
			exitsReduced += row.Exits
		} else {
			exitsStandard += row.Exits
		}
	}

	d.OpeningStock = opening
	d.Entries = entries
	d.Exits = exits
	d.ClosingStock = opening + entries - exits
	d.ExitsReduced = exitsReduced
	d.ExitsStandard = exitsStandard
	d.TaxDue = taxDue
	d.ClientCount = clientCount
	d.GeneratedAt = time.Now().UTC()

	logger.Info(ctx, "declaration aggregated",
		"code", d.Code,
		"entries", d.Entries.String(),
		"exits", d.Exits.String(),
		"tax_due", d.TaxDue.String(),
		"clients", d.ClientCount,
	)
	return nil
}

// openingStock chains from the previous declaration's closing stock, and
// falls back to replaying the full ledger before the period start for the
// first declaration ever generated.
func (a *Aggregator) openingStock(ctx context.Context, d *Declaration) (types.Quantity, error) {
	prev, err := a.decls.FindLatestBefore(ctx, d.PeriodType, d.StartDate)
	if err == nil {
		return prev.ClosingStock, nil
	}
	if !apperror.IsNotFound(err) {
		return 0, err
	}

	// no prior declaration: opening = net movements since the beginning
	rows, err := a.ledger.PeriodTotals(ctx, time.Time{}, d.StartDate.Add(-time.Nanosecond))
	if err != nil {
		return 0, err
	}
	var net types.Quantity
	for _, row := range rows {
		net += row.Entries - row.Exits
	}
	return net, nil
}

// ClientLines returns the per-client exit breakdown for a period, sorted
// by the storage layer's aggregation order. Rows without a counterparty
// (internal movements) are excluded.
func (a *Aggregator) ClientLines(ctx context.Context, from, to time.Time) ([]ClientLine, error) {
	rows, err := a.ledger.PeriodTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	certs, err := a.loadCertificates(ctx, rows)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var lines []ClientLine
	for _, row := range rows {
		if row.CounterpartyID == nil || row.Exits <= 0 {
			continue
		}
		c, ok := certs[*row.CounterpartyID]
		if !ok {
			logger.Warn(ctx, "counterparty missing from client catalog",
				"counterparty_id", row.CounterpartyID.String(),
			)
			continue
		}
		status, _ := a.evaluator.Evaluate(c.Certificate(), now)
		lines = append(lines, ClientLine{
			Client:           c,
			Volume:           row.Exits,
			TaxAmount:        row.TaxAmount,
			Attestation:      status,
			AttestationLabel: status.String(),
		})
	}
	return lines, nil
}

func (a *Aggregator) loadCertificates(ctx context.Context, rows []tax.CounterpartyTotals) (map[id.ID]*client.Client, error) {
	var ids []id.ID
	for _, row := range rows {
		if row.CounterpartyID != nil {
			ids = append(ids, *row.CounterpartyID)
		}
	}
	if len(ids) == 0 {
		return map[id.ID]*client.Client{}, nil
	}
	return a.clients.GetByIDs(ctx, ids)
}

func counterpartyKey(cp *id.ID) id.ID {
	if cp == nil {
		return id.Nil
	}
	return *cp
}
