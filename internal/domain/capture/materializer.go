package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/domain/uom"
	"gnrtax/pkg/logger"
)

// Line outcome statuses.
const (
	OutcomeCaptured = "captured"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// LineOutcome reports what happened to one event line.
type LineOutcome struct {
	LineNo     int    `json:"lineNo"`
	ItemCode   string `json:"itemCode"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	MovementID *id.ID `json:"movementId,omitempty"`
}

// Result summarizes the capture of one source document.
type Result struct {
	DocType  string        `json:"docType"`
	DocID    string        `json:"docId"`
	Captured int           `json:"captured"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Lines    []LineOutcome `json:"lines"`
}

func (r *Result) add(o LineOutcome) {
	switch o.Status {
	case OutcomeCaptured:
		r.Captured++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Lines = append(r.Lines, o)
}

// Materializer turns host ERP events into ledger movements. One event
// line yields at most one movement; failures are isolated per line so a
// bad line never blocks the rest of the document.
type Materializer struct {
	items     item.Repository
	clients   client.Repository
	converter *uom.Converter
	rates     *rate.Engine
	ledger    *tax.Service
}

// NewMaterializer wires the capture pipeline.
func NewMaterializer(items item.Repository, clients client.Repository, converter *uom.Converter, rates *rate.Engine, ledger *tax.Service) *Materializer {
	return &Materializer{
		items:     items,
		clients:   clients,
		converter: converter,
		rates:     rates,
		ledger:    ledger,
	}
}

// CaptureInvoice materializes movements for a submitted invoice.
// Re-delivery of the same event is safe: lines already covered by an
// active movement are skipped.
func (m *Materializer) CaptureInvoice(ctx context.Context, evt *InvoiceEvent) (*Result, error) {
	if evt.DocType == "" || evt.DocID == "" {
		return nil, apperror.NewValidation("event requires docType and docId")
	}

	result := &Result{DocType: evt.DocType, DocID: evt.DocID}

	movementType := entity.MovementPurchase
	counterpartyKind := entity.CounterpartySupplier
	if evt.IsSale() {
		movementType = entity.MovementSale
		counterpartyKind = entity.CounterpartyClient
	}

	counterpartyID := m.lookupCounterparty(ctx, evt.CounterpartyCode)

	for _, line := range evt.Lines {
		outcome := m.captureLine(ctx, lineContext{
			docType:  evt.DocType,
			docID:    evt.DocID,
			date:     evt.Date,
			lineNo:   line.LineNo,
			itemCode: line.ItemCode,
			quantity: line.Quantity,
			unit:     line.Unit,
			movement: movementType,
			build: func(mv *entity.TaxMovement) {
				mv.UnitPrice = line.UnitPrice
				mv.CounterpartyID = counterpartyID
				if counterpartyID != nil {
					mv.CounterpartyKind = counterpartyKind
				}
			},
			source: func(litres decimal.Decimal) *rate.SourceContext {
				src := &rate.SourceContext{
					DocType:        evt.DocType,
					DocID:          evt.DocID,
					QuantityLitres: litres,
					LineRate:       line.Rate,
				}
				for _, tl := range evt.TaxLines {
					src.TaxLines = append(src.TaxLines, rate.TaxLine{
						Description: tl.Description,
						Amount:      tl.Amount,
					})
				}
				return src
			},
		})
		result.add(outcome)
	}

	logCaptureResult(ctx, result)
	return result, nil
}

// CaptureStockEntry materializes movements for a submitted stock entry.
func (m *Materializer) CaptureStockEntry(ctx context.Context, evt *StockEntryEvent) (*Result, error) {
	if evt.DocType == "" || evt.DocID == "" {
		return nil, apperror.NewValidation("event requires docType and docId")
	}

	result := &Result{DocType: evt.DocType, DocID: evt.DocID}

	movementType, ok := stockMovementType(evt)
	if !ok {
		for _, line := range evt.Lines {
			result.add(LineOutcome{
				LineNo:   line.LineNo,
				ItemCode: line.ItemCode,
				Status:   OutcomeSkipped,
				Reason:   "movement direction could not be determined",
			})
		}
		logger.Warn(ctx, "stock entry direction unknown, all lines skipped",
			"doc_type", evt.DocType,
			"doc_id", evt.DocID,
			"purpose", evt.Purpose,
		)
		return result, nil
	}

	for _, line := range evt.Lines {
		outcome := m.captureLine(ctx, lineContext{
			docType:  evt.DocType,
			docID:    evt.DocID,
			date:     evt.Date,
			lineNo:   line.LineNo,
			itemCode: line.ItemCode,
			quantity: line.Quantity,
			unit:     line.Unit,
			movement: movementType,
			source: func(litres decimal.Decimal) *rate.SourceContext {
				return &rate.SourceContext{
					DocType:        evt.DocType,
					DocID:          evt.DocID,
					QuantityLitres: litres,
				}
			},
		})
		result.add(outcome)
	}

	logCaptureResult(ctx, result)
	return result, nil
}

// stockMovementType derives the direction from the warehouse sides, then
// from purpose keywords.
func stockMovementType(evt *StockEntryEvent) (entity.MovementType, bool) {
	hasSource := evt.SourceWarehouse != ""
	hasTarget := evt.TargetWarehouse != ""

	switch {
	case hasSource && hasTarget:
		return entity.MovementTransfer, true
	case hasTarget:
		return entity.MovementEntry, true
	case hasSource:
		return entity.MovementExit, true
	}

	purpose := strings.ToLower(evt.Purpose)
	switch {
	case strings.Contains(purpose, "production") || strings.Contains(purpose, "fabrication"):
		return entity.MovementProduction, true
	case strings.Contains(purpose, "réception") || strings.Contains(purpose, "reception") ||
		strings.Contains(purpose, "receipt") || strings.Contains(purpose, "achat"):
		return entity.MovementEntry, true
	case strings.Contains(purpose, "consommation") || strings.Contains(purpose, "sortie") ||
		strings.Contains(purpose, "issue"):
		return entity.MovementExit, true
	}
	return "", false
}

// lineContext bundles the per-line capture inputs.
type lineContext struct {
	docType  string
	docID    string
	date     time.Time
	lineNo   int
	itemCode string
	quantity decimal.Decimal
	unit     string
	movement entity.MovementType
	build    func(*entity.TaxMovement)
	source   func(litres decimal.Decimal) *rate.SourceContext
}

func (m *Materializer) captureLine(ctx context.Context, lc lineContext) LineOutcome {
	outcome := LineOutcome{LineNo: lc.lineNo, ItemCode: lc.itemCode}

	// 1. tracked item lookup; unknown or untracked items are out of scope
	it, err := m.items.GetByCode(ctx, lc.itemCode)
	if err != nil {
		if apperror.IsNotFound(err) {
			outcome.Status = OutcomeSkipped
			outcome.Reason = "item is not tracked"
			return outcome
		}
		outcome.Status = OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}
	if !it.Tracked {
		outcome.Status = OutcomeSkipped
		outcome.Reason = "item is not tracked"
		return outcome
	}

	// 2. idempotency: an active movement already covers this line
	if existing, err := m.ledger.FindActiveBySourceLine(ctx, lc.docType, lc.docID, lc.lineNo); err == nil {
		outcome.Status = OutcomeSkipped
		outcome.Reason = "already captured"
		outcome.MovementID = &existing.ID
		return outcome
	}

	// 3. normalize quantity to litres
	qtyF, _ := lc.quantity.Float64()
	unit := lc.unit
	if unit == "" {
		unit = it.Unit
	}
	litresF := m.converter.ToLitres(ctx, qtyF, unit)
	if litresF <= 0 {
		outcome.Status = OutcomeSkipped
		outcome.Reason = "non-positive quantity"
		return outcome
	}
	litres := decimal.NewFromFloat(litresF)

	// 4-5. resolve the rate against the source document context
	res := m.rates.Resolve(ctx, it, lc.source(litres))

	// 6. build the movement
	mv := entity.NewTaxMovement(it.ID, lc.movement, lc.date)
	mv.Quantity = types.NewQuantityFromFloat64(litresF)
	mv.Category = string(it.Category)
	mv.SourceDocType = lc.docType
	mv.SourceDocID = lc.docID
	mv.SourceLineNo = lc.lineNo
	if lc.build != nil {
		lc.build(mv)
	}
	mv.ApplyRate(res.Rate, res.Source)

	// 7. persist as draft, then submit
	if err := m.ledger.Record(ctx, mv); err != nil {
		if apperror.IsMovementExists(err) {
			// lost the race against a concurrent delivery of the same event
			outcome.Status = OutcomeSkipped
			outcome.Reason = "already captured"
			return outcome
		}
		outcome.Status = OutcomeFailed
		outcome.Reason = err.Error()
		return outcome
	}

	if _, err := m.ledger.Submit(ctx, mv.ID); err != nil {
		// the draft exists and will be swept by the worker, the line still
		// counts as captured
		logger.Warn(ctx, "movement recorded but not submitted",
			"movement_id", mv.ID.String(),
			"error", err,
		)
		outcome.Reason = "recorded as draft: " + err.Error()
	}

	outcome.Status = OutcomeCaptured
	outcome.MovementID = &mv.ID
	return outcome
}

// CancelForSource reverses every movement of a cancelled source document:
// submitted movements are cancelled, drafts are removed. Returns how many
// movements changed state; repeating the call is a no-op.
func (m *Materializer) CancelForSource(ctx context.Context, evt *CancelEvent) (int, error) {
	movements, err := m.ledger.ListBySourceDoc(ctx, evt.DocType, evt.DocID)
	if err != nil {
		return 0, err
	}

	// One movement failing to cancel must not strand its siblings in a
	// ledger whose source document no longer exists.
	var errs []error
	changed := 0
	for _, mv := range movements {
		if mv.IsCancelled() {
			continue
		}
		if err := m.ledger.Cancel(ctx, mv.ID); err != nil {
			logger.Warn(ctx, "movement reversal failed",
				"movement_id", mv.ID.String(),
				"number", mv.Number,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		changed++
	}

	logger.Info(ctx, "source document cancelled",
		"doc_type", evt.DocType,
		"doc_id", evt.DocID,
		"movements_reversed", changed,
		"failures", len(errs),
	)
	return changed, errors.Join(errs...)
}

// ReprocessInvoices replays a batch of invoice events, typically after an
// outage; idempotency keeps already-captured lines untouched.
func (m *Materializer) ReprocessInvoices(ctx context.Context, events []*InvoiceEvent) ([]*Result, error) {
	results := make([]*Result, 0, len(events))
	for _, evt := range events {
		res, err := m.CaptureInvoice(ctx, evt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *Materializer) lookupCounterparty(ctx context.Context, code string) *id.ID {
	if code == "" {
		return nil
	}
	c, err := m.clients.GetByCode(ctx, code)
	if err != nil {
		if !apperror.IsNotFound(err) {
			logger.Warn(ctx, "counterparty lookup failed", "code", code, "error", err)
		}
		return nil
	}
	return &c.ID
}

func logCaptureResult(ctx context.Context, r *Result) {
	logger.Info(ctx, "source document captured",
		"doc_type", r.DocType,
		"doc_id", r.DocID,
		"captured", r.Captured,
		"skipped", r.Skipped,
		"failed", r.Failed,
	)
}
