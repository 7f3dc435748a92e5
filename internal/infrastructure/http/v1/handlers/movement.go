package handlers

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/domain/capture"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// MovementHandler exposes event capture and ledger queries.
type MovementHandler struct {
	*BaseHandler
	materializer *capture.Materializer
	ledger       *tax.Service
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(materializer *capture.Materializer, ledger *tax.Service) *MovementHandler {
	return &MovementHandler{
		BaseHandler:  NewBaseHandler(),
		materializer: materializer,
		ledger:       ledger,
	}
}

// CaptureSale materializes movements from a sales invoice event.
// POST /api/v1/movements/capture/sale
func (h *MovementHandler) CaptureSale(c *gin.Context) {
	h.captureInvoice(c, capture.DocTypeSalesInvoice)
}

// CapturePurchase materializes movements from a purchase invoice event.
// POST /api/v1/movements/capture/purchase
func (h *MovementHandler) CapturePurchase(c *gin.Context) {
	h.captureInvoice(c, capture.DocTypePurchaseInvoice)
}

func (h *MovementHandler) captureInvoice(c *gin.Context, defaultDocType string) {
	var evt capture.InvoiceEvent
	if !h.BindJSON(c, &evt) {
		return
	}
	if evt.DocType == "" {
		evt.DocType = defaultDocType
	}

	result, err := h.materializer.CaptureInvoice(c.Request.Context(), &evt)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// CaptureStock materializes movements from a stock entry event.
// POST /api/v1/movements/capture/stock
func (h *MovementHandler) CaptureStock(c *gin.Context) {
	var evt capture.StockEntryEvent
	if !h.BindJSON(c, &evt) {
		return
	}
	if evt.DocType == "" {
		evt.DocType = capture.DocTypeStockEntry
	}

	result, err := h.materializer.CaptureStockEntry(c.Request.Context(), &evt)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// Cancel compensates all movements of a cancelled source document.
// POST /api/v1/movements/cancel
func (h *MovementHandler) Cancel(c *gin.Context) {
	var evt capture.CancelEvent
	if !h.BindJSON(c, &evt) {
		return
	}

	cancelled, err := h.materializer.CancelForSource(c.Request.Context(), &evt)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.CancelMovementsResponse{
		DocType:   evt.DocType,
		DocID:     evt.DocID,
		Cancelled: cancelled,
	})
}

// List queries the ledger.
// GET /api/v1/movements
func (h *MovementHandler) List(c *gin.Context) {
	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter, err := h.toFilter(&req)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromMovements(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get returns one movement.
// GET /api/v1/movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.ParseID(c)
	if !ok {
		return
	}

	m, err := h.ledger.GetByID(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromMovement(m))
}

func (h *MovementHandler) toFilter(req *dto.MovementListRequest) (tax.Filter, error) {
	filter := tax.Filter{
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
		Year:          req.Year,
		Quarter:       req.Quarter,
		Semester:      req.Semester,
		SourceDocType: req.SourceDocType,
		SourceDocID:   req.SourceDocID,
	}
	filter.Search = req.Search
	req.ApplyTo(&filter.ListFilter)

	if req.ItemID != "" {
		itemID, err := id.Parse(req.ItemID)
		if err != nil {
			return filter, apperror.NewValidation("invalid itemId").WithDetail("itemId", req.ItemID)
		}
		filter.ItemID = &itemID
	}
	if req.CounterpartyID != "" {
		cpID, err := id.Parse(req.CounterpartyID)
		if err != nil {
			return filter, apperror.NewValidation("invalid counterpartyId").WithDetail("counterpartyId", req.CounterpartyID)
		}
		filter.CounterpartyID = &cpID
	}
	if req.Status != "" {
		status := entity.DocStatus(req.Status)
		filter.Status = &status
	}
	if req.MovementType != "" {
		mt := entity.MovementType(req.MovementType)
		filter.MovementType = &mt
	}
	if req.RateSource != "" {
		rs := entity.RateSource(req.RateSource)
		filter.RateSource = &rs
	}
	if req.Category != "" {
		filter.Category = &req.Category
	}

	return filter, nil
}
