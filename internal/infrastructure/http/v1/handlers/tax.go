package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/uom"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// TaxHandler exposes the rate engine for ad-hoc tax quotes.
type TaxHandler struct {
	*BaseHandler
	items     *item.Service
	converter *uom.Converter
	rates     *rate.Engine
}

// NewTaxHandler creates a new tax handler.
func NewTaxHandler(items *item.Service, converter *uom.Converter, rates *rate.Engine) *TaxHandler {
	return &TaxHandler{
		BaseHandler: NewBaseHandler(),
		items:       items,
		converter:   converter,
		rates:       rates,
	}
}

// Resolve computes the tax for a quantity of an item.
// POST /api/v1/tax/resolve
func (h *TaxHandler) Resolve(c *gin.Context) {
	var req dto.ResolveTaxRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()

	it, err := h.items.GetByCode(ctx, req.ItemCode)
	if err != nil {
		h.Error(c, err)
		return
	}

	litres, err := h.litresFrom(c, &req, it)
	if err != nil {
		h.Error(c, err)
		return
	}

	amount, resolution := h.rates.TaxFor(ctx, it, litres)

	h.OK(c, dto.ResolveTaxResponse{
		ItemCode:       it.Code,
		Category:       string(it.Category),
		QuantityLitres: litres.String(),
		Rate:           resolution.Rate.String(),
		RateSource:     string(resolution.Source),
		TaxAmount:      amount.String(),
	})
}

func (h *TaxHandler) litresFrom(c *gin.Context, req *dto.ResolveTaxRequest, it *item.TrackedItem) (decimal.Decimal, error) {
	if req.QuantityLitres != "" {
		litres, err := decimal.NewFromString(req.QuantityLitres)
		if err != nil {
			return decimal.Zero, apperror.NewValidation("invalid quantityLitres").
				WithDetail("quantityLitres", req.QuantityLitres)
		}
		return litres, nil
	}

	if req.Quantity == "" {
		return decimal.Zero, apperror.NewValidation("quantity or quantityLitres is required")
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return decimal.Zero, apperror.NewValidation("invalid quantity").
			WithDetail("quantity", req.Quantity)
	}

	unit := req.Unit
	if unit == "" {
		unit = it.Unit
	}

	qtyFloat, _ := qty.Float64()
	litres := h.converter.ToLitres(c.Request.Context(), qtyFloat, unit)
	return decimal.NewFromFloat(litres), nil
}
