package handlers

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// DeclarationHandler exposes period declaration generation and lifecycle.
type DeclarationHandler struct {
	*BaseHandler
	decls *declaration.Service
}

// NewDeclarationHandler creates a new declaration handler.
func NewDeclarationHandler(decls *declaration.Service) *DeclarationHandler {
	return &DeclarationHandler{
		BaseHandler: NewBaseHandler(),
		decls:       decls,
	}
}

// Generate creates or refreshes the draft declaration for a period.
// POST /api/v1/declarations
func (h *DeclarationHandler) Generate(c *gin.Context) {
	var req dto.GenerateDeclarationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	d, err := h.decls.Generate(c.Request.Context(),
		declaration.PeriodType(req.PeriodType), req.Year, req.Index)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDeclaration(d))
}

// Get returns one declaration.
// GET /api/v1/declarations/:id
func (h *DeclarationHandler) Get(c *gin.Context) {
	declID, ok := h.ParseID(c)
	if !ok {
		return
	}

	d, err := h.decls.GetByID(c.Request.Context(), declID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDeclaration(d))
}

// List queries declarations.
// GET /api/v1/declarations
func (h *DeclarationHandler) List(c *gin.Context) {
	var req dto.DeclarationListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter := declaration.ListFilter{Year: req.Year}
	filter.Search = req.Search
	req.ApplyTo(&filter.ListFilter)
	if req.PeriodType != "" {
		t := declaration.PeriodType(req.PeriodType)
		filter.PeriodType = &t
	}
	if req.Status != "" {
		s := declaration.Status(req.Status)
		filter.Status = &s
	}

	result, err := h.decls.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromDeclarations(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Submit files the declaration.
// POST /api/v1/declarations/:id/submit
func (h *DeclarationHandler) Submit(c *gin.Context) {
	declID, ok := h.ParseID(c)
	if !ok {
		return
	}

	d, err := h.decls.Submit(c.Request.Context(), declID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDeclaration(d))
}

// Validate confirms the declaration and closes the period.
// POST /api/v1/declarations/:id/validate
func (h *DeclarationHandler) Validate(c *gin.Context) {
	declID, ok := h.ParseID(c)
	if !ok {
		return
	}

	d, err := h.decls.Validate(c.Request.Context(), declID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDeclaration(d))
}

// Cancel withdraws a draft or submitted declaration.
// POST /api/v1/declarations/:id/cancel
func (h *DeclarationHandler) Cancel(c *gin.Context) {
	declID, ok := h.ParseID(c)
	if !ok {
		return
	}

	if err := h.decls.Cancel(c.Request.Context(), declID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "declaration cancelled")
}

// Amend opens a corrective draft for a validated declaration.
// POST /api/v1/declarations/:id/amend
func (h *DeclarationHandler) Amend(c *gin.Context) {
	declID, ok := h.ParseID(c)
	if !ok {
		return
	}

	d, err := h.decls.Amend(c.Request.Context(), declID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDeclaration(d))
}
