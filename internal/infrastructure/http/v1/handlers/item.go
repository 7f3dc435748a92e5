package handlers

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// ItemHandler provides CRUD for the tracked item catalog.
type ItemHandler struct {
	*BaseHandler
	items *item.Service
}

// NewItemHandler creates a new item handler.
func NewItemHandler(items *item.Service) *ItemHandler {
	return &ItemHandler{
		BaseHandler: NewBaseHandler(),
		items:       items,
	}
}

// Create creates a tracked item.
// POST /api/v1/items
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	it := req.ToEntity()
	if err := h.items.Create(c.Request.Context(), it); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, it.ID.String())
}

// Get returns one item.
// GET /api/v1/items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	itemID, ok := h.ParseID(c)
	if !ok {
		return
	}

	it, err := h.items.GetByID(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromItem(it))
}

// Update modifies an item.
// PUT /api/v1/items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	itemID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	it, err := h.items.GetByID(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.ApplyTo(it)
	if err := h.items.Update(ctx, it); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromItem(it))
}

// List queries the item catalog.
// GET /api/v1/items
func (h *ItemHandler) List(c *gin.Context) {
	var req dto.ItemListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter := item.ListFilter{
		Tracked:  req.Tracked,
		Category: req.Category,
	}
	filter.Search = req.Search
	req.ApplyTo(&filter.ListFilter)

	result, err := h.items.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.ItemResponse, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, dto.FromItem(it))
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// SetTracking toggles the tracking flag.
// POST /api/v1/items/:id/tracking
func (h *ItemHandler) SetTracking(c *gin.Context) {
	itemID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req struct {
		Tracked bool `json:"tracked"`
	}
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.items.SetTracking(c.Request.Context(), itemID, req.Tracked); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "tracking updated")
}
