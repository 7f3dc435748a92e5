package handlers

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// ClientHandler provides CRUD for the client catalog.
type ClientHandler struct {
	*BaseHandler
	clients *client.Service
}

// NewClientHandler creates a new client handler.
func NewClientHandler(clients *client.Service) *ClientHandler {
	return &ClientHandler{
		BaseHandler: NewBaseHandler(),
		clients:     clients,
	}
}

// Create creates a client.
// POST /api/v1/clients
func (h *ClientHandler) Create(c *gin.Context) {
	var req dto.CreateClientRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cl := req.ToEntity()
	if err := h.clients.Create(c.Request.Context(), cl); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, cl.ID.String())
}

// Get returns one client with its attestation status.
// GET /api/v1/clients/:id
func (h *ClientHandler) Get(c *gin.Context) {
	clientID, ok := h.ParseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	cl, err := h.clients.GetByID(ctx, clientID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.FromClient(cl)
	if _, label, err := h.clients.AttestationStatus(ctx, clientID); err == nil {
		resp.AttestationStatus = label
	}

	h.OK(c, resp)
}

// Update modifies a client.
// PUT /api/v1/clients/:id
func (h *ClientHandler) Update(c *gin.Context) {
	clientID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.UpdateClientRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	cl, err := h.clients.GetByID(ctx, clientID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.ApplyTo(cl)
	if err := h.clients.Update(ctx, cl); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromClient(cl))
}

// List queries the client catalog.
// GET /api/v1/clients
func (h *ClientHandler) List(c *gin.Context) {
	var req dto.ClientListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	filter := client.ListFilter{
		WithAttestation: req.WithAttestation,
	}
	filter.Search = req.Search
	req.ApplyTo(&filter.ListFilter)

	result, err := h.clients.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	clients := make([]dto.ClientResponse, 0, len(result.Items))
	for _, cl := range result.Items {
		clients = append(clients, dto.FromClient(cl))
	}

	h.OK(c, dto.ListResponse{
		Items:      clients,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}
