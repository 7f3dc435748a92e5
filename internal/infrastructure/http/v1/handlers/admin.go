package handlers

import (
	"github.com/gin-gonic/gin"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/domain/auth"
	"gnrtax/internal/domain/capture"
	"gnrtax/internal/domain/reconciliation"
	"gnrtax/internal/infrastructure/http/v1/dto"
)

// AdminHandler exposes maintenance operations: event replay,
// reconciliation scans, bulk rate correction and service token management.
type AdminHandler struct {
	*BaseHandler
	materializer *capture.Materializer
	recon        *reconciliation.Service
	tokens       *auth.TokenService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(materializer *capture.Materializer, recon *reconciliation.Service, tokens *auth.TokenService) *AdminHandler {
	return &AdminHandler{
		BaseHandler:  NewBaseHandler(),
		materializer: materializer,
		recon:        recon,
		tokens:       tokens,
	}
}

// Reprocess replays invoice events through the capture pipeline.
// Already-captured lines are skipped, so replays are safe.
// POST /api/v1/admin/reprocess
func (h *AdminHandler) Reprocess(c *gin.Context) {
	var req dto.ReprocessRequest
	if !h.BindJSON(c, &req) {
		return
	}

	results, err := h.materializer.ReprocessInvoices(c.Request.Context(), req.Events)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.ReprocessResponse{
		Found:   len(req.Events),
		Results: results,
	}
	for _, r := range results {
		resp.Processed += r.Captured
		for _, line := range r.Lines {
			if line.Status == capture.OutcomeFailed {
				resp.Errors = append(resp.Errors, r.DocID+": "+line.Reason)
			}
		}
	}

	h.OK(c, resp)
}

// Analyze runs the anomaly detector over a date range.
// POST /api/v1/admin/analyze
func (h *AdminHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	report, err := h.recon.Analyze(c.Request.Context(), req.DateFrom, req.DateTo)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, report)
}

// Recompute re-resolves rates for the given movements, superseding those
// whose stored amount is materially wrong.
// POST /api/v1/admin/recompute
func (h *AdminHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ids := make([]id.ID, 0, len(req.MovementIDs))
	for _, raw := range req.MovementIDs {
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid movement id").WithDetail("id", raw))
			return
		}
		ids = append(ids, parsed)
	}

	report, err := h.recon.Recompute(c.Request.Context(), ids, req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, report)
}

// IssueToken creates a service token. The plaintext is returned once and
// never stored.
// POST /api/v1/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, plaintext, err := h.tokens.Issue(c.Request.Context(), req.Name, req.Roles)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.IssueTokenResponse{
		ID:      token.ID.String(),
		TokenID: token.TokenID,
		Token:   plaintext,
	})
}

// RevokeToken revokes a service token.
// DELETE /api/v1/admin/tokens/:id
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	tokenID, ok := h.ParseID(c)
	if !ok {
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), tokenID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}
