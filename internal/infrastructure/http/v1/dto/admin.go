package dto

import (
	"time"

	"gnrtax/internal/domain/capture"
)

// ReprocessRequest replays invoice events through the capture pipeline.
type ReprocessRequest struct {
	Events []*capture.InvoiceEvent `json:"events" binding:"required,min=1"`
}

// ReprocessResponse summarizes a replay.
type ReprocessResponse struct {
	Found     int               `json:"found"`
	Processed int               `json:"processed"`
	Errors    []string          `json:"errors,omitempty"`
	Results   []*capture.Result `json:"results"`
}

// AnalyzeRequest bounds a reconciliation scan.
type AnalyzeRequest struct {
	DateFrom time.Time `json:"dateFrom" binding:"required" time_format:"2006-01-02"`
	DateTo   time.Time `json:"dateTo" binding:"required" time_format:"2006-01-02"`
}

// RecomputeRequest asks for bulk rate correction.
type RecomputeRequest struct {
	MovementIDs []string `json:"movementIds" binding:"required,min=1"`
	// Limit caps the number of corrections actually applied; 0 means
	// no cap
	Limit int `json:"limit"`
}

// IssueTokenRequest creates a service token.
type IssueTokenRequest struct {
	Name  string   `json:"name" binding:"required"`
	Roles []string `json:"roles"`
}

// IssueTokenResponse returns the plaintext token exactly once.
type IssueTokenResponse struct {
	ID      string `json:"id"`
	TokenID string `json:"tokenId"`
	Token   string `json:"token"`
}
