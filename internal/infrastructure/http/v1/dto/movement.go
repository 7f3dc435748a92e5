package dto

import (
	"time"

	"gnrtax/internal/core/entity"
)

// MovementResponse contains tax movement fields.
type MovementResponse struct {
	BaseResponse
	Number           string     `json:"number"`
	Date             time.Time  `json:"date"`
	Status           string     `json:"status"`
	ItemID           string     `json:"itemId"`
	MovementType     string     `json:"movementType"`
	MovementLabel    string     `json:"movementLabel"`
	Quantity         string     `json:"quantity"`
	UnitPrice        string     `json:"unitPrice"`
	Rate             string     `json:"rate"`
	TaxAmount        string     `json:"taxAmount"`
	RateSource       string     `json:"rateSource"`
	CounterpartyID   *string    `json:"counterpartyId,omitempty"`
	CounterpartyKind string     `json:"counterpartyKind,omitempty"`
	Category         string     `json:"category"`
	Quarter          int        `json:"quarter"`
	Semester         int        `json:"semester"`
	Year             int        `json:"year"`
	SourceDocType    string     `json:"sourceDocType"`
	SourceDocID      string     `json:"sourceDocId"`
	SourceLineNo     int        `json:"sourceLineNo"`
	SupersededBy     *string    `json:"supersededBy,omitempty"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	Comment          string     `json:"comment,omitempty"`
}

// FromMovement creates MovementResponse from the entity.
func FromMovement(m *entity.TaxMovement) MovementResponse {
	resp := MovementResponse{
		BaseResponse:     FromBaseEntity(m.BaseEntity),
		Number:           m.Number,
		Date:             m.Date,
		Status:           string(m.Status),
		ItemID:           m.ItemID.String(),
		MovementType:     string(m.MovementType),
		MovementLabel:    m.MovementType.Label(),
		Quantity:         m.Quantity.String(),
		UnitPrice:        m.UnitPrice.String(),
		Rate:             m.Rate.String(),
		TaxAmount:        m.TaxAmount.String(),
		RateSource:       string(m.RateSource),
		CounterpartyKind: string(m.CounterpartyKind),
		Category:         m.Category,
		Quarter:          m.Quarter,
		Semester:         m.Semester,
		Year:             m.Year,
		SourceDocType:    m.SourceDocType,
		SourceDocID:      m.SourceDocID,
		SourceLineNo:     m.SourceLineNo,
		SubmittedAt:      m.SubmittedAt,
		CancelledAt:      m.CancelledAt,
		Comment:          m.Comment,
	}
	if m.CounterpartyID != nil {
		s := m.CounterpartyID.String()
		resp.CounterpartyID = &s
	}
	if m.SupersededBy != nil {
		s := m.SupersededBy.String()
		resp.SupersededBy = &s
	}
	return resp
}

// FromMovements maps a slice of movements.
func FromMovements(movements []*entity.TaxMovement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, FromMovement(m))
	}
	return out
}

// MovementListRequest filters ledger queries.
type MovementListRequest struct {
	PaginationRequest
	Search         string     `form:"search"`
	ItemID         string     `form:"itemId"`
	CounterpartyID string     `form:"counterpartyId"`
	Status         string     `form:"status"`
	MovementType   string     `form:"movementType"`
	RateSource     string     `form:"rateSource"`
	Category       string     `form:"category"`
	DateFrom       *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo         *time.Time `form:"dateTo" time_format:"2006-01-02"`
	Year           *int       `form:"year"`
	Quarter        *int       `form:"quarter"`
	Semester       *int       `form:"semester"`
	SourceDocType  string     `form:"sourceDocType"`
	SourceDocID    string     `form:"sourceDocId"`
}

// CancelMovementsResponse reports a compensation run.
type CancelMovementsResponse struct {
	DocType   string `json:"docType"`
	DocID     string `json:"docId"`
	Cancelled int    `json:"cancelled"`
}
