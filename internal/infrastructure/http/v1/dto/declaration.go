package dto

import (
	"time"

	"gnrtax/internal/domain/declaration"
)

// GenerateDeclarationRequest asks for a period declaration.
type GenerateDeclarationRequest struct {
	PeriodType string `json:"periodType" binding:"required"`
	Year       int    `json:"year" binding:"required,min=2000,max=2100"`
	// Index is the quarter (1-4) or semester (1-2) number; ignored for
	// annual declarations
	Index int `json:"index"`
}

// DeclarationResponse contains declaration fields.
type DeclarationResponse struct {
	BaseResponse
	Number        string     `json:"number"`
	PeriodType    string     `json:"periodType"`
	Year          int        `json:"year"`
	Index         int        `json:"index"`
	Code          string     `json:"code"`
	StartDate     time.Time  `json:"startDate"`
	EndDate       time.Time  `json:"endDate"`
	Status        string     `json:"status"`
	OpeningStock  string     `json:"openingStock"`
	Entries       string     `json:"entries"`
	Exits         string     `json:"exits"`
	ClosingStock  string     `json:"closingStock"`
	ExitsReduced  string     `json:"exitsReduced"`
	ExitsStandard string     `json:"exitsStandard"`
	TaxDue        string     `json:"taxDue"`
	ClientCount   int        `json:"clientCount"`
	GeneratedAt   time.Time  `json:"generatedAt"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	ValidatedAt   *time.Time `json:"validatedAt,omitempty"`
	AmendsID      *string    `json:"amendsId,omitempty"`
	AmendedByID   *string    `json:"amendedById,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

// FromDeclaration creates DeclarationResponse from the entity.
func FromDeclaration(d *declaration.Declaration) DeclarationResponse {
	resp := DeclarationResponse{
		BaseResponse:  FromBaseEntity(d.BaseEntity),
		Number:        d.Number,
		PeriodType:    string(d.PeriodType),
		Year:          d.Year,
		Index:         d.Index,
		Code:          d.Code,
		StartDate:     d.StartDate,
		EndDate:       d.EndDate,
		Status:        string(d.Status),
		OpeningStock:  d.OpeningStock.String(),
		Entries:       d.Entries.String(),
		Exits:         d.Exits.String(),
		ClosingStock:  d.ClosingStock.String(),
		ExitsReduced:  d.ExitsReduced.String(),
		ExitsStandard: d.ExitsStandard.String(),
		TaxDue:        d.TaxDue.String(),
		ClientCount:   d.ClientCount,
		GeneratedAt:   d.GeneratedAt,
		SubmittedAt:   d.SubmittedAt,
		ValidatedAt:   d.ValidatedAt,
		Comment:       d.Comment,
	}
	if d.AmendsID != nil {
		s := d.AmendsID.String()
		resp.AmendsID = &s
	}
	if d.AmendedByID != nil {
		s := d.AmendedByID.String()
		resp.AmendedByID = &s
	}
	return resp
}

// FromDeclarations maps a slice of declarations.
func FromDeclarations(decls []*declaration.Declaration) []DeclarationResponse {
	out := make([]DeclarationResponse, 0, len(decls))
	for _, d := range decls {
		out = append(out, FromDeclaration(d))
	}
	return out
}

// DeclarationListRequest filters declaration lists.
type DeclarationListRequest struct {
	PaginationRequest
	Search     string `form:"search"`
	PeriodType string `form:"periodType"`
	Year       *int   `form:"year"`
	Status     string `form:"status"`
}
