package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/category"
)

// --- Tracked items ---

// CreateItemRequest for creating tracked items.
type CreateItemRequest struct {
	Code         string  `json:"code" binding:"required"`
	Name         string  `json:"name" binding:"required"`
	Tracked      *bool   `json:"tracked"`
	Category     string  `json:"category"`
	BaselineRate *string `json:"baselineRate"`
	Unit         string  `json:"unit"`
	Group        string  `json:"group"`
}

// ToEntity converts request to domain entity.
func (r *CreateItemRequest) ToEntity() *item.TrackedItem {
	it := item.NewTrackedItem(r.Code, r.Name, category.Category(r.Category))
	if r.Tracked != nil {
		it.Tracked = *r.Tracked
	}
	if r.BaselineRate != nil {
		if rate, err := decimal.NewFromString(*r.BaselineRate); err == nil {
			it.BaselineRate = rate
		}
	}
	if r.Unit != "" {
		it.Unit = r.Unit
	}
	it.Group = r.Group
	return it
}

// UpdateItemRequest for updating tracked items.
type UpdateItemRequest struct {
	Name         *string `json:"name"`
	Tracked      *bool   `json:"tracked"`
	Category     *string `json:"category"`
	BaselineRate *string `json:"baselineRate"`
	Unit         *string `json:"unit"`
	Group        *string `json:"group"`
	Version      int     `json:"version" binding:"required,min=1"`
}

// ApplyTo applies updates to an existing entity.
func (r *UpdateItemRequest) ApplyTo(it *item.TrackedItem) {
	if r.Name != nil {
		it.Name = *r.Name
	}
	if r.Tracked != nil {
		it.Tracked = *r.Tracked
	}
	if r.Category != nil {
		it.Category = category.Category(*r.Category)
	}
	if r.BaselineRate != nil {
		if rate, err := decimal.NewFromString(*r.BaselineRate); err == nil {
			it.BaselineRate = rate
		}
	}
	if r.Unit != nil {
		it.Unit = *r.Unit
	}
	if r.Group != nil {
		it.Group = *r.Group
	}
	it.SetVersion(r.Version)
}

// ItemResponse contains tracked item fields.
type ItemResponse struct {
	BaseResponse
	Code         string `json:"code"`
	Name         string `json:"name"`
	Tracked      bool   `json:"tracked"`
	Category     string `json:"category"`
	BaselineRate string `json:"baselineRate"`
	Unit         string `json:"unit"`
	Group        string `json:"group,omitempty"`
}

// FromItem creates ItemResponse from the entity.
func FromItem(it *item.TrackedItem) ItemResponse {
	return ItemResponse{
		BaseResponse: FromBaseEntity(it.BaseEntity),
		Code:         it.Code,
		Name:         it.Name,
		Tracked:      it.Tracked,
		Category:     string(it.Category),
		BaselineRate: it.BaselineRate.String(),
		Unit:         it.Unit,
		Group:        it.Group,
	}
}

// ItemListRequest filters tracked item lists.
type ItemListRequest struct {
	PaginationRequest
	Search   string  `form:"search"`
	Tracked  *bool   `form:"tracked"`
	Category *string `form:"category"`
}

// --- Clients ---

// CreateClientRequest for creating clients.
type CreateClientRequest struct {
	Code               string     `json:"code" binding:"required"`
	Name               string     `json:"name" binding:"required"`
	SIREN              string     `json:"siren"`
	AttestationDossier string     `json:"attestationDossier"`
	AttestationDeposit *time.Time `json:"attestationDeposit"`
	AddressLine        string     `json:"addressLine"`
	PostalCode         string     `json:"postalCode"`
	City               string     `json:"city"`
}

// ToEntity converts request to domain entity.
func (r *CreateClientRequest) ToEntity() *client.Client {
	c := client.NewClient(r.Code, r.Name)
	c.SIREN = r.SIREN
	c.AttestationDossier = r.AttestationDossier
	c.AttestationDeposit = r.AttestationDeposit
	c.AddressLine = r.AddressLine
	c.PostalCode = r.PostalCode
	c.City = r.City
	return c
}

// UpdateClientRequest for updating clients.
type UpdateClientRequest struct {
	Name               *string    `json:"name"`
	SIREN              *string    `json:"siren"`
	AttestationDossier *string    `json:"attestationDossier"`
	AttestationDeposit *time.Time `json:"attestationDeposit"`
	AddressLine        *string    `json:"addressLine"`
	PostalCode         *string    `json:"postalCode"`
	City               *string    `json:"city"`
	Version            int        `json:"version" binding:"required,min=1"`
}

// ApplyTo applies updates to an existing entity.
func (r *UpdateClientRequest) ApplyTo(c *client.Client) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.SIREN != nil {
		c.SIREN = *r.SIREN
	}
	if r.AttestationDossier != nil {
		c.AttestationDossier = *r.AttestationDossier
	}
	if r.AttestationDeposit != nil {
		c.AttestationDeposit = r.AttestationDeposit
	}
	if r.AddressLine != nil {
		c.AddressLine = *r.AddressLine
	}
	if r.PostalCode != nil {
		c.PostalCode = *r.PostalCode
	}
	if r.City != nil {
		c.City = *r.City
	}
	c.SetVersion(r.Version)
}

// ClientResponse contains client fields.
type ClientResponse struct {
	BaseResponse
	Code               string     `json:"code"`
	Name               string     `json:"name"`
	SIREN              string     `json:"siren,omitempty"`
	AttestationDossier string     `json:"attestationDossier,omitempty"`
	AttestationDeposit *time.Time `json:"attestationDeposit,omitempty"`
	AttestationStatus  string     `json:"attestationStatus,omitempty"`
	AddressLine        string     `json:"addressLine,omitempty"`
	PostalCode         string     `json:"postalCode,omitempty"`
	City               string     `json:"city,omitempty"`
}

// FromClient creates ClientResponse from the entity.
func FromClient(c *client.Client) ClientResponse {
	return ClientResponse{
		BaseResponse:       FromBaseEntity(c.BaseEntity),
		Code:               c.Code,
		Name:               c.Name,
		SIREN:              c.SIREN,
		AttestationDossier: c.AttestationDossier,
		AttestationDeposit: c.AttestationDeposit,
		AddressLine:        c.AddressLine,
		PostalCode:         c.PostalCode,
		City:               c.City,
	}
}

// ClientListRequest filters client lists.
type ClientListRequest struct {
	PaginationRequest
	Search          string `form:"search"`
	WithAttestation *bool  `form:"withAttestation"`
}
