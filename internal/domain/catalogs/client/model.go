// Package client provides the Client catalog: counterparties whose
// attestation status drives differential taxation of sales.
package client

import (
	"context"
	"time"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/domain/attestation"
)

// Client is a fuel purchaser known to the distributor.
type Client struct {
	entity.Catalog

	// SIREN is the French company registration number (9 digits)
	SIREN string `db:"siren" json:"siren,omitempty"`

	// Attestation fields: dossier number and deposit date of the
	// tax-reduction certificate. Both must be present for validity.
	AttestationDossier string     `db:"attestation_dossier" json:"attestationDossier,omitempty"`
	AttestationDeposit *time.Time `db:"attestation_deposit" json:"attestationDeposit,omitempty"`

	// Address fields for the statutory client list
	AddressLine string `db:"address_line" json:"addressLine,omitempty"`
	PostalCode  string `db:"postal_code" json:"postalCode,omitempty"`
	City        string `db:"city" json:"city,omitempty"`
}

// NewClient creates a client.
func NewClient(code, name string) *Client {
	return &Client{
		Catalog: entity.NewCatalog(code, name),
	}
}

// Certificate exposes the attestation fields for evaluation.
func (c *Client) Certificate() attestation.Certificate {
	return attestation.Certificate{
		DossierNumber: c.AttestationDossier,
		DepositDate:   c.AttestationDeposit,
	}
}

// Validate implements entity.Validatable.
func (c *Client) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.SIREN != "" && len(c.SIREN) != 9 {
		return apperror.NewValidation("SIREN must be nine digits").
			WithDetail("field", "siren").
			WithDetail("value", c.SIREN)
	}

	return nil
}
