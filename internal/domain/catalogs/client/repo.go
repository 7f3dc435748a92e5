package client

import (
	"context"

	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
)

// Repository defines operations for the client catalog.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, clientID id.ID) (*Client, error)
	GetByCode(ctx context.Context, code string) (*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, clientID id.ID) error
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Client], error)

	// GetByIDs is a batch lookup used by period aggregation to evaluate
	// attestation validity for many counterparties at once.
	GetByIDs(ctx context.Context, clientIDs []id.ID) (map[id.ID]*Client, error)
}

// ListFilter for filtering clients.
type ListFilter struct {
	domain.ListFilter

	// WithAttestation filters clients by presence of attestation fields
	WithAttestation *bool
}
