package client

import (
	"context"
	"time"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/tx"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/attestation"
)

// Service provides business logic for the Client catalog.
type Service struct {
	repo      Repository
	txManager tx.Manager
	evaluator *attestation.Evaluator
}

// NewService creates a new client service.
func NewService(repo Repository, txManager tx.Manager, evaluator *attestation.Evaluator) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		evaluator: evaluator,
	}
}

// Create registers a new client.
func (s *Service) Create(ctx context.Context, c *Client) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}

	if c.Code != "" {
		if existing, err := s.repo.GetByCode(ctx, c.Code); err == nil && existing != nil {
			return apperror.NewDuplicate("client", "code", c.Code)
		}
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, c)
	})
}

// GetByID retrieves a client.
func (s *Service) GetByID(ctx context.Context, clientID id.ID) (*Client, error) {
	return s.repo.GetByID(ctx, clientID)
}

// Update modifies a client.
func (s *Service) Update(ctx context.Context, c *Client) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, c)
	})
}

// List retrieves clients with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Client], error) {
	return s.repo.List(ctx, filter)
}

// AttestationStatus evaluates the client's certificate as of now.
func (s *Service) AttestationStatus(ctx context.Context, clientID id.ID) (attestation.Status, string, error) {
	c, err := s.repo.GetByID(ctx, clientID)
	if err != nil {
		return attestation.StatusNone, "", err
	}
	status, msg := s.evaluator.Evaluate(c.Certificate(), time.Now())
	return status, msg, nil
}
