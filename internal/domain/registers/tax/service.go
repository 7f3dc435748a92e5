package tax

import (
	"context"
	"time"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/tx"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/rate"
	"gnrtax/pkg/logger"
)

// NumberSource hands out sequential document numbers per scope.
// Implemented by pkg/numerator.
type NumberSource interface {
	Next(ctx context.Context, scope string) (string, error)
}

// numberScope is the sequence the ledger draws movement numbers from.
const numberScope = "tax_movement"

// Service owns the movement lifecycle: record as draft, submit, cancel,
// supersede. All state transitions go through here so the posting policy
// and audit stamps are applied uniformly.
type Service struct {
	repo      Repository
	txManager tx.Manager
	policy    security.PostingPolicy
	numbers   NumberSource
	hooks     *domain.HookRegistry[*entity.TaxMovement]
}

// NewService creates the ledger service. numbers may be nil when callers
// assign document numbers themselves (imports, tests).
func NewService(repo Repository, txManager tx.Manager, policy security.PostingPolicy, numbers NumberSource) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		policy:    policy,
		numbers:   numbers,
		hooks:     domain.NewHookRegistry[*entity.TaxMovement](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*entity.TaxMovement] {
	return s.hooks
}

// Record persists a draft movement.
func (s *Service) Record(ctx context.Context, m *entity.TaxMovement) error {
	if err := s.hooks.RunBeforeCreate(ctx, m); err != nil {
		return err
	}

	if err := m.Validate(ctx); err != nil {
		return err
	}

	if err := s.policy.CanPost(ctx, m.Date); err != nil {
		return err
	}

	if m.Number == "" && s.numbers != nil {
		number, err := s.numbers.Next(ctx, numberScope)
		if err != nil {
			return err
		}
		m.Number = number
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, m)
	})
	if err != nil {
		return err
	}

	if err := s.hooks.RunAfterCreate(ctx, m); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	return nil
}

// Submit posts a draft movement to the ledger.
func (s *Service) Submit(ctx context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	var result *entity.TaxMovement
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, movementID)
		if err != nil {
			return err
		}
		if m.IsSubmitted() {
			return apperror.NewBusinessRule(apperror.CodeMovementSubmitted, "movement is already submitted").
				WithDetail("movementId", movementID.String())
		}
		if m.IsCancelled() {
			return apperror.NewBusinessRule("MOVEMENT_CANCELLED", "cancelled movement cannot be submitted").
				WithDetail("movementId", movementID.String())
		}
		if err := s.policy.CanPost(ctx, m.Date); err != nil {
			return err
		}
		m.MarkSubmitted()
		if err := s.repo.Update(ctx, m); err != nil {
			return err
		}
		result = m
		return nil
	})
	return result, err
}

// Cancel reverses a movement. Cancelling an already-cancelled movement is
// a no-op: cancellation events from the host ERP may arrive more than once.
func (s *Service) Cancel(ctx context.Context, movementID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetByID(ctx, movementID)
		if err != nil {
			return err
		}
		if m.IsCancelled() {
			return nil
		}
		if err := s.policy.CanCancel(ctx, m.Date); err != nil {
			return err
		}
		if m.IsDraft() {
			// drafts never reached the ledger, remove the row entirely
			return s.repo.Delete(ctx, m.ID)
		}
		m.MarkCancelled()
		return s.repo.Update(ctx, m)
	})
}

// Supersede atomically replaces a submitted movement with a corrected copy:
// the original is cancelled and linked to its replacement, the replacement
// is submitted. Aggregates stay consistent because both writes share the
// transaction.
func (s *Service) Supersede(ctx context.Context, originalID id.ID, corrected *entity.TaxMovement) error {
	if err := corrected.Validate(ctx); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		original, err := s.repo.GetByID(ctx, originalID)
		if err != nil {
			return err
		}
		if !original.IsSubmitted() {
			return apperror.NewBusinessRule("MOVEMENT_NOT_SUBMITTED", "only submitted movements can be superseded").
				WithDetail("movementId", originalID.String())
		}
		if err := s.policy.CanCancel(ctx, original.Date); err != nil {
			return err
		}

		original.Supersede(corrected.ID)
		if err := s.repo.Update(ctx, original); err != nil {
			return err
		}

		corrected.MarkSubmitted()
		if err := s.repo.Create(ctx, corrected); err != nil {
			return err
		}

		logger.Info(ctx, "movement superseded",
			"original", originalID.String(),
			"replacement", corrected.ID.String(),
		)
		return nil
	})
}

// GetByID retrieves a movement.
func (s *Service) GetByID(ctx context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	return s.repo.GetByID(ctx, movementID)
}

// FindActiveBySourceLine returns the live movement for a source line.
func (s *Service) FindActiveBySourceLine(ctx context.Context, docType, docID string, lineNo int) (*entity.TaxMovement, error) {
	return s.repo.FindActiveBySourceLine(ctx, docType, docID, lineNo)
}

// ListBySourceDoc returns all movements of a source document.
func (s *Service) ListBySourceDoc(ctx context.Context, docType, docID string) ([]*entity.TaxMovement, error) {
	return s.repo.ListBySourceDoc(ctx, docType, docID)
}

// List queries the ledger.
func (s *Service) List(ctx context.Context, filter Filter) (domain.ListResult[*entity.TaxMovement], error) {
	return s.repo.List(ctx, filter)
}

// PeriodTotals aggregates submitted movements grouped by counterparty.
func (s *Service) PeriodTotals(ctx context.Context, from, to time.Time) ([]CounterpartyTotals, error) {
	return s.repo.PeriodTotals(ctx, from, to)
}

// History exposes the ledger as a rate.HistoryProvider.
func (s *Service) History() rate.HistoryProvider {
	return historyAdapter{repo: s.repo}
}

type historyAdapter struct {
	repo Repository
}

func (a historyAdapter) RecentRates(ctx context.Context, itemID id.ID, since time.Time, limit int) ([]rate.HistoryPoint, error) {
	movements, err := a.repo.RecentSubmitted(ctx, itemID, since, limit)
	if err != nil {
		return nil, err
	}
	points := make([]rate.HistoryPoint, 0, len(movements))
	for _, m := range movements {
		points = append(points, rate.HistoryPoint{
			Date:      m.Date,
			Rate:      m.Rate,
			Quantity:  m.Quantity,
			TaxAmount: m.TaxAmount,
		})
	}
	return points, nil
}
