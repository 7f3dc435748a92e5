package item

import (
	"context"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/tx"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/category"
	"gnrtax/pkg/logger"
)

// Service provides business logic for the TrackedItem catalog.
type Service struct {
	repo      Repository
	txManager tx.Manager
	hooks     *domain.HookRegistry[*TrackedItem]
}

// NewService creates a new tracked item service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	svc := &Service{
		repo:      repo,
		txManager: txManager,
		hooks:     domain.NewHookRegistry[*TrackedItem](),
	}

	svc.hooks.On(domain.BeforeCreate, svc.autoDetectCategory)
	svc.hooks.On(domain.BeforeUpdate, svc.autoDetectCategory)

	return svc
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*TrackedItem] {
	return s.hooks
}

// autoDetectCategory fills an empty category from code/name/group keywords
// and toggles the tracking flag accordingly.
func (s *Service) autoDetectCategory(ctx context.Context, it *TrackedItem) error {
	if it.Category != category.CategoryUnknown {
		return nil
	}
	detected := it.DetectCategory()
	if detected == category.CategoryUnknown {
		// Nothing matched: the item stays untracked until configured manually.
		it.Tracked = false
		return nil
	}
	it.Category = detected
	it.Tracked = true
	logger.Info(ctx, "tax category detected for item",
		"code", it.Code,
		"category", string(detected),
	)
	return nil
}

// Create registers a new tracked item.
func (s *Service) Create(ctx context.Context, it *TrackedItem) error {
	if err := s.hooks.RunBeforeCreate(ctx, it); err != nil {
		return err
	}

	if err := it.Validate(ctx); err != nil {
		return err
	}

	if it.Code != "" {
		if existing, err := s.repo.GetByCode(ctx, it.Code); err == nil && existing != nil {
			return apperror.NewDuplicate("tracked item", "code", it.Code)
		}
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, it)
	})
	if err != nil {
		return err
	}

	if err := s.hooks.RunAfterCreate(ctx, it); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	return nil
}

// GetByID retrieves a tracked item.
func (s *Service) GetByID(ctx context.Context, itemID id.ID) (*TrackedItem, error) {
	return s.repo.GetByID(ctx, itemID)
}

// GetByCode retrieves a tracked item by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (*TrackedItem, error) {
	return s.repo.GetByCode(ctx, code)
}

// Update modifies a tracked item.
func (s *Service) Update(ctx context.Context, it *TrackedItem) error {
	if err := s.hooks.RunBeforeUpdate(ctx, it); err != nil {
		return err
	}

	if err := it.Validate(ctx); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, it)
	})
}

// SetTracking toggles the tracking flag.
func (s *Service) SetTracking(ctx context.Context, itemID id.ID, tracked bool) error {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	it.Tracked = tracked
	return s.Update(ctx, it)
}

// List retrieves tracked items with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*TrackedItem], error) {
	return s.repo.List(ctx, filter)
}
