package declaration

import (
	"context"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/tx"
	"gnrtax/internal/domain"
	"gnrtax/pkg/logger"
)

// NumberSource hands out sequential declaration numbers.
type NumberSource interface {
	Next(ctx context.Context, scope string) (string, error)
}

const numberScope = "declaration"

// Service owns the declaration lifecycle: generate from the ledger,
// submit, validate (which closes the period for posting), amend.
type Service struct {
	repo       Repository
	aggregator *Aggregator
	txManager  tx.Manager
	policy     *security.StrictPolicy
	numbers    NumberSource
	hooks      *domain.HookRegistry[*Declaration]
}

// NewService creates the declaration service. policy may be nil when no
// period closing is enforced (tests, read-only deployments).
func NewService(repo Repository, aggregator *Aggregator, txManager tx.Manager, policy *security.StrictPolicy, numbers NumberSource) *Service {
	return &Service{
		repo:       repo,
		aggregator: aggregator,
		txManager:  txManager,
		policy:     policy,
		numbers:    numbers,
		hooks:      domain.NewHookRegistry[*Declaration](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Declaration] {
	return s.hooks
}

// Generate builds (or rebuilds) the draft declaration for a period.
// An existing draft is refreshed in place; a submitted or validated
// declaration blocks regeneration — amendments go through Amend.
func (s *Service) Generate(ctx context.Context, t PeriodType, year, index int) (*Declaration, error) {
	existing, err := s.repo.FindActiveByPeriod(ctx, t, year, index)
	found := err == nil
	switch {
	case found && !existing.IsDraft():
		return nil, apperror.NewConflict("period already has a filed declaration").
			WithDetail("code", existing.Code).
			WithDetail("status", string(existing.Status))
	case !found && !apperror.IsNotFound(err):
		return nil, err
	}

	d, err := NewDeclaration(t, year, index)
	if err != nil {
		return nil, err
	}

	if found {
		// refresh the draft, keep identity and number
		d.BaseDocument = existing.BaseDocument
		d.Number = existing.Number
	}

	if err := s.aggregator.Populate(ctx, d); err != nil {
		return nil, err
	}

	if d.Number == "" && s.numbers != nil {
		number, err := s.numbers.Next(ctx, numberScope)
		if err != nil {
			return nil, err
		}
		d.Number = number
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if found {
			return s.repo.Update(ctx, d)
		}
		return s.repo.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	if found {
		err = s.hooks.RunAfterUpdate(ctx, d)
	} else {
		err = s.hooks.RunAfterCreate(ctx, d)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Submit files a draft declaration. A semestrial declaration without its
// per-client exit detail is rejected; empty totals are filed but logged.
func (s *Service) Submit(ctx context.Context, declID id.ID) (*Declaration, error) {
	var result *Declaration
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, declID)
		if err != nil {
			return err
		}
		if d.PeriodType == PeriodSemestrial && d.ClientCount == 0 {
			return apperror.NewBusinessRule("semestrial_without_client_detail",
				"semestrial declaration requires the per-client exit detail").
				WithDetail("code", d.Code)
		}
		if d.Entries.IsZero() && d.Exits.IsZero() && d.TaxDue.IsZero() {
			logger.Warn(ctx, "declaration submitted with empty totals",
				"code", d.Code,
			)
		}
		if err := d.MarkSubmitted(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.hooks.RunAfterUpdate(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate marks a submitted declaration as accepted by the authorities
// and closes its period: no movement may be recorded or cancelled inside
// it afterwards.
func (s *Service) Validate(ctx context.Context, declID id.ID) (*Declaration, error) {
	var result *Declaration
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, declID)
		if err != nil {
			return err
		}
		if err := d.MarkValidated(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.RunAfterUpdate(ctx, result); err != nil {
		return nil, err
	}

	if s.policy != nil {
		s.policy.AdvanceClosedPeriod(result.EndDate)
		logger.Info(ctx, "period closed for posting",
			"code", result.Code,
			"closed_until", result.EndDate.Format("2006-01-02"),
		)
	}
	return result, nil
}

// Cancel discards a draft or submitted declaration.
func (s *Service) Cancel(ctx context.Context, declID id.ID) error {
	var cancelled *Declaration
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetByID(ctx, declID)
		if err != nil {
			return err
		}
		if d.Status == StatusCancelled {
			return nil
		}
		if err := d.MarkCancelled(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		cancelled = d
		return nil
	})
	if err != nil || cancelled == nil {
		return err
	}
	return s.hooks.RunAfterUpdate(ctx, cancelled)
}

// Amend creates a fresh draft superseding a validated declaration, with
// figures re-aggregated from the current ledger. The original stays
// validated and keeps its audit trail; the two are linked both ways.
func (s *Service) Amend(ctx context.Context, declID id.ID) (*Declaration, error) {
	original, err := s.repo.GetByID(ctx, declID)
	if err != nil {
		return nil, err
	}
	if !original.IsValidated() {
		return nil, apperror.NewBusinessRule("DECLARATION_NOT_VALIDATED", "only a validated declaration can be amended").
			WithDetail("status", string(original.Status))
	}

	amendment, err := NewDeclaration(original.PeriodType, original.Year, original.Index)
	if err != nil {
		return nil, err
	}
	amendment.AmendsID = &original.ID

	if err := s.aggregator.Populate(ctx, amendment); err != nil {
		return nil, err
	}

	if s.numbers != nil {
		number, err := s.numbers.Next(ctx, numberScope)
		if err != nil {
			return nil, err
		}
		amendment.Number = number
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, amendment); err != nil {
			return err
		}
		original.AmendedByID = &amendment.ID
		original.Touch()
		return s.repo.Update(ctx, original)
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.RunAfterCreate(ctx, amendment); err != nil {
		return nil, err
	}

	logger.Info(ctx, "declaration amended",
		"original", original.Code,
		"amendment_id", amendment.ID.String(),
	)
	return amendment, nil
}

// GetByID retrieves a declaration.
func (s *Service) GetByID(ctx context.Context, declID id.ID) (*Declaration, error) {
	return s.repo.GetByID(ctx, declID)
}

// GetByPeriod retrieves the active declaration of a period.
func (s *Service) GetByPeriod(ctx context.Context, t PeriodType, year, index int) (*Declaration, error) {
	return s.repo.FindActiveByPeriod(ctx, t, year, index)
}

// List queries declarations.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Declaration], error) {
	return s.repo.List(ctx, filter)
}

// Aggregator exposes the underlying aggregator for report generation.
func (s *Service) Aggregator() *Aggregator {
	return s.aggregator
}
