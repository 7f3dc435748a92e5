// Package security provides posting policies for the tax ledger.
package security

import (
	"context"
	"sync"
	"time"

	"gnrtax/internal/core/apperror"
)

// PostingPolicy defines rules for recording movements into past periods.
// A validated declaration period closes its date range for new movements.
type PostingPolicy interface {
	// CanPost checks if a movement can be recorded with the given date
	CanPost(ctx context.Context, movementDate time.Time) error

	// CanCancel checks if a movement with the given date can be cancelled
	CanCancel(ctx context.Context, movementDate time.Time) error

	// GetClosedPeriod returns the date until which the ledger is closed
	GetClosedPeriod(ctx context.Context) time.Time
}

// StrictPolicy forbids any changes inside a closed period.
// Used once a declaration has been validated with the authorities.
type StrictPolicy struct {
	mu          sync.RWMutex
	closedUntil time.Time
}

// NewStrictPolicy creates policy that forbids changes before closedUntil.
func NewStrictPolicy(closedUntil time.Time) *StrictPolicy {
	return &StrictPolicy{closedUntil: closedUntil}
}

func (p *StrictPolicy) CanPost(ctx context.Context, movementDate time.Time) error {
	p.mu.RLock()
	closed := p.closedUntil
	p.mu.RUnlock()
	if movementDate.Before(closed) {
		return apperror.NewPeriodClosed(closed.Format("2006-01"))
	}
	return nil
}

func (p *StrictPolicy) CanCancel(ctx context.Context, movementDate time.Time) error {
	return p.CanPost(ctx, movementDate)
}

func (p *StrictPolicy) GetClosedPeriod(ctx context.Context) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closedUntil
}

// AdvanceClosedPeriod moves the close boundary forward after a declaration
// is validated. The boundary never moves backwards.
func (p *StrictPolicy) AdvanceClosedPeriod(until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until.After(p.closedUntil) {
		p.closedUntil = until
	}
}

// OpenPolicy allows all postings. Used before the first validated declaration.
type OpenPolicy struct{}

func (OpenPolicy) CanPost(ctx context.Context, movementDate time.Time) error   { return nil }
func (OpenPolicy) CanCancel(ctx context.Context, movementDate time.Time) error { return nil }
func (OpenPolicy) GetClosedPeriod(ctx context.Context) time.Time               { return time.Time{} }
