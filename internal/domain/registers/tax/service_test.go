package tax

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain"
)

type noopTx struct{}

func (noopTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memRepo is an in-memory Repository enforcing the source-line uniqueness
// constraint the way the Postgres partial index does.
type memRepo struct {
	movements map[id.ID]*entity.TaxMovement
	deleted   []id.ID
}

func newMemRepo() *memRepo {
	return &memRepo{movements: make(map[id.ID]*entity.TaxMovement)}
}

func (r *memRepo) Create(_ context.Context, m *entity.TaxMovement) error {
	for _, existing := range r.movements {
		if !existing.IsCancelled() &&
			existing.SourceDocType == m.SourceDocType &&
			existing.SourceDocID == m.SourceDocID &&
			existing.SourceLineNo == m.SourceLineNo {
			return apperror.NewMovementExists(m.SourceDocType, m.SourceDocID, m.SourceLineNo)
		}
	}
	cp := *m
	r.movements[m.ID] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, m *entity.TaxMovement) error {
	if _, ok := r.movements[m.ID]; !ok {
		return apperror.NewNotFound("tax movement", m.ID)
	}
	cp := *m
	r.movements[m.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	m, ok := r.movements[movementID]
	if !ok {
		return nil, apperror.NewNotFound("tax movement", movementID)
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) FindActiveBySourceLine(_ context.Context, docType, docID string, lineNo int) (*entity.TaxMovement, error) {
	for _, m := range r.movements {
		if !m.IsCancelled() && m.SourceDocType == docType && m.SourceDocID == docID && m.SourceLineNo == lineNo {
			cp := *m
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("tax movement", fmt.Sprintf("%s/%s#%d", docType, docID, lineNo))
}

func (r *memRepo) ListBySourceDoc(_ context.Context, docType, docID string) ([]*entity.TaxMovement, error) {
	var out []*entity.TaxMovement
	for _, m := range r.movements {
		if m.SourceDocType == docType && m.SourceDocID == docID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, movementID id.ID) error {
	if _, ok := r.movements[movementID]; !ok {
		return apperror.NewNotFound("tax movement", movementID)
	}
	delete(r.movements, movementID)
	r.deleted = append(r.deleted, movementID)
	return nil
}

func (r *memRepo) List(_ context.Context, _ Filter) (domain.ListResult[*entity.TaxMovement], error) {
	var out []*entity.TaxMovement
	for _, m := range r.movements {
		cp := *m
		out = append(out, &cp)
	}
	return domain.ListResult[*entity.TaxMovement]{Items: out, TotalCount: int64(len(out))}, nil
}

func (r *memRepo) RecentSubmitted(_ context.Context, itemID id.ID, since time.Time, limit int) ([]*entity.TaxMovement, error) {
	var out []*entity.TaxMovement
	for _, m := range r.movements {
		if m.IsSubmitted() && m.ItemID == itemID && !m.Date.Before(since) && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) PeriodTotals(_ context.Context, from, to time.Time) ([]CounterpartyTotals, error) {
	byCp := make(map[id.ID]*CounterpartyTotals)
	var internal *CounterpartyTotals
	for _, m := range r.movements {
		if !m.IsSubmitted() || m.Date.Before(from) || m.Date.After(to) {
			continue
		}
		var row *CounterpartyTotals
		if m.CounterpartyID == nil {
			if internal == nil {
				internal = &CounterpartyTotals{TaxAmount: types.Zero()}
			}
			row = internal
		} else {
			cpID := *m.CounterpartyID
			if byCp[cpID] == nil {
				byCp[cpID] = &CounterpartyTotals{CounterpartyID: m.CounterpartyID, TaxAmount: types.Zero()}
			}
			row = byCp[cpID]
		}
		switch {
		case m.MovementType.IncreasesStock():
			row.Entries += m.Quantity
		case m.MovementType.DecreasesStock():
			row.Exits += m.Quantity
		}
		row.TaxAmount = row.TaxAmount.Add(m.TaxAmount)
	}
	var out []CounterpartyTotals
	if internal != nil {
		out = append(out, *internal)
	}
	for _, row := range byCp {
		out = append(out, *row)
	}
	return out, nil
}

func newMovement(date time.Time) *entity.TaxMovement {
	m := entity.NewTaxMovement(id.New(), entity.MovementSale, date)
	m.Quantity = types.NewQuantityFromFloat64(1000)
	m.ApplyRate(types.MustMoney("3.86"), entity.RateSourceItem)
	m.SourceDocType = "SalesInvoice"
	m.SourceDocID = "INV-2026-042"
	m.SourceLineNo = 1
	m.Number = "TM-000001"
	return m
}

func newTestService(repo Repository) *Service {
	return NewService(repo, noopTx{}, security.OpenPolicy{}, nil)
}

func TestRecordAndSubmit(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, m))

	submitted, err := svc.Submit(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, submitted.IsSubmitted())
	assert.NotNil(t, submitted.SubmittedAt)

	// submitting twice is an error, not a silent overwrite
	_, err = svc.Submit(ctx, m.ID)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeMovementSubmitted, appErr.Code)
}

func TestRecord_DuplicateSourceLineRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, first))

	duplicate := newMovement(time.Now())
	err := svc.Record(ctx, duplicate)
	assert.True(t, apperror.IsMovementExists(err))
}

func TestRecord_CancelledLineCanBeRecaptured(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, first))
	_, err := svc.Submit(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, first.ID))

	recaptured := newMovement(time.Now())
	assert.NoError(t, svc.Record(ctx, recaptured))
}

func TestCancel_DraftIsDeleted(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, m))
	require.NoError(t, svc.Cancel(ctx, m.ID))

	assert.Contains(t, repo.deleted, m.ID)
	_, err := svc.GetByID(ctx, m.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestCancel_Idempotent(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, m))
	_, err := svc.Submit(ctx, m.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, m.ID))
	require.NoError(t, svc.Cancel(ctx, m.ID), "second cancel is a no-op")

	got, err := svc.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled())
}

func TestCancel_ClosedPeriodRejected(t *testing.T) {
	repo := newMemRepo()
	policy := security.NewStrictPolicy(time.Now().Add(24 * time.Hour))
	svc := NewService(repo, noopTx{}, policy, nil)
	ctx := context.Background()

	m := newMovement(time.Now())
	// recorded through an open policy, then the period closes
	require.NoError(t, newTestService(repo).Record(ctx, m))

	err := svc.Cancel(ctx, m.ID)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodePeriodClosed, appErr.Code)
}

func TestSupersede(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	original := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, original))
	_, err := svc.Submit(ctx, original.ID)
	require.NoError(t, err)

	corrected := newMovement(time.Now())
	corrected.ApplyRate(types.MustMoney("24.81"), entity.RateSourceManual)
	// corrected copy replaces the same source line; mark original cancelled first
	// happens inside Supersede, so Create must not trip the uniqueness check
	err = svc.Supersede(ctx, original.ID, corrected)
	require.NoError(t, err)

	old, err := svc.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, old.IsCancelled())
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, corrected.ID, *old.SupersededBy)

	repl, err := svc.GetByID(ctx, corrected.ID)
	require.NoError(t, err)
	assert.True(t, repl.IsSubmitted())
	assert.True(t, repl.TaxAmount.Equal(types.MustMoney("24810")))
}

func TestSupersede_DraftRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	original := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, original))

	corrected := newMovement(time.Now())
	err := svc.Supersede(ctx, original.ID, corrected)
	assert.Error(t, err)
}

func TestHistoryAdapter(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m := newMovement(time.Now())
	require.NoError(t, svc.Record(ctx, m))
	_, err := svc.Submit(ctx, m.ID)
	require.NoError(t, err)

	points, err := svc.History().RecentRates(ctx, m.ItemID, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].Rate.Equal(types.MustMoney("3.86")))
}
