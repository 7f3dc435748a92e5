package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/pkg/logger"
)

type stubLedger struct {
	drafts    []*entity.TaxMovement
	failAll   bool
	listCalls int
	submitted map[id.ID]bool
}

func (s *stubLedger) List(_ context.Context, filter tax.Filter) (domain.ListResult[*entity.TaxMovement], error) {
	s.listCalls++
	var page []*entity.TaxMovement
	for _, m := range s.drafts {
		if s.submitted[m.ID] {
			continue
		}
		page = append(page, m)
		if len(page) == filter.Limit {
			break
		}
	}
	return domain.ListResult[*entity.TaxMovement]{Items: page}, nil
}

func (s *stubLedger) Submit(_ context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	if s.failAll {
		return nil, apperror.NewPeriodClosed("2026-Q1")
	}
	s.submitted[movementID] = true
	return nil, nil
}

func stubDrafts(n int) []*entity.TaxMovement {
	out := make([]*entity.TaxMovement, n)
	for i := range out {
		m := &entity.TaxMovement{}
		m.ID = id.New()
		out[i] = m
	}
	return out
}

func testWorker(ledger draftLedger) *Worker {
	log := &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	return NewWorker(ledger, nil, WorkerConfig{DraftMaxAge: time.Hour}, log)
}

func TestSweepDrafts_StuckPageStopsAfterOnePass(t *testing.T) {
	// A full page of drafts whose Submit permanently fails (closed period)
	// comes back identical on every query; the sweep must give up and
	// leave them for the next tick instead of re-reading the same page.
	ledger := &stubLedger{
		drafts:    stubDrafts(200),
		failAll:   true,
		submitted: map[id.ID]bool{},
	}
	w := testWorker(ledger)

	w.sweepDrafts(context.Background())

	assert.Equal(t, 1, ledger.listCalls)
	assert.Empty(t, ledger.submitted)
}

func TestSweepDrafts_DrainsAcrossPages(t *testing.T) {
	ledger := &stubLedger{
		drafts:    stubDrafts(250),
		submitted: map[id.ID]bool{},
	}
	w := testWorker(ledger)

	w.sweepDrafts(context.Background())

	assert.Equal(t, 2, ledger.listCalls)
	assert.Len(t, ledger.submitted, 250)
}
