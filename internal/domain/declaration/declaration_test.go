package declaration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/attestation"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/registers/tax"
)

type noopTx struct{}

func (noopTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubLedger struct {
	rows []tax.CounterpartyTotals
	// preRows answer queries ending before the requested from date
	preRows []tax.CounterpartyTotals
	from    time.Time
}

func (s *stubLedger) PeriodTotals(_ context.Context, from, to time.Time) ([]tax.CounterpartyTotals, error) {
	if !s.from.IsZero() && to.Before(s.from) {
		return s.preRows, nil
	}
	return s.rows, nil
}

type memDecls struct {
	byID map[id.ID]*Declaration
}

func newMemDecls() *memDecls { return &memDecls{byID: map[id.ID]*Declaration{}} }

func (r *memDecls) Create(_ context.Context, d *Declaration) error {
	cp := *d
	r.byID[d.ID] = &cp
	return nil
}
func (r *memDecls) Update(_ context.Context, d *Declaration) error {
	cp := *d
	r.byID[d.ID] = &cp
	return nil
}
func (r *memDecls) GetByID(_ context.Context, declID id.ID) (*Declaration, error) {
	d, ok := r.byID[declID]
	if !ok {
		return nil, apperror.NewNotFound("declaration", declID)
	}
	cp := *d
	return &cp, nil
}
func (r *memDecls) FindActiveByPeriod(_ context.Context, t PeriodType, year, index int) (*Declaration, error) {
	for _, d := range r.byID {
		if d.IsActive() && d.PeriodType == t && d.Year == year && d.Index == index {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("declaration", PeriodCode(t, year, index))
}
func (r *memDecls) FindLatestBefore(_ context.Context, t PeriodType, before time.Time) (*Declaration, error) {
	var best *Declaration
	for _, d := range r.byID {
		if !d.IsActive() || d.PeriodType != t || !d.EndDate.Before(before) {
			continue
		}
		if best == nil || d.EndDate.After(best.EndDate) {
			best = d
		}
	}
	if best == nil {
		return nil, apperror.NewNotFound("declaration", "previous period")
	}
	cp := *best
	return &cp, nil
}
func (r *memDecls) List(context.Context, ListFilter) (domain.ListResult[*Declaration], error) {
	return domain.ListResult[*Declaration]{}, nil
}

type stubClients struct {
	byID map[id.ID]*client.Client
}

func (s *stubClients) Create(context.Context, *client.Client) error { return nil }
func (s *stubClients) GetByID(_ context.Context, clientID id.ID) (*client.Client, error) {
	c, ok := s.byID[clientID]
	if !ok {
		return nil, apperror.NewNotFound("client", clientID)
	}
	return c, nil
}
func (s *stubClients) GetByCode(_ context.Context, code string) (*client.Client, error) {
	return nil, apperror.NewNotFound("client", code)
}
func (s *stubClients) Update(context.Context, *client.Client) error { return nil }
func (s *stubClients) Delete(context.Context, id.ID) error          { return nil }
func (s *stubClients) List(context.Context, client.ListFilter) (domain.ListResult[*client.Client], error) {
	return domain.ListResult[*client.Client]{}, nil
}
func (s *stubClients) GetByIDs(_ context.Context, ids []id.ID) (map[id.ID]*client.Client, error) {
	out := map[id.ID]*client.Client{}
	for _, wanted := range ids {
		if c, ok := s.byID[wanted]; ok {
			out[wanted] = c
		}
	}
	return out, nil
}

func litres(n int64) types.Quantity {
	return types.Quantity(n * types.QuantityScale)
}

func TestPeriodBounds(t *testing.T) {
	tests := []struct {
		name      string
		ptype     PeriodType
		year      int
		index     int
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name: "Q2", ptype: PeriodQuarterly, year: 2026, index: 2,
			wantStart: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 6, 30, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name: "S1", ptype: PeriodSemestrial, year: 2026, index: 1,
			wantStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 6, 30, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name: "annual", ptype: PeriodAnnual, year: 2026, index: 1,
			wantStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 12, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{name: "quarter out of range", ptype: PeriodQuarterly, year: 2026, index: 5, wantErr: true},
		{name: "semester out of range", ptype: PeriodSemestrial, year: 2026, index: 3, wantErr: true},
		{name: "unknown type", ptype: PeriodType("monthly"), year: 2026, index: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := PeriodBounds(tt.ptype, tt.year, tt.index)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestPeriodCode(t *testing.T) {
	assert.Equal(t, "2026-T2", PeriodCode(PeriodQuarterly, 2026, 2))
	assert.Equal(t, "2026-S1", PeriodCode(PeriodSemestrial, 2026, 1))
	assert.Equal(t, "2026", PeriodCode(PeriodAnnual, 2026, 1))
}

func TestLifecycleTransitions(t *testing.T) {
	d, err := NewDeclaration(PeriodQuarterly, 2026, 2)
	require.NoError(t, err)

	// validated requires submitted first
	assert.Error(t, d.MarkValidated())

	require.NoError(t, d.MarkSubmitted())
	assert.Error(t, d.MarkSubmitted(), "double submit rejected")

	require.NoError(t, d.MarkValidated())
	assert.NotNil(t, d.ValidatedAt)

	// a validated declaration cannot be validated again or cancelled
	err = d.MarkValidated()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeDeclarationValidated, appErr.Code)
	assert.Error(t, d.MarkCancelled())
}

func newFixture(ledger *stubLedger, clients *stubClients) (*Service, *memDecls) {
	if clients == nil {
		clients = &stubClients{byID: map[id.ID]*client.Client{}}
	}
	decls := newMemDecls()
	evaluator := attestation.NewEvaluator(types.MustMoney("3.86"), types.MustMoney("24.81"))
	agg := NewAggregator(ledger, decls, clients, evaluator)
	svc := NewService(decls, agg, noopTx{}, security.NewStrictPolicy(time.Time{}), nil)
	return svc, decls
}

func TestGenerate_StockIdentity(t *testing.T) {
	attested := id.New()
	unattested := id.New()

	deposit := time.Now().AddDate(-1, 0, 0)
	attestedClient := client.NewClient("CLI-100", "EARL des Champs")
	attestedClient.ID = attested
	attestedClient.AttestationDossier = "ATT-2025-0042"
	attestedClient.AttestationDeposit = &deposit

	plainClient := client.NewClient("CLI-200", "SARL Travaux")
	plainClient.ID = unattested

	ledger := &stubLedger{
		rows: []tax.CounterpartyTotals{
			{Entries: litres(8000), TaxAmount: types.Zero()},
			{CounterpartyID: &attested, Exits: litres(3000), TaxAmount: types.MustMoney("11580")},
			{CounterpartyID: &unattested, Exits: litres(1000), TaxAmount: types.MustMoney("24810")},
		},
	}
	clients := &stubClients{byID: map[id.ID]*client.Client{
		attested:   attestedClient,
		unattested: plainClient,
	}}

	svc, _ := newFixture(ledger, clients)

	d, err := svc.Generate(context.Background(), PeriodQuarterly, 2026, 2)
	require.NoError(t, err)

	assert.Equal(t, litres(8000), d.Entries)
	assert.Equal(t, litres(4000), d.Exits)
	assert.True(t, d.StockBalanced())
	assert.Equal(t, d.OpeningStock+d.Entries-d.Exits, d.ClosingStock)
	assert.Equal(t, litres(3000), d.ExitsReduced)
	assert.Equal(t, litres(1000), d.ExitsStandard)
	assert.Equal(t, 2, d.ClientCount)
	assert.True(t, d.TaxDue.Equal(types.MustMoney("36390")))
}

func TestGenerate_OpeningChainsFromPreviousClosing(t *testing.T) {
	ledger := &stubLedger{rows: []tax.CounterpartyTotals{{Entries: litres(500)}}}
	svc, decls := newFixture(ledger, nil)

	prev, err := NewDeclaration(PeriodQuarterly, 2026, 1)
	require.NoError(t, err)
	prev.ClosingStock = litres(12000)
	require.NoError(t, decls.Create(context.Background(), prev))

	d, err := svc.Generate(context.Background(), PeriodQuarterly, 2026, 2)
	require.NoError(t, err)
	assert.Equal(t, litres(12000), d.OpeningStock)
	assert.Equal(t, litres(12500), d.ClosingStock)
}

func TestGenerate_FirstPeriodReplaysLedger(t *testing.T) {
	ledger := &stubLedger{
		from:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		rows:    []tax.CounterpartyTotals{{Entries: litres(100)}},
		preRows: []tax.CounterpartyTotals{{Entries: litres(7000), Exits: litres(2000)}},
	}
	svc, _ := newFixture(ledger, nil)

	d, err := svc.Generate(context.Background(), PeriodQuarterly, 2026, 2)
	require.NoError(t, err)
	assert.Equal(t, litres(5000), d.OpeningStock)
}

func TestGenerate_RefreshesExistingDraft(t *testing.T) {
	ledger := &stubLedger{rows: []tax.CounterpartyTotals{{Entries: litres(100)}}}
	svc, _ := newFixture(ledger, nil)
	ctx := context.Background()

	first, err := svc.Generate(ctx, PeriodQuarterly, 2026, 2)
	require.NoError(t, err)

	ledger.rows = []tax.CounterpartyTotals{{Entries: litres(250)}}
	second, err := svc.Generate(ctx, PeriodQuarterly, 2026, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "draft refreshed in place")
	assert.Equal(t, litres(250), second.Entries)
}

func TestGenerate_FiledPeriodBlocksRegeneration(t *testing.T) {
	ledger := &stubLedger{}
	svc, _ := newFixture(ledger, nil)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodQuarterly, 2026, 2)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, d.ID)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, PeriodQuarterly, 2026, 2)
	assert.Error(t, err)
}

func TestSubmit_SemestrialRequiresClientDetail(t *testing.T) {
	ledger := &stubLedger{}
	svc, _ := newFixture(ledger, nil)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodSemestrial, 2026, 1)
	require.NoError(t, err)
	require.Equal(t, 0, d.ClientCount)

	_, err = svc.Submit(ctx, d.ID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "semestrial_without_client_detail", appErr.Code)

	stored, err := svc.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status, "rejected submit leaves the draft untouched")
}

func TestSubmit_SemestrialWithClientDetail(t *testing.T) {
	clientID := id.New()
	c := client.NewClient("CLI-100", "EARL des Champs")
	c.ID = clientID

	ledger := &stubLedger{rows: []tax.CounterpartyTotals{
		{CounterpartyID: &clientID, Exits: litres(2000), TaxAmount: types.MustMoney("7720")},
	}}
	clients := &stubClients{byID: map[id.ID]*client.Client{clientID: c}}
	svc, _ := newFixture(ledger, clients)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodSemestrial, 2026, 1)
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)
}

func TestValidate_ClosesPeriod(t *testing.T) {
	ledger := &stubLedger{}
	clients := &stubClients{byID: map[id.ID]*client.Client{}}
	decls := newMemDecls()
	evaluator := attestation.NewEvaluator(types.MustMoney("3.86"), types.MustMoney("24.81"))
	policy := security.NewStrictPolicy(time.Time{})
	svc := NewService(decls, NewAggregator(ledger, decls, clients, evaluator), noopTx{}, policy, nil)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodQuarterly, 2026, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, d.ID)
	require.NoError(t, err)
	validated, err := svc.Validate(ctx, d.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusValidated, validated.Status)

	inPeriod := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	assert.Error(t, policy.CanPost(ctx, inPeriod), "validated period is closed for posting")
	after := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, policy.CanPost(ctx, after))
}

func TestAmend(t *testing.T) {
	ledger := &stubLedger{rows: []tax.CounterpartyTotals{{Entries: litres(100)}}}
	svc, decls := newFixture(ledger, nil)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodQuarterly, 2026, 1)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, d.ID)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, d.ID)
	require.NoError(t, err)

	// amendment recomputes against the corrected ledger
	ledger.rows = []tax.CounterpartyTotals{{Entries: litres(150)}}
	amendment, err := svc.Amend(ctx, d.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, amendment.Status)
	require.NotNil(t, amendment.AmendsID)
	assert.Equal(t, d.ID, *amendment.AmendsID)
	assert.Equal(t, litres(150), amendment.Entries)

	original, err := decls.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, original.Status, "original stays validated")
	require.NotNil(t, original.AmendedByID)
	assert.Equal(t, amendment.ID, *original.AmendedByID)
}

func TestAmend_RequiresValidated(t *testing.T) {
	ledger := &stubLedger{}
	svc, _ := newFixture(ledger, nil)
	ctx := context.Background()

	d, err := svc.Generate(ctx, PeriodQuarterly, 2026, 1)
	require.NoError(t, err)

	_, err = svc.Amend(ctx, d.ID)
	assert.Error(t, err)
}

func TestClientLines(t *testing.T) {
	clientID := id.New()
	deposit := time.Now().AddDate(-4, 0, 0) // expired
	c := client.NewClient("CLI-100", "EARL des Champs")
	c.ID = clientID
	c.AttestationDossier = "ATT-2022-0007"
	c.AttestationDeposit = &deposit

	ledger := &stubLedger{rows: []tax.CounterpartyTotals{
		{CounterpartyID: &clientID, Exits: litres(2000), TaxAmount: types.MustMoney("7720")},
		{Entries: litres(9000)}, // internal, no counterparty
	}}
	clients := &stubClients{byID: map[id.ID]*client.Client{clientID: c}}
	svc, _ := newFixture(ledger, clients)

	lines, err := svc.Aggregator().ClientLines(context.Background(),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "CLI-100", lines[0].Client.Code)
	assert.Equal(t, litres(2000), lines[0].Volume)
	assert.Equal(t, attestation.StatusExpired, lines[0].Attestation)
}
