package capture

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/category"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/domain/uom"
)

// --- fakes ---

type fakeTx struct{}

func (fakeTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeItems struct {
	byCode map[string]*item.TrackedItem
}

func (r *fakeItems) Create(_ context.Context, it *item.TrackedItem) error {
	r.byCode[it.Code] = it
	return nil
}
func (r *fakeItems) GetByID(_ context.Context, itemID id.ID) (*item.TrackedItem, error) {
	for _, it := range r.byCode {
		if it.ID == itemID {
			return it, nil
		}
	}
	return nil, apperror.NewNotFound("tracked item", itemID)
}
func (r *fakeItems) GetByCode(_ context.Context, code string) (*item.TrackedItem, error) {
	it, ok := r.byCode[code]
	if !ok {
		return nil, apperror.NewNotFound("tracked item", code)
	}
	return it, nil
}
func (r *fakeItems) Update(_ context.Context, it *item.TrackedItem) error {
	r.byCode[it.Code] = it
	return nil
}
func (r *fakeItems) Delete(context.Context, id.ID) error { return nil }
func (r *fakeItems) List(context.Context, item.ListFilter) (domain.ListResult[*item.TrackedItem], error) {
	return domain.ListResult[*item.TrackedItem]{}, nil
}
func (r *fakeItems) Exists(context.Context, id.ID) (bool, error) { return true, nil }

type fakeClients struct {
	byCode map[string]*client.Client
}

func (r *fakeClients) Create(_ context.Context, c *client.Client) error {
	r.byCode[c.Code] = c
	return nil
}
func (r *fakeClients) GetByID(_ context.Context, clientID id.ID) (*client.Client, error) {
	for _, c := range r.byCode {
		if c.ID == clientID {
			return c, nil
		}
	}
	return nil, apperror.NewNotFound("client", clientID)
}
func (r *fakeClients) GetByCode(_ context.Context, code string) (*client.Client, error) {
	c, ok := r.byCode[code]
	if !ok {
		return nil, apperror.NewNotFound("client", code)
	}
	return c, nil
}
func (r *fakeClients) Update(_ context.Context, c *client.Client) error { return nil }
func (r *fakeClients) Delete(context.Context, id.ID) error              { return nil }
func (r *fakeClients) List(context.Context, client.ListFilter) (domain.ListResult[*client.Client], error) {
	return domain.ListResult[*client.Client]{}, nil
}
func (r *fakeClients) GetByIDs(_ context.Context, ids []id.ID) (map[id.ID]*client.Client, error) {
	out := make(map[id.ID]*client.Client)
	for _, c := range r.byCode {
		for _, wanted := range ids {
			if c.ID == wanted {
				out[c.ID] = c
			}
		}
	}
	return out, nil
}

// memLedger mirrors the Postgres partial uniqueness index in memory.
type memLedger struct {
	movements map[id.ID]*entity.TaxMovement
}

func newMemLedger() *memLedger {
	return &memLedger{movements: make(map[id.ID]*entity.TaxMovement)}
}

func (r *memLedger) Create(_ context.Context, m *entity.TaxMovement) error {
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
func (r *memLedger) Update(_ context.Context, m *entity.TaxMovement) error {
	cp := *m
	r.movements[m.ID] = &cp
	return nil
}
func (r *memLedger) GetByID(_ context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	m, ok := r.movements[movementID]
	if !ok {
		return nil, apperror.NewNotFound("tax movement", movementID)
	}
	cp := *m
	return &cp, nil
}
func (r *memLedger) FindActiveBySourceLine(_ context.Context, docType, docID string, lineNo int) (*entity.TaxMovement, error) {
	for _, m := range r.movements {
		if !m.IsCancelled() && m.SourceDocType == docType && m.SourceDocID == docID && m.SourceLineNo == lineNo {
			cp := *m
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("tax movement", fmt.Sprintf("%s/%s#%d", docType, docID, lineNo))
}
func (r *memLedger) ListBySourceDoc(_ context.Context, docType, docID string) ([]*entity.TaxMovement, error) {
	var out []*entity.TaxMovement
	for _, m := range r.movements {
		if m.SourceDocType == docType && m.SourceDocID == docID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (r *memLedger) Delete(_ context.Context, movementID id.ID) error {
	delete(r.movements, movementID)
	return nil
}
func (r *memLedger) List(context.Context, tax.Filter) (domain.ListResult[*entity.TaxMovement], error) {
	return domain.ListResult[*entity.TaxMovement]{}, nil
}
func (r *memLedger) RecentSubmitted(_ context.Context, itemID id.ID, since time.Time, limit int) ([]*entity.TaxMovement, error) {
	var out []*entity.TaxMovement
	for _, m := range r.movements {
		if m.IsSubmitted() && m.ItemID == itemID && !m.Date.Before(since) && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (r *memLedger) PeriodTotals(context.Context, time.Time, time.Time) ([]tax.CounterpartyTotals, error) {
	return nil, nil
}

// --- fixtures ---

type fixture struct {
	mat    *Materializer
	ledger *memLedger
	items  *fakeItems
}

func setup() *fixture {
	items := &fakeItems{byCode: map[string]*item.TrackedItem{}}

	gnr := item.NewTrackedItem("GNR-001", "Gazole Non Routier", category.CategoryGNR)
	gnr.BaselineRate = types.MustMoney("3.86")
	items.byCode[gnr.Code] = gnr

	fioul := item.NewTrackedItem("FOD-001", "Fioul domestique", category.CategoryFioul)
	items.byCode[fioul.Code] = fioul

	untracked := item.NewTrackedItem("LUB-001", "Lubrifiant moteur", category.CategoryUnknown)
	untracked.Tracked = false
	items.byCode[untracked.Code] = untracked

	clients := &fakeClients{byCode: map[string]*client.Client{}}
	deposit := time.Now().AddDate(-1, 0, 0)
	agri := client.NewClient("CLI-100", "EARL des Champs")
	agri.AttestationDossier = "ATT-2025-0042"
	agri.AttestationDeposit = &deposit
	clients.byCode[agri.Code] = agri

	ledger := newMemLedger()
	ledgerSvc := tax.NewService(ledger, fakeTx{}, security.OpenPolicy{}, nil)
	engine := rate.NewEngine(rate.NewConfigProvider(time.Minute, nil), ledgerSvc.History())

	return &fixture{
		mat:    NewMaterializer(items, clients, uom.NewConverter(), engine, ledgerSvc),
		ledger: ledger,
		items:  items,
	}
}

func saleEvent() *InvoiceEvent {
	return &InvoiceEvent{
		DocType:          DocTypeSalesInvoice,
		DocID:            "INV-2026-042",
		Date:             time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC),
		CounterpartyCode: "CLI-100",
		Lines: []InvoiceLine{
			{LineNo: 1, ItemCode: "GNR-001", Quantity: decimal.NewFromInt(1000), Unit: "litre", UnitPrice: types.MustMoney("1.05")},
		},
	}
}

// --- tests ---

func TestCaptureInvoice_Sale(t *testing.T) {
	f := setup()
	ctx := context.Background()

	res, err := f.mat.CaptureInvoice(ctx, saleEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Captured)
	require.Len(t, res.Lines, 1)
	require.NotNil(t, res.Lines[0].MovementID)

	mv, err := f.ledger.GetByID(ctx, *res.Lines[0].MovementID)
	require.NoError(t, err)
	assert.True(t, mv.IsSubmitted())
	assert.Equal(t, entity.MovementSale, mv.MovementType)
	assert.Equal(t, "Vente", mv.MovementType.Label())
	assert.True(t, mv.Rate.Equal(types.MustMoney("3.86")))
	assert.True(t, mv.TaxAmount.Equal(types.MustMoney("3860")), "1000 L at 3.86 EUR/L, got %s", mv.TaxAmount)
	assert.Equal(t, 2, mv.Quarter)
	assert.Equal(t, 1, mv.Semester)
	assert.Equal(t, 2026, mv.Year)
	require.NotNil(t, mv.CounterpartyID)
	assert.Equal(t, entity.CounterpartyClient, mv.CounterpartyKind)
}

func TestCaptureInvoice_Idempotent(t *testing.T) {
	f := setup()
	ctx := context.Background()

	first, err := f.mat.CaptureInvoice(ctx, saleEvent())
	require.NoError(t, err)
	require.Equal(t, 1, first.Captured)

	second, err := f.mat.CaptureInvoice(ctx, saleEvent())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Captured)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, "already captured", second.Lines[0].Reason)
	assert.Equal(t, *first.Lines[0].MovementID, *second.Lines[0].MovementID)
}

func TestCaptureInvoice_UntrackedAndUnknownSkipped(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := saleEvent()
	evt.Lines = []InvoiceLine{
		{LineNo: 1, ItemCode: "LUB-001", Quantity: decimal.NewFromInt(10)},
		{LineNo: 2, ItemCode: "NOPE-999", Quantity: decimal.NewFromInt(10)},
	}

	res, err := f.mat.CaptureInvoice(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Captured)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, f.ledger.movements)
}

func TestCaptureInvoice_TaxLineDrivesRate(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := saleEvent()
	evt.TaxLines = []InvoiceTaxLine{
		{Description: "TICPE GNR", Amount: types.MustMoney("4120")},
	}

	res, err := f.mat.CaptureInvoice(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, 1, res.Captured)

	mv, _ := f.ledger.GetByID(ctx, *res.Lines[0].MovementID)
	assert.Equal(t, entity.RateSourceDocument, mv.RateSource)
	assert.True(t, mv.Rate.Equal(types.MustMoney("4.12")), "got %s", mv.Rate)
}

func TestCaptureStockEntry_TransferInCubicMetres(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := &StockEntryEvent{
		DocType:         DocTypeStockEntry,
		DocID:           "STE-2026-007",
		Date:            time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		SourceWarehouse: "Dépôt Nord",
		TargetWarehouse: "Dépôt Sud",
		Lines: []StockEntryLine{
			{LineNo: 1, ItemCode: "GNR-001", Quantity: decimal.NewFromInt(5), Unit: "m3"},
		},
	}

	res, err := f.mat.CaptureStockEntry(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, 1, res.Captured)

	mv, _ := f.ledger.GetByID(ctx, *res.Lines[0].MovementID)
	assert.Equal(t, entity.MovementTransfer, mv.MovementType)
	assert.Equal(t, "5000.0000", mv.Quantity.String())
	assert.Nil(t, mv.CounterpartyID)
}

func TestCaptureStockEntry_DirectionFromPurpose(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := &StockEntryEvent{
		DocType: DocTypeStockEntry,
		DocID:   "STE-2026-008",
		Date:    time.Now(),
		Purpose: "Consommation interne chantier",
		Lines:   []StockEntryLine{{LineNo: 1, ItemCode: "GNR-001", Quantity: decimal.NewFromInt(200)}},
	}

	res, err := f.mat.CaptureStockEntry(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, 1, res.Captured)

	mv, _ := f.ledger.GetByID(ctx, *res.Lines[0].MovementID)
	assert.Equal(t, entity.MovementExit, mv.MovementType)
}

func TestCaptureStockEntry_UnknownDirectionSkips(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := &StockEntryEvent{
		DocType: DocTypeStockEntry,
		DocID:   "STE-2026-009",
		Date:    time.Now(),
		Lines:   []StockEntryLine{{LineNo: 1, ItemCode: "GNR-001", Quantity: decimal.NewFromInt(200)}},
	}

	res, err := f.mat.CaptureStockEntry(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.ledger.movements)
}

func TestCaptureInvoice_NonPositiveQuantitySkipped(t *testing.T) {
	f := setup()
	ctx := context.Background()

	evt := saleEvent()
	evt.Lines[0].Quantity = decimal.Zero

	res, err := f.mat.CaptureInvoice(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestCancelForSource(t *testing.T) {
	f := setup()
	ctx := context.Background()

	_, err := f.mat.CaptureInvoice(ctx, saleEvent())
	require.NoError(t, err)

	cancel := &CancelEvent{DocType: DocTypeSalesInvoice, DocID: "INV-2026-042"}
	changed, err := f.mat.CancelForSource(ctx, cancel)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	// re-cancellation is a no-op
	changed, err = f.mat.CancelForSource(ctx, cancel)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	// and the line can be captured again after cancellation
	res, err := f.mat.CaptureInvoice(ctx, saleEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Captured)
}

func TestCancelForSource_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()

	// movements are only reversible outside the closed period
	policy := security.NewStrictPolicy(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	ledgerSvc := tax.NewService(ledger, fakeTx{}, policy, nil)
	engine := rate.NewEngine(rate.NewConfigProvider(time.Minute, nil), nil)
	mat := NewMaterializer(&fakeItems{}, &fakeClients{}, uom.NewConverter(), engine, ledgerSvc)

	closed := entity.NewTaxMovement(id.New(), entity.MovementSale, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	closed.SourceDocType = DocTypeSalesInvoice
	closed.SourceDocID = "INV-2026-099"
	closed.SourceLineNo = 1
	closed.MarkSubmitted()
	require.NoError(t, ledger.Create(ctx, closed))

	open := entity.NewTaxMovement(id.New(), entity.MovementSale, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC))
	open.SourceDocType = DocTypeSalesInvoice
	open.SourceDocID = "INV-2026-099"
	open.SourceLineNo = 2
	open.MarkSubmitted()
	require.NoError(t, ledger.Create(ctx, open))

	changed, err := mat.CancelForSource(ctx, &CancelEvent{DocType: DocTypeSalesInvoice, DocID: "INV-2026-099"})
	require.Error(t, err, "the closed-period failure surfaces")
	assert.Equal(t, 1, changed, "the sibling outside the closed period is still reversed")

	stillThere, getErr := ledger.GetByID(ctx, closed.ID)
	require.NoError(t, getErr)
	assert.True(t, stillThere.IsSubmitted())
	reversed, getErr := ledger.GetByID(ctx, open.ID)
	require.NoError(t, getErr)
	assert.True(t, reversed.IsCancelled())
}

func TestCaptureInvoice_ZeroRateWhenNothingResolves(t *testing.T) {
	f := setup()
	ctx := context.Background()

	// tracked item whose texts match no category: every strategy fails
	misc := item.NewTrackedItem("MISC-001", "Produit divers", category.CategoryUnknown)
	f.items.byCode[misc.Code] = misc

	evt := saleEvent()
	evt.Lines = []InvoiceLine{{LineNo: 1, ItemCode: "MISC-001", Quantity: decimal.NewFromInt(100)}}

	res, err := f.mat.CaptureInvoice(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, 1, res.Captured)

	mv, _ := f.ledger.GetByID(ctx, *res.Lines[0].MovementID)
	assert.True(t, mv.Rate.IsZero())
	assert.Equal(t, entity.RateSourceNone, mv.RateSource)
	assert.True(t, mv.TaxAmount.IsZero())
}
