package transaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/storage"
	"github.com/jtarrant/folio/internal/txbuild"
	"github.com/jtarrant/folio/internal/valuation"
)

// --- Stubs ---

type stubBackend struct {
	failGroup    bool
	failStockLeg bool
	failCashLeg  int // fail the Nth cash leg (1-based), 0 means never

	groups    []models.TransactionGroup
	stockLegs []models.StockTransaction
	cashLegs  []models.CashTransaction
	deleted   []string
	legCounts map[string]int
}

func (b *stubBackend) CreateTransactionGroup(ctx context.Context, group *models.TransactionGroup) error {
	if b.failGroup {
		return fmt.Errorf("groups: insert denied")
	}
	b.groups = append(b.groups, *group)
	return nil
}

func (b *stubBackend) CreateStockTransaction(ctx context.Context, leg *models.StockTransaction) error {
	if b.failStockLeg {
		return fmt.Errorf("stock_transactions: insert denied")
	}
	b.stockLegs = append(b.stockLegs, *leg)
	return nil
}

func (b *stubBackend) CreateCashTransaction(ctx context.Context, leg *models.CashTransaction) error {
	if b.failCashLeg > 0 && len(b.cashLegs)+1 == b.failCashLeg {
		return fmt.Errorf("cash_transactions: insert denied")
	}
	b.cashLegs = append(b.cashLegs, *leg)
	return nil
}

func (b *stubBackend) DeleteTransactionGroup(ctx context.Context, groupID string) error {
	b.deleted = append(b.deleted, groupID)
	return nil
}

func (b *stubBackend) CountGroupLegs(ctx context.Context, groupID string) (int, error) {
	return b.legCounts[groupID], nil
}

func (b *stubBackend) GetSettings(ctx context.Context) (*models.PortfolioSettings, error) {
	return nil, nil
}
func (b *stubBackend) ListStocks(ctx context.Context) ([]models.Stock, error) { return nil, nil }
func (b *stubBackend) ListCashAccounts(ctx context.Context) ([]models.CashAccount, error) {
	return nil, nil
}
func (b *stubBackend) ListTransactionGroups(ctx context.Context) ([]models.TransactionGroup, error) {
	return nil, nil
}
func (b *stubBackend) ListCashTransactions(ctx context.Context) ([]models.CashTransaction, error) {
	return nil, nil
}
func (b *stubBackend) ListStockTransactions(ctx context.Context) ([]models.StockTransaction, error) {
	return nil, nil
}
func (b *stubBackend) ListPositions(ctx context.Context) ([]models.Position, error) { return nil, nil }
func (b *stubBackend) ListCurrencyRates(ctx context.Context) ([]models.CurrencyRate, error) {
	return nil, nil
}
func (b *stubBackend) ListPricePoints(ctx context.Context, stockID string) ([]models.PricePoint, error) {
	return nil, nil
}
func (b *stubBackend) ListSnapshots(ctx context.Context, opts interfaces.SnapshotQuery) ([]models.PortfolioSnapshot, error) {
	return nil, nil
}
func (b *stubBackend) SetSession(session *models.Session) {}

var _ interfaces.BackendClient = (*stubBackend)(nil)

type stubPortfolio struct {
	state *models.PortfolioState
}

func (p *stubPortfolio) Refresh(ctx context.Context) (*models.PortfolioState, error) {
	return p.state, nil
}
func (p *stubPortfolio) State(ctx context.Context) (*models.PortfolioState, error) {
	if p.state == nil {
		return nil, fmt.Errorf("no portfolio data available")
	}
	return p.state, nil
}
func (p *stubPortfolio) Summary(ctx context.Context) (*valuation.Summary, error)  { return nil, nil }
func (p *stubPortfolio) Risk(ctx context.Context) (*valuation.RiskMetrics, error) { return nil, nil }
func (p *stubPortfolio) SnapshotHistory(ctx context.Context, since time.Time) ([]models.PortfolioSnapshot, error) {
	return nil, nil
}

var _ interfaces.PortfolioService = (*stubPortfolio)(nil)

// --- Helpers ---

func testState() *models.PortfolioState {
	return &models.PortfolioState{
		Settings: &models.PortfolioSettings{BaseCurrency: "USD"},
		Rates: []models.CurrencyRate{
			{FromCurrency: "HKD", ToCurrency: "USD", Rate: decimal.NewFromFloat(0.128), AsOfDate: time.Now()},
		},
	}
}

func newTestService(t *testing.T, backend *stubBackend) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := common.NewLogger("error")
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "folio")

	mgr, err := storage.NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	return NewService(backend, mgr, &stubPortfolio{state: testState()}, logger), mgr
}

func usdAccount() *models.CashAccount {
	return &models.CashAccount{ID: "a1", Name: "Checking", Currency: "USD"}
}

func buyInput() txbuild.Input {
	return txbuild.Input{
		Kind:       txbuild.KindStockBuy,
		UserID:     "user-1",
		Account:    usdAccount(),
		Stock:      &models.Stock{ID: "st1", Symbol: "AAPL", Currency: "USD"},
		Shares:     "10",
		Price:      "150",
		Fees:       "5",
		OccurredAt: time.Now(),
	}
}

// --- Record tests ---

func TestRecord_SubmitsInDependencyOrder(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{}
	svc, mgr := newTestService(t, backend)

	payload, err := svc.Record(ctx, buyInput())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(backend.groups) != 1 || len(backend.stockLegs) != 1 || len(backend.cashLegs) != 1 {
		t.Fatalf("rows submitted = %d/%d/%d, want 1 group, 1 stock leg, 1 cash leg",
			len(backend.groups), len(backend.stockLegs), len(backend.cashLegs))
	}
	if backend.stockLegs[0].GroupID != payload.Group.ID {
		t.Errorf("stock leg group = %q, want %q", backend.stockLegs[0].GroupID, payload.Group.ID)
	}
	if backend.cashLegs[0].StockTxID != backend.stockLegs[0].ID {
		t.Errorf("cash leg not linked to stock leg")
	}

	// Marker cleared on success.
	pending, err := mgr.Cache().PendingGroups(ctx)
	if err != nil {
		t.Fatalf("PendingGroups failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending markers = %v, want none after success", pending)
	}
}

func TestRecord_GroupFailureLeavesNoMarker(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{failGroup: true}
	svc, mgr := newTestService(t, backend)

	_, err := svc.Record(ctx, buyInput())
	if err == nil {
		t.Fatal("Record should fail when the group insert fails")
	}
	var orphan *OrphanedGroupError
	if errors.As(err, &orphan) {
		t.Error("group insert failure should not be an orphan: no group row landed")
	}

	pending, _ := mgr.Cache().PendingGroups(ctx)
	if len(pending) != 0 {
		t.Errorf("pending markers = %v, want none when the group never landed", pending)
	}
}

func TestRecord_LegFailureReportsOrphan(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{failStockLeg: true}
	svc, mgr := newTestService(t, backend)

	_, err := svc.Record(ctx, buyInput())
	if err == nil {
		t.Fatal("Record should fail when a leg insert fails")
	}

	var orphan *OrphanedGroupError
	if !errors.As(err, &orphan) {
		t.Fatalf("error = %v, want *OrphanedGroupError", err)
	}
	if orphan.GroupID == "" {
		t.Error("orphan error missing group id")
	}
	if orphan.Unwrap() == nil {
		t.Error("orphan error should carry the underlying cause")
	}

	// Marker survives for reconciliation.
	pending, _ := mgr.Cache().PendingGroups(ctx)
	if len(pending) != 1 || pending[0] != orphan.GroupID {
		t.Errorf("pending markers = %v, want [%s]", pending, orphan.GroupID)
	}
}

func TestRecord_ValidationErrorSubmitsNothing(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{}
	svc, _ := newTestService(t, backend)

	in := buyInput()
	in.Shares = "0"
	_, err := svc.Record(ctx, in)
	if err == nil {
		t.Fatal("Record should reject zero shares")
	}
	var vErr *txbuild.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *txbuild.ValidationError", err)
	}
	if len(backend.groups) != 0 {
		t.Error("nothing should be submitted on validation failure")
	}
}

// --- Reconciliation tests ---

func TestReconcileOrphans_DeletesLeglessGroups(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{legCounts: map[string]int{"g-empty": 0, "g-full": 3}}
	svc, mgr := newTestService(t, backend)

	if err := mgr.Cache().MarkPendingGroup(ctx, "g-empty"); err != nil {
		t.Fatalf("MarkPendingGroup failed: %v", err)
	}
	if err := mgr.Cache().MarkPendingGroup(ctx, "g-full"); err != nil {
		t.Fatalf("MarkPendingGroup failed: %v", err)
	}

	removed, err := svc.ReconcileOrphans(ctx)
	if err != nil {
		t.Fatalf("ReconcileOrphans failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != "g-empty" {
		t.Errorf("deleted = %v, want [g-empty]", backend.deleted)
	}

	// Both markers cleared: the legless group was deleted, the group with
	// legs is not an orphan.
	pending, _ := mgr.Cache().PendingGroups(ctx)
	if len(pending) != 0 {
		t.Errorf("pending markers = %v, want none after reconciliation", pending)
	}
}

func TestReconcileOrphans_NothingPending(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &stubBackend{})

	removed, err := svc.ReconcileOrphans(ctx)
	if err != nil {
		t.Fatalf("ReconcileOrphans failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
