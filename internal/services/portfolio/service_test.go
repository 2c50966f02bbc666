package portfolio

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/storage"
)

// --- Stub backend ---

type stubBackend struct {
	settings  *models.PortfolioSettings
	accounts  []models.CashAccount
	stocks    []models.Stock
	positions []models.Position
	groups    []models.TransactionGroup
	cashLegs  []models.CashTransaction
	stockLegs []models.StockTransaction
	rates     []models.CurrencyRate
	snapshots []models.PortfolioSnapshot // descending date order

	failCollection string // collection name whose fetch fails
	failSnapshots  bool
	endlessPages   bool // ListSnapshots always returns a full page

	settingsGate  chan struct{} // first GetSettings call blocks on this
	settingsCalls atomic.Int32
	snapshotCalls atomic.Int32
}

func (b *stubBackend) fail(name string) error {
	if b.failCollection == name {
		return fmt.Errorf("%s: connection refused", name)
	}
	return nil
}

func (b *stubBackend) GetSettings(ctx context.Context) (*models.PortfolioSettings, error) {
	if b.settingsGate != nil && b.settingsCalls.Add(1) == 1 {
		<-b.settingsGate
	}
	return b.settings, b.fail("settings")
}

func (b *stubBackend) ListCashAccounts(ctx context.Context) ([]models.CashAccount, error) {
	return b.accounts, b.fail("accounts")
}

func (b *stubBackend) ListStocks(ctx context.Context) ([]models.Stock, error) {
	return b.stocks, b.fail("stocks")
}

func (b *stubBackend) ListPositions(ctx context.Context) ([]models.Position, error) {
	return b.positions, b.fail("positions")
}

func (b *stubBackend) ListTransactionGroups(ctx context.Context) ([]models.TransactionGroup, error) {
	return b.groups, b.fail("groups")
}

func (b *stubBackend) ListCashTransactions(ctx context.Context) ([]models.CashTransaction, error) {
	return b.cashLegs, b.fail("cash_transactions")
}

func (b *stubBackend) ListStockTransactions(ctx context.Context) ([]models.StockTransaction, error) {
	return b.stockLegs, b.fail("stock_transactions")
}

func (b *stubBackend) ListCurrencyRates(ctx context.Context) ([]models.CurrencyRate, error) {
	return b.rates, b.fail("rates")
}

func (b *stubBackend) ListPricePoints(ctx context.Context, stockID string) ([]models.PricePoint, error) {
	return nil, nil
}

func (b *stubBackend) ListSnapshots(ctx context.Context, opts interfaces.SnapshotQuery) ([]models.PortfolioSnapshot, error) {
	b.snapshotCalls.Add(1)
	if b.failSnapshots {
		return nil, fmt.Errorf("snapshots: connection refused")
	}
	if b.endlessPages {
		page := make([]models.PortfolioSnapshot, opts.Limit)
		for i := range page {
			page[i] = models.PortfolioSnapshot{ID: fmt.Sprintf("s%d", opts.Offset+i)}
		}
		return page, nil
	}
	if opts.Offset >= len(b.snapshots) {
		return nil, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(b.snapshots) {
		end = len(b.snapshots)
	}
	return b.snapshots[opts.Offset:end], nil
}

func (b *stubBackend) CreateTransactionGroup(ctx context.Context, group *models.TransactionGroup) error {
	return nil
}

func (b *stubBackend) CreateCashTransaction(ctx context.Context, leg *models.CashTransaction) error {
	return nil
}

func (b *stubBackend) CreateStockTransaction(ctx context.Context, leg *models.StockTransaction) error {
	return nil
}

func (b *stubBackend) DeleteTransactionGroup(ctx context.Context, groupID string) error { return nil }

func (b *stubBackend) CountGroupLegs(ctx context.Context, groupID string) (int, error) { return 0, nil }

func (b *stubBackend) SetSession(session *models.Session) {}

var _ interfaces.BackendClient = (*stubBackend)(nil)

// --- Test helpers ---

func newTestService(t *testing.T, backend *stubBackend) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := common.NewLogger("error")
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "folio")
	cfg.Sync.SnapshotPageSize = 2
	cfg.Sync.MaxSnapshotPages = 3

	mgr, err := storage.NewManager(logger, cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	return NewService(backend, mgr, cfg, logger), mgr
}

func dayAgo(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}

// --- Refresh tests ---

func TestRefresh_AppliesAllCollections(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		settings:  &models.PortfolioSettings{BaseCurrency: "USD", RiskFreeRate: 2.0},
		accounts:  []models.CashAccount{{ID: "a1", Currency: "USD"}},
		positions: []models.Position{{ID: "p1", Symbol: "AAPL"}},
		rates:     []models.CurrencyRate{{FromCurrency: "HKD", ToCurrency: "USD", Rate: decimal.NewFromFloat(0.128)}},
	}
	svc, _ := newTestService(t, backend)

	state, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if state.Generation != 1 {
		t.Errorf("Generation = %d, want 1", state.Generation)
	}
	if len(state.Accounts) != 1 || len(state.Positions) != 1 || len(state.Rates) != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.BaseCurrency() != "USD" {
		t.Errorf("BaseCurrency = %q, want USD", state.BaseCurrency())
	}
	if state.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestRefresh_OneFailureFailsBatch(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		settings:       &models.PortfolioSettings{BaseCurrency: "USD"},
		accounts:       []models.CashAccount{{ID: "a1"}},
		failCollection: "rates",
	}
	svc, _ := newTestService(t, backend)

	if _, err := svc.Refresh(ctx); err == nil {
		t.Fatal("Refresh should fail when one fetch fails")
	}

	// Nothing applied, nothing cached.
	if _, err := svc.State(ctx); err == nil {
		t.Error("State should have no data after a failed refresh")
	}
}

func TestState_FallsBackToCache(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		settings: &models.PortfolioSettings{BaseCurrency: "EUR"},
		accounts: []models.CashAccount{{ID: "a1"}},
	}
	svc, mgr := newTestService(t, backend)

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// A fresh service over the same storage sees the cached state without
	// touching the backend.
	offline := NewService(&stubBackend{failCollection: "settings"}, mgr, common.NewDefaultConfig(), common.NewLogger("error"))
	state, err := offline.State(ctx)
	if err != nil {
		t.Fatalf("State from cache failed: %v", err)
	}
	if state.BaseCurrency() != "EUR" {
		t.Errorf("BaseCurrency = %q from cache, want EUR", state.BaseCurrency())
	}
}

func TestRefresh_StaleCompletionDiscarded(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	backend := &stubBackend{
		settings:     &models.PortfolioSettings{BaseCurrency: "USD"},
		settingsGate: gate,
	}
	svc, _ := newTestService(t, backend)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstState *models.PortfolioState
	go func() {
		defer wg.Done()
		firstState, _ = svc.Refresh(ctx) // generation 1, blocked on the gate
	}()

	// Wait until the first refresh is actually holding the gate.
	for backend.settingsCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second, err := svc.Refresh(ctx) // generation 2, completes first
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if second.Generation != 2 {
		t.Fatalf("second Generation = %d, want 2", second.Generation)
	}

	close(gate)
	wg.Wait()

	// The late generation-1 completion must not clobber generation 2.
	if firstState.Generation != 2 {
		t.Errorf("stale refresh returned generation %d, want the applied generation 2", firstState.Generation)
	}
	current, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if current.Generation != 2 {
		t.Errorf("applied generation = %d, want 2", current.Generation)
	}
}

// --- Snapshot history tests ---

func TestSnapshotHistory_PagesUntilShortPage(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		snapshots: []models.PortfolioSnapshot{
			{ID: "s1", SnapshotDate: dayAgo(1)},
			{ID: "s2", SnapshotDate: dayAgo(2)},
			{ID: "s3", SnapshotDate: dayAgo(3)},
		},
	}
	svc, _ := newTestService(t, backend) // page size 2

	got, err := svc.SnapshotHistory(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SnapshotHistory failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d snapshots, want 3", len(got))
	}
	if calls := backend.snapshotCalls.Load(); calls != 2 {
		t.Errorf("snapshot fetches = %d, want 2 (full page then short page)", calls)
	}
}

func TestSnapshotHistory_BoundedByPageCap(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{endlessPages: true}
	svc, _ := newTestService(t, backend) // page size 2, max 3 pages

	got, err := svc.SnapshotHistory(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SnapshotHistory failed: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("got %d snapshots, want 6 (page cap of 3 x page size 2)", len(got))
	}
}

func TestSnapshotHistory_StopsAtSince(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		snapshots: []models.PortfolioSnapshot{
			{ID: "s1", SnapshotDate: dayAgo(1)},
			{ID: "s2", SnapshotDate: dayAgo(2)},
			{ID: "s3", SnapshotDate: dayAgo(10)},
			{ID: "s4", SnapshotDate: dayAgo(11)},
		},
	}
	svc, _ := newTestService(t, backend)

	got, err := svc.SnapshotHistory(ctx, dayAgo(5))
	if err != nil {
		t.Fatalf("SnapshotHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2 (s3, s4 are older than since)", len(got))
	}
	if got[0].ID != "s1" || got[1].ID != "s2" {
		t.Errorf("unexpected snapshots: %+v", got)
	}
}

func TestSnapshotHistory_FallsBackToCache(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		snapshots: []models.PortfolioSnapshot{{ID: "s1", SnapshotDate: dayAgo(1)}},
	}
	svc, mgr := newTestService(t, backend)

	if _, err := svc.SnapshotHistory(ctx, time.Time{}); err != nil {
		t.Fatalf("SnapshotHistory failed: %v", err)
	}

	cfg := common.NewDefaultConfig()
	offline := NewService(&stubBackend{failSnapshots: true}, mgr, cfg, common.NewLogger("error"))
	got, err := offline.SnapshotHistory(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SnapshotHistory from cache failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("unexpected cached snapshots: %+v", got)
	}
}

// --- Summary and risk tests ---

func TestSummary_DayChangeAgainstPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	today := time.Now()
	backend := &stubBackend{
		settings: &models.PortfolioSettings{BaseCurrency: "USD"},
		accounts: []models.CashAccount{{ID: "a1", Currency: "USD"}},
		positions: []models.Position{
			{ID: "p1", Symbol: "AAPL", TotalCostBase: decimal.NewFromInt(5300)},
		},
		cashLegs: []models.CashTransaction{
			{ID: "c1", AccountID: "a1", LegType: models.CashLegDeposit, Direction: models.DirectionInflow, BaseAmount: decimal.NewFromInt(5000), OccurredAt: dayAgo(30)},
			{ID: "c2", AccountID: "a1", LegType: models.CashLegDeposit, Direction: models.DirectionInflow, BaseAmount: decimal.NewFromInt(500), OccurredAt: today},
		},
		snapshots: []models.PortfolioSnapshot{
			{ID: "s1", SnapshotDate: dayAgo(1), TotalValue: decimal.NewFromInt(10000)},
		},
	}
	svc, _ := newTestService(t, backend)

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if !summary.CurrentTotal.Equal(decimal.NewFromInt(10800)) {
		t.Errorf("CurrentTotal = %s, want 10800", summary.CurrentTotal)
	}
	if !summary.TodayCashFlow.Equal(decimal.NewFromInt(500)) {
		t.Errorf("TodayCashFlow = %s, want 500", summary.TodayCashFlow)
	}
	if !summary.TodayChangeValue.Equal(decimal.NewFromInt(300)) {
		t.Errorf("TodayChangeValue = %s, want 300 (10800 - (10000+500))", summary.TodayChangeValue)
	}
	wantPct := 300.0 / 10500.0
	if got := summary.TodayChangePercent.InexactFloat64(); math.Abs(got-wantPct) > 1e-9 {
		t.Errorf("TodayChangePercent = %v, want %v", got, wantPct)
	}
}

func TestRisk_UsesSettingsRiskFreeRate(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{
		settings: &models.PortfolioSettings{BaseCurrency: "USD", RiskFreeRate: 3.5},
		snapshots: []models.PortfolioSnapshot{
			{ID: "s1", SnapshotDate: dayAgo(1), NAVPerShare: decimal.NewFromFloat(1.04)},
			{ID: "s2", SnapshotDate: dayAgo(2), NAVPerShare: decimal.NewFromFloat(1.01)},
			{ID: "s3", SnapshotDate: dayAgo(3), NAVPerShare: decimal.NewFromFloat(1.00)},
		},
	}
	svc, _ := newTestService(t, backend)

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	metrics, err := svc.Risk(ctx)
	if err != nil {
		t.Fatalf("Risk failed: %v", err)
	}
	if metrics.DataPoints != 3 {
		t.Errorf("DataPoints = %d, want 3", metrics.DataPoints)
	}
	if metrics.AnnualizedVolatility <= 0 {
		t.Errorf("AnnualizedVolatility = %v, want > 0", metrics.AnnualizedVolatility)
	}
}
