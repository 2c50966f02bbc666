// Package portfolio fetches backend portfolio state, caches it locally, and
// aggregates it into summary and risk metrics.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/valuation"
)

// Compile-time interface check
var _ interfaces.PortfolioService = (*Service)(nil)

// Cache keys for portfolio data.
const (
	cacheKeyState     = "portfolio_state"
	cacheKeySnapshots = "portfolio_snapshots"
)

// Service implements PortfolioService
type Service struct {
	backend interfaces.BackendClient
	storage interfaces.StorageManager
	config  *common.Config
	logger  *common.Logger

	mu         sync.Mutex
	state      *models.PortfolioState
	generation uint64 // last generation handed to a refresh
	applied    uint64 // generation of the currently applied state
}

// NewService creates a new portfolio service
func NewService(backend interfaces.BackendClient, storage interfaces.StorageManager, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		backend: backend,
		storage: storage,
		config:  config,
		logger:  logger,
	}
}

// Refresh fetches all portfolio collections in parallel and applies them as
// one batch. Any single fetch failure fails the whole batch; a partially
// fetched batch is never applied or cached. Completions racing a newer
// refresh are discarded.
func (s *Service) Refresh(ctx context.Context) (*models.PortfolioState, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	state := &models.PortfolioState{Generation: gen}

	fetches := []struct {
		name string
		fn   func() error
	}{
		{"settings", func() error {
			settings, err := s.backend.GetSettings(ctx)
			state.Settings = settings
			return err
		}},
		{"accounts", func() error {
			accounts, err := s.backend.ListCashAccounts(ctx)
			state.Accounts = accounts
			return err
		}},
		{"stocks", func() error {
			stocks, err := s.backend.ListStocks(ctx)
			state.Stocks = stocks
			return err
		}},
		{"positions", func() error {
			positions, err := s.backend.ListPositions(ctx)
			state.Positions = positions
			return err
		}},
		{"groups", func() error {
			groups, err := s.backend.ListTransactionGroups(ctx)
			state.Groups = groups
			return err
		}},
		{"cash_transactions", func() error {
			legs, err := s.backend.ListCashTransactions(ctx)
			state.CashTransactions = legs
			return err
		}},
		{"stock_transactions", func() error {
			legs, err := s.backend.ListStockTransactions(ctx)
			state.StockTransactions = legs
			return err
		}},
		{"rates", func() error {
			rates, err := s.backend.ListCurrencyRates(ctx)
			state.Rates = rates
			return err
		}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(fetches))
	for i, f := range fetches {
		wg.Add(1)
		go func(i int, name string, fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errs[i] = fmt.Errorf("fetch %s: %w", name, err)
			}
		}(i, f.name, f.fn)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.logger.Warn().Err(err).Uint64("generation", gen).Msg("Portfolio refresh failed")
			return nil, fmt.Errorf("portfolio refresh failed: %w", err)
		}
	}
	state.FetchedAt = time.Now()

	s.mu.Lock()
	if gen <= s.applied {
		// A newer refresh already landed; this batch is stale.
		current := s.state
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("Discarding stale refresh completion")
		return current, nil
	}
	s.applied = gen
	s.state = state
	s.mu.Unlock()

	if err := s.storage.Cache().Put(ctx, cacheKeyState, state); err != nil {
		// Cache write-through is best effort; the in-memory state is applied.
		s.logger.Warn().Err(err).Msg("Failed to cache portfolio state")
	}

	s.logger.Info().
		Uint64("generation", gen).
		Int("accounts", len(state.Accounts)).
		Int("positions", len(state.Positions)).
		Int("cash_legs", len(state.CashTransactions)).
		Msg("Portfolio state refreshed")

	return state, nil
}

// State returns the currently applied state, falling back to the offline
// cache when nothing has been fetched this session.
func (s *Service) State(ctx context.Context) (*models.PortfolioState, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != nil {
		return state, nil
	}

	var cached models.PortfolioState
	if err := s.storage.Cache().Get(ctx, cacheKeyState, &cached); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("no portfolio data available: sign in and refresh first")
		}
		return nil, fmt.Errorf("failed to load cached portfolio state: %w", err)
	}

	if updated, err := s.storage.Cache().LastUpdated(ctx, cacheKeyState); err == nil {
		if !common.IsFresh(updated, common.FreshnessStale) {
			s.logger.Warn().Time("last_updated", updated).Msg("Offline portfolio data is stale")
		}
	}

	s.mu.Lock()
	if s.state == nil {
		s.state = &cached
	}
	state = s.state
	s.mu.Unlock()
	return state, nil
}

// Summary computes headline metrics from the current state and the previous
// snapshot.
func (s *Service) Summary(ctx context.Context) (*valuation.Summary, error) {
	state, err := s.State(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := s.previousSnapshot(ctx, time.Now())
	if err != nil {
		// Day-change figures simply stay zero without a baseline.
		s.logger.Debug().Err(err).Msg("No previous snapshot for day-change baseline")
	}

	return valuation.Compute(
		state.Positions,
		state.Accounts,
		state.CashTransactions,
		previous,
		state.BaseCurrency(),
		time.Now(),
	), nil
}

// Risk computes NAV-series risk metrics over the snapshot history.
func (s *Service) Risk(ctx context.Context) (*valuation.RiskMetrics, error) {
	snapshots, err := s.SnapshotHistory(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	return valuation.ComputeRisk(snapshots, s.riskFreeRate(ctx)), nil
}

// SnapshotHistory pages backend snapshots newest-first until since
// (exclusive), an empty or short page, or the page cap. Paging is bounded so
// a pathological history cannot pin the client in a fetch loop. Falls back
// to the cached history when the first page fetch fails.
func (s *Service) SnapshotHistory(ctx context.Context, since time.Time) ([]models.PortfolioSnapshot, error) {
	pageSize := s.config.Sync.SnapshotPageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	maxPages := s.config.Sync.MaxSnapshotPages
	if maxPages <= 0 {
		maxPages = 20
	}

	var all []models.PortfolioSnapshot
	for page := 0; page < maxPages; page++ {
		batch, err := s.backend.ListSnapshots(ctx, interfaces.SnapshotQuery{
			Limit:  pageSize,
			Offset: page * pageSize,
			Since:  since,
		})
		if err != nil {
			if page == 0 {
				return s.cachedSnapshots(ctx, err)
			}
			return nil, fmt.Errorf("failed to page snapshots: %w", err)
		}

		done := false
		for i := range batch {
			if !since.IsZero() && !batch[i].SnapshotDate.After(since) {
				// Descending order: everything from here on is too old.
				batch = batch[:i]
				done = true
				break
			}
		}
		all = append(all, batch...)

		if done || len(batch) < pageSize {
			break
		}
	}

	if err := s.storage.Cache().Put(ctx, cacheKeySnapshots, all); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache snapshot history")
	}
	return all, nil
}

// cachedSnapshots serves the offline snapshot history after a failed fetch.
func (s *Service) cachedSnapshots(ctx context.Context, fetchErr error) ([]models.PortfolioSnapshot, error) {
	var cached []models.PortfolioSnapshot
	if err := s.storage.Cache().Get(ctx, cacheKeySnapshots, &cached); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("failed to fetch snapshots and no cached history: %w", fetchErr)
		}
		return nil, fmt.Errorf("failed to load cached snapshots: %w", err)
	}
	s.logger.Warn().Err(fetchErr).Int("count", len(cached)).Msg("Serving cached snapshot history")
	return cached, nil
}

// previousSnapshot returns the most recent snapshot strictly before today.
func (s *Service) previousSnapshot(ctx context.Context, now time.Time) (*models.PortfolioSnapshot, error) {
	snapshots, err := s.SnapshotHistory(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var best *models.PortfolioSnapshot
	for i := range snapshots {
		snap := &snapshots[i]
		if !snap.SnapshotDate.Before(today) {
			continue
		}
		if best == nil || snap.SnapshotDate.After(best.SnapshotDate) {
			best = snap
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no snapshot before %s", today.Format("2006-01-02"))
	}
	return best, nil
}

// riskFreeRate resolves the annual risk-free rate from backend settings,
// falling back to the configured default.
func (s *Service) riskFreeRate(ctx context.Context) float64 {
	if state, err := s.State(ctx); err == nil {
		if state.Settings != nil && state.Settings.RiskFreeRate > 0 {
			return state.Settings.RiskFreeRate
		}
	}
	return s.config.Portfolio.RiskFreeRate
}
