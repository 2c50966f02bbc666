package interfaces

import (
	"context"
	"time"

	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/txbuild"
	"github.com/jtarrant/folio/internal/valuation"
)

// PortfolioService fetches, caches, and aggregates portfolio state.
type PortfolioService interface {
	// Refresh fetches settings, accounts, positions, transactions, and
	// rates in parallel, applies them as one unit, and writes through to
	// the local cache. A failure of any fetch fails the whole batch.
	Refresh(ctx context.Context) (*models.PortfolioState, error)

	// State returns the most recently applied state, falling back to the
	// local cache when nothing has been fetched this session.
	State(ctx context.Context) (*models.PortfolioState, error)

	// Summary computes headline metrics from the current state and the
	// previous snapshot.
	Summary(ctx context.Context) (*valuation.Summary, error)

	// Risk computes NAV-series risk metrics over the snapshot history.
	Risk(ctx context.Context) (*valuation.RiskMetrics, error)

	// SnapshotHistory pages backend snapshots until since (exclusive),
	// an empty or short page, or the page cap.
	SnapshotHistory(ctx context.Context, since time.Time) ([]models.PortfolioSnapshot, error)
}

// TransactionService validates, constructs, and submits ledger rows.
type TransactionService interface {
	// Record builds the rows for one typed entry and submits them in
	// sequence: group first, then legs referencing it.
	Record(ctx context.Context, in txbuild.Input) (*txbuild.Payload, error)

	// ReconcileOrphans deletes groups whose submission failed mid-sequence
	// and that have no surviving legs server-side. Returns the number of
	// groups removed.
	ReconcileOrphans(ctx context.Context) (int, error)
}

// LocalBookService maintains the legacy local (non-cloud) holdings book.
type LocalBookService interface {
	AddTransaction(ctx context.Context, tx models.LocalTransaction) error
	DeleteTransaction(ctx context.Context, id string) error
	Holdings(ctx context.Context) ([]*models.LocalHolding, error)
	Transactions(ctx context.Context) ([]models.LocalTransaction, error)
}
