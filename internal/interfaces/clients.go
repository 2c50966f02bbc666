// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"time"

	"github.com/jtarrant/folio/internal/models"
)

// AuthClient talks to the backend's auth service.
type AuthClient interface {
	// SignIn performs a password-grant sign-in and returns the session.
	SignIn(ctx context.Context, email, password string) (*models.Session, error)

	// SignUp registers a new user and returns the resulting session.
	SignUp(ctx context.Context, email, password string) (*models.Session, error)

	// Introspect validates the session's access token against the auth
	// service and returns the authenticated user id.
	Introspect(ctx context.Context, session *models.Session) (string, error)
}

// BackendClient reads and writes the backend's REST resource collections.
// All calls attach the caller's bearer token plus the static API key header.
type BackendClient interface {
	// Reads
	ListStocks(ctx context.Context) ([]models.Stock, error)
	ListCashAccounts(ctx context.Context) ([]models.CashAccount, error)
	ListTransactionGroups(ctx context.Context) ([]models.TransactionGroup, error)
	ListCashTransactions(ctx context.Context) ([]models.CashTransaction, error)
	ListStockTransactions(ctx context.Context) ([]models.StockTransaction, error)
	ListPositions(ctx context.Context) ([]models.Position, error)
	ListCurrencyRates(ctx context.Context) ([]models.CurrencyRate, error)
	ListPricePoints(ctx context.Context, stockID string) ([]models.PricePoint, error)
	GetSettings(ctx context.Context) (*models.PortfolioSettings, error)

	// ListSnapshots returns one page of snapshots in descending date order.
	ListSnapshots(ctx context.Context, opts SnapshotQuery) ([]models.PortfolioSnapshot, error)

	// Writes (creation only: ledger rows are never mutated by the client)
	CreateTransactionGroup(ctx context.Context, group *models.TransactionGroup) error
	CreateCashTransaction(ctx context.Context, leg *models.CashTransaction) error
	CreateStockTransaction(ctx context.Context, leg *models.StockTransaction) error

	// DeleteTransactionGroup removes an orphaned group during reconciliation.
	DeleteTransactionGroup(ctx context.Context, groupID string) error

	// CountGroupLegs returns how many cash and stock legs reference a group.
	CountGroupLegs(ctx context.Context, groupID string) (int, error)

	// SetSession installs the bearer credentials used on subsequent calls.
	SetSession(session *models.Session)
}

// SnapshotQuery configures one page of the snapshot history fetch.
type SnapshotQuery struct {
	Limit  int
	Offset int
	Since  time.Time // zero means no lower bound
}
