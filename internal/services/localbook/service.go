// Package localbook maintains the legacy local holdings book: transactions
// recorded on the device only, with holdings derived by deterministic replay.
package localbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/ledger"
	"github.com/jtarrant/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.LocalBookService = (*Service)(nil)

const cacheKeyTransactions = "local_transactions"

// Service implements LocalBookService
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewService creates a new local book service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// AddTransaction validates and persists one local transaction. Holdings are
// not stored; they are replayed from the transaction log on read, so adding
// and deleting stay trivially consistent.
func (s *Service) AddTransaction(ctx context.Context, tx models.LocalTransaction) error {
	if err := validate(&tx); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	txs, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range txs {
		if txs[i].ID == tx.ID {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
	}
	txs = append(txs, tx)

	if err := s.storage.Cache().Put(ctx, cacheKeyTransactions, txs); err != nil {
		return fmt.Errorf("failed to persist local transactions: %w", err)
	}

	s.logger.Debug().
		Str("id", tx.ID).
		Str("symbol", tx.Symbol).
		Str("type", string(tx.Type)).
		Msg("Local transaction added")
	return nil
}

// DeleteTransaction removes a transaction from the log. Holdings derived from
// the remaining log are identical to a log that never contained it.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	txs, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := txs[:0]
	found := false
	for i := range txs {
		if txs[i].ID == id {
			found = true
			continue
		}
		kept = append(kept, txs[i])
	}
	if !found {
		return fmt.Errorf("transaction %s not found", id)
	}

	if err := s.storage.Cache().Put(ctx, cacheKeyTransactions, kept); err != nil {
		return fmt.Errorf("failed to persist local transactions: %w", err)
	}

	s.logger.Debug().Str("id", id).Msg("Local transaction deleted")
	return nil
}

// Holdings replays the transaction log and returns the derived holdings in
// symbol order.
func (s *Service) Holdings(ctx context.Context) ([]*models.LocalHolding, error) {
	txs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Rebuild(txs).Holdings(), nil
}

// Transactions returns the raw local transaction log.
func (s *Service) Transactions(ctx context.Context) ([]models.LocalTransaction, error) {
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) ([]models.LocalTransaction, error) {
	var txs []models.LocalTransaction
	if err := s.storage.Cache().Get(ctx, cacheKeyTransactions, &txs); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load local transactions: %w", err)
	}
	return txs, nil
}

func validate(tx *models.LocalTransaction) error {
	if strings.TrimSpace(tx.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if tx.TickerID == "" {
		tx.TickerID = strings.ToUpper(strings.TrimSpace(tx.Symbol))
	}
	if !models.ValidTradeType(tx.Type) {
		return fmt.Errorf("invalid transaction type %q; must be buy, sell, or dividend", tx.Type)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if tx.Date.After(time.Now().Add(24 * time.Hour)) {
		return fmt.Errorf("date cannot be in the future")
	}
	if tx.Type != models.TradeDividend && !tx.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if tx.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if tx.Fees.IsNegative() {
		return fmt.Errorf("fees must not be negative")
	}
	return nil
}
