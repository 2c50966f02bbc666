// Package transaction builds and submits ledger rows to the backend and
// repairs groups left behind by interrupted submissions.
package transaction

import (
	"context"
	"fmt"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/fx"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/txbuild"
)

// Compile-time interface check
var _ interfaces.TransactionService = (*Service)(nil)

// OrphanedGroupError reports a submission that failed after its group row was
// created, leaving a group with missing legs on the backend. The group is
// marked locally and removed by the next reconciliation pass.
type OrphanedGroupError struct {
	GroupID string
	Err     error
}

func (e *OrphanedGroupError) Error() string {
	return fmt.Sprintf("transaction group %s left incomplete: %v", e.GroupID, e.Err)
}

func (e *OrphanedGroupError) Unwrap() error {
	return e.Err
}

// Service implements TransactionService
type Service struct {
	backend   interfaces.BackendClient
	storage   interfaces.StorageManager
	portfolio interfaces.PortfolioService
	logger    *common.Logger
	policy    txbuild.Policy
}

// NewService creates a new transaction service
func NewService(backend interfaces.BackendClient, storage interfaces.StorageManager, portfolio interfaces.PortfolioService, logger *common.Logger) *Service {
	return &Service{
		backend:   backend,
		storage:   storage,
		portfolio: portfolio,
		logger:    logger,
		policy:    txbuild.DefaultPolicy(),
	}
}

// Record builds the rows for one typed entry and submits them in sequence:
// group first, then the stock leg, then cash legs referencing both. The
// backend has no multi-row transactions, so a pending marker brackets the
// sequence; a marker that survives a crash or mid-sequence failure flags the
// group for reconciliation.
func (s *Service) Record(ctx context.Context, in txbuild.Input) (*txbuild.Payload, error) {
	state, err := s.portfolio.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot record without portfolio state: %w", err)
	}

	rates := fx.ResolveToBase(state.Rates, state.BaseCurrency())

	payload, err := txbuild.NewBuilder(rates, txbuild.WithPolicy(s.policy)).Build(in)
	if err != nil {
		return nil, err
	}

	if err := s.storage.Cache().MarkPendingGroup(ctx, payload.Group.ID); err != nil {
		return nil, fmt.Errorf("failed to mark pending group: %w", err)
	}

	if err := s.submit(ctx, payload); err != nil {
		return nil, err
	}

	if err := s.storage.Cache().ClearPendingGroup(ctx, payload.Group.ID); err != nil {
		s.logger.Warn().Err(err).Str("group_id", payload.Group.ID).Msg("Failed to clear pending group marker")
	}

	s.logger.Info().
		Str("group_id", payload.Group.ID).
		Str("type", string(payload.Group.Type)).
		Int("cash_legs", len(payload.CashLegs)).
		Msg("Transaction recorded")

	return payload, nil
}

// submit pushes the payload's rows in dependency order.
func (s *Service) submit(ctx context.Context, payload *txbuild.Payload) error {
	if err := s.backend.CreateTransactionGroup(ctx, &payload.Group); err != nil {
		// Group row never landed, nothing to orphan.
		if clearErr := s.storage.Cache().ClearPendingGroup(ctx, payload.Group.ID); clearErr != nil {
			s.logger.Warn().Err(clearErr).Str("group_id", payload.Group.ID).Msg("Failed to clear pending group marker")
		}
		return fmt.Errorf("failed to create transaction group: %w", err)
	}

	if payload.StockLeg != nil {
		if err := s.backend.CreateStockTransaction(ctx, payload.StockLeg); err != nil {
			return &OrphanedGroupError{GroupID: payload.Group.ID, Err: fmt.Errorf("failed to create stock leg: %w", err)}
		}
	}

	for i := range payload.CashLegs {
		if err := s.backend.CreateCashTransaction(ctx, &payload.CashLegs[i]); err != nil {
			return &OrphanedGroupError{GroupID: payload.Group.ID, Err: fmt.Errorf("failed to create cash leg %d: %w", i, err)}
		}
	}

	return nil
}

// ReconcileOrphans removes groups whose submission failed mid-sequence and
// that have no surviving legs server-side. Groups that do have legs are left
// alone and their markers cleared; deleting rows the user may have repaired
// elsewhere is worse than leaving a stray marker.
func (s *Service) ReconcileOrphans(ctx context.Context) (int, error) {
	pending, err := s.storage.Cache().PendingGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending groups: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	removed := 0
	for _, groupID := range pending {
		legs, err := s.backend.CountGroupLegs(ctx, groupID)
		if err != nil {
			s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Skipping orphan check")
			continue
		}

		if legs == 0 {
			if err := s.backend.DeleteTransactionGroup(ctx, groupID); err != nil {
				s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Failed to delete orphaned group")
				continue
			}
			removed++
			s.logger.Info().Str("group_id", groupID).Msg("Orphaned transaction group removed")
		} else {
			s.logger.Debug().Str("group_id", groupID).Int("legs", legs).Msg("Pending group has legs, keeping")
		}

		if err := s.storage.Cache().ClearPendingGroup(ctx, groupID); err != nil {
			s.logger.Warn().Err(err).Str("group_id", groupID).Msg("Failed to clear pending group marker")
		}
	}

	return removed, nil
}
