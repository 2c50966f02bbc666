package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// The local (non-cloud) model is a simpler, locally-persisted entity set kept
// for the legacy offline book: a single transaction mutates a single holding
// via the moving-average update rule, with no group/leg split.

// LocalTransaction is one locally-recorded trade or dividend event.
type LocalTransaction struct {
	ID       string          `json:"id" badgerhold:"key"`
	TickerID string          `json:"ticker_id"`
	Symbol   string          `json:"symbol"`
	Type     TradeType       `json:"type"`
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fees     decimal.Decimal `json:"fees,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// LocalHolding is the locally-derived position for one instrument, maintained
// by replaying LocalTransactions in date order.
type LocalHolding struct {
	TickerID       string          `json:"ticker_id" badgerhold:"key"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
