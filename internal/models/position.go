package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a server-materialized per-stock holding, read-only to the client.
// TotalShares never goes negative; when shares reach zero the cost basis is
// floored at zero as well.
type Position struct {
	ID              string          `json:"id" badgerhold:"key"`
	UserID          string          `json:"user_id"`
	StockID         string          `json:"stock_id"`
	Symbol          string          `json:"symbol"`
	TotalShares     decimal.Decimal `json:"total_shares"`
	TotalCostBase   decimal.Decimal `json:"total_cost_base"`
	TotalCostNative decimal.Decimal `json:"total_cost_native,omitempty"`
	AverageCost     decimal.Decimal `json:"average_cost"`
	Currency        CurrencyCode    `json:"currency,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at,omitempty"`
}

// PortfolioSnapshot is a point-in-time rollup computed server-side, used as
// the previous-day baseline for day-change computation.
type PortfolioSnapshot struct {
	ID            string          `json:"id" badgerhold:"key"`
	UserID        string          `json:"user_id"`
	SnapshotDate  time.Time       `json:"snapshot_date"`
	TotalValue    decimal.Decimal `json:"total_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	GainLoss      decimal.Decimal `json:"gain_loss"`
	ReturnPercent decimal.Decimal `json:"return_percent"`
	Currency      CurrencyCode    `json:"currency"`
	TotalShares   decimal.Decimal `json:"total_shares,omitempty"`
	NAVPerShare   decimal.Decimal `json:"nav_per_share,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
}

// PricePoint is one historical closing price for a stock.
type PricePoint struct {
	ID      string          `json:"id" badgerhold:"key"`
	StockID string          `json:"stock_id"`
	Symbol  string          `json:"symbol"`
	Date    time.Time       `json:"price_date"`
	Close   decimal.Decimal `json:"close_price"`
}
