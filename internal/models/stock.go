package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is a backend-owned instrument record.
type Stock struct {
	ID        string       `json:"id" badgerhold:"key"`
	UserID    string       `json:"user_id"`
	Symbol    string       `json:"symbol"`
	Name      string       `json:"name,omitempty"`
	Exchange  string       `json:"exchange,omitempty"`
	Currency  CurrencyCode `json:"currency"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// TradeType categorizes a stock ledger leg.
type TradeType string

const (
	TradeBuy      TradeType = "buy"
	TradeSell     TradeType = "sell"
	TradeDividend TradeType = "dividend"
)

// validTradeTypes lists all accepted trade types.
var validTradeTypes = map[TradeType]bool{
	TradeBuy:      true,
	TradeSell:     true,
	TradeDividend: true,
}

// ValidTradeType returns true if t is a valid trade type.
func ValidTradeType(t TradeType) bool {
	return validTradeTypes[t]
}

// StockTransaction is one stock ledger leg belonging to a transaction group.
// GrossAmount = Quantity * PricePerShare rounded to 2 decimals; Quantity is
// rounded to 6 and PricePerShare to 4.
type StockTransaction struct {
	ID            string          `json:"id" badgerhold:"key"`
	GroupID       string          `json:"group_id"`
	StockID       string          `json:"stock_id"`
	Symbol        string          `json:"symbol"`
	TradeType     TradeType       `json:"trade_type"`
	TradeDate     time.Time       `json:"trade_date"`
	SettleDate    *time.Time      `json:"settle_date,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	Fees          decimal.Decimal `json:"fees"`
	Currency      CurrencyCode    `json:"currency"`
	FXRate        decimal.Decimal `json:"fx_rate"`
	BaseGross     decimal.Decimal `json:"base_gross_amount"`
	BaseFees      decimal.Decimal `json:"base_fees"`
	CostBasis     decimal.Decimal `json:"cost_basis,omitempty"`
	RealizedPL    decimal.Decimal `json:"realized_pl,omitempty"`
	CashTxID      string          `json:"cash_transaction_id,omitempty"`
	Status        GroupStatus     `json:"status,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
}
