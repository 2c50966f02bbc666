package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashLegType categorizes the purpose of a cash ledger leg.
type CashLegType string

const (
	CashLegDeposit    CashLegType = "deposit"
	CashLegWithdrawal CashLegType = "withdrawal"
	CashLegFXIn       CashLegType = "fx_in"
	CashLegFXOut      CashLegType = "fx_out"
	CashLegStockBuy   CashLegType = "stock_buy"
	CashLegStockSell  CashLegType = "stock_sell"
	CashLegDividend   CashLegType = "dividend"
	CashLegFee        CashLegType = "fee"
	CashLegAdjustment CashLegType = "adjustment"
	CashLegInterest   CashLegType = "interest"
)

// validCashLegTypes lists all accepted cash leg types.
var validCashLegTypes = map[CashLegType]bool{
	CashLegDeposit:    true,
	CashLegWithdrawal: true,
	CashLegFXIn:       true,
	CashLegFXOut:      true,
	CashLegStockBuy:   true,
	CashLegStockSell:  true,
	CashLegDividend:   true,
	CashLegFee:        true,
	CashLegAdjustment: true,
	CashLegInterest:   true,
}

// ValidCashLegType returns true if t is a valid cash leg type.
func ValidCashLegType(t CashLegType) bool {
	return validCashLegTypes[t]
}

// cashFlowLegTypes are the leg types counted toward today's external cash flow
// when computing the day-change baseline.
var cashFlowLegTypes = map[CashLegType]bool{
	CashLegDeposit:    true,
	CashLegWithdrawal: true,
	CashLegDividend:   true,
	CashLegFee:        true,
	CashLegAdjustment: true,
	CashLegInterest:   true,
	CashLegFXIn:       true,
	CashLegFXOut:      true,
	CashLegStockBuy:   true,
	CashLegStockSell:  true,
}

// IsCashFlowLegType returns true if legs of type t count toward daily cash flow.
func IsCashFlowLegType(t CashLegType) bool {
	return cashFlowLegTypes[t]
}

// Direction is the flow direction of a cash leg.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Sign returns +1 for inflows and -1 for outflows.
func (d Direction) Sign() int {
	if d == DirectionOutflow {
		return -1
	}
	return 1
}

// CashTransaction is one cash ledger leg belonging to a transaction group.
// Amount is always non-negative; the sign lives in Direction and is baked
// into BaseAmount (positive inflow, negative outflow).
type CashTransaction struct {
	ID         string          `json:"id" badgerhold:"key"`
	GroupID    string          `json:"group_id"`
	AccountID  string          `json:"account_id"`
	LegType    CashLegType     `json:"leg_type"`
	Direction  Direction       `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   CurrencyCode    `json:"currency"`
	FXRate     decimal.Decimal `json:"fx_rate"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	OccurredAt time.Time       `json:"occurred_at"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
	StockTxID  string          `json:"stock_transaction_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}
