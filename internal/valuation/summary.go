// Package valuation aggregates already-fetched portfolio state into display
// metrics: totals, day change against the previous snapshot, gain/loss, and
// NAV-series risk figures. Everything here is a pure function; no fetching.
package valuation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/models"
)

// Summary holds the headline portfolio metrics for the dashboard.
type Summary struct {
	BaseCurrency       models.CurrencyCode `json:"base_currency"`
	TotalHoldingsValue decimal.Decimal     `json:"total_holdings_value"`
	TotalCostBasis     decimal.Decimal     `json:"total_cost_basis"`
	CashBalanceBase    decimal.Decimal     `json:"cash_balance_base"`
	CurrentTotal       decimal.Decimal     `json:"current_total"`
	TodayCashFlow      decimal.Decimal     `json:"today_cash_flow"`
	TodayChangeValue   decimal.Decimal     `json:"today_change_value"`
	TodayChangePercent decimal.Decimal     `json:"today_change_percent"`
	GainLossValue      decimal.Decimal     `json:"gain_loss_value"`
	GainLossPercent    decimal.Decimal     `json:"gain_loss_percent"`
}

// CashBalanceBase sums the signed base amounts of all cash legs belonging to
// active (non-archived) accounts.
func CashBalanceBase(accounts []models.CashAccount, legs []models.CashTransaction) decimal.Decimal {
	active := make(map[string]bool, len(accounts))
	for i := range accounts {
		if !accounts[i].IsArchived() {
			active[accounts[i].ID] = true
		}
	}

	total := decimal.Zero
	for i := range legs {
		if active[legs[i].AccountID] {
			total = total.Add(legs[i].BaseAmount)
		}
	}
	return total
}

// TodayCashFlow sums the signed base amounts of cash-flow-relevant legs dated
// on the given day. It feeds the day-change baseline so that deposits and
// withdrawals do not masquerade as market movement.
func TodayCashFlow(legs []models.CashTransaction, day time.Time) decimal.Decimal {
	y, m, d := day.Date()
	total := decimal.Zero
	for i := range legs {
		if !models.IsCashFlowLegType(legs[i].LegType) {
			continue
		}
		ly, lm, ld := legs[i].OccurredAt.Date()
		if ly == y && lm == m && ld == d {
			total = total.Add(legs[i].BaseAmount)
		}
	}
	return total
}

// Compute assembles the summary. previous may be nil when no snapshot exists
// yet, in which case the day-change figures stay zero.
//
// TotalHoldingsValue uses each position's base cost basis, not a live mark:
// when no live price data is available the cost basis stands in for market
// value.
func Compute(
	positions []models.Position,
	accounts []models.CashAccount,
	legs []models.CashTransaction,
	previous *models.PortfolioSnapshot,
	base models.CurrencyCode,
	now time.Time,
) *Summary {
	s := &Summary{BaseCurrency: base}

	for i := range positions {
		s.TotalHoldingsValue = s.TotalHoldingsValue.Add(positions[i].TotalCostBase)
		s.TotalCostBasis = s.TotalCostBasis.Add(positions[i].TotalCostBase)
	}

	s.CashBalanceBase = CashBalanceBase(accounts, legs)
	s.CurrentTotal = s.TotalHoldingsValue.Add(s.CashBalanceBase)
	s.TodayCashFlow = TodayCashFlow(legs, now)

	if previous != nil {
		baseline := previous.TotalValue.Add(s.TodayCashFlow)
		s.TodayChangeValue = s.CurrentTotal.Sub(baseline)
		if !baseline.IsZero() {
			s.TodayChangePercent = s.TodayChangeValue.Div(baseline)
		}
	}

	s.GainLossValue = s.TotalHoldingsValue.Sub(s.TotalCostBasis)
	if !s.TotalCostBasis.IsZero() {
		s.GainLossPercent = s.GainLossValue.Div(s.TotalCostBasis)
	}

	return s
}
