package models

import "time"

// PortfolioState is one internally-consistent batch of fetched backend state.
// A batch is applied atomically: either every collection in it came from the
// same fetch generation, or none of it is visible.
type PortfolioState struct {
	Settings          *PortfolioSettings `json:"settings"`
	Accounts          []CashAccount      `json:"accounts"`
	Stocks            []Stock            `json:"stocks"`
	Positions         []Position         `json:"positions"`
	Groups            []TransactionGroup `json:"groups"`
	CashTransactions  []CashTransaction  `json:"cash_transactions"`
	StockTransactions []StockTransaction `json:"stock_transactions"`
	Rates             []CurrencyRate     `json:"rates"`
	FetchedAt         time.Time          `json:"fetched_at"`
	Generation        uint64             `json:"generation"`
}

// BaseCurrency returns the user's configured base currency, defaulting to USD
// when settings have not been fetched.
func (s *PortfolioState) BaseCurrency() CurrencyCode {
	if s.Settings != nil && s.Settings.BaseCurrency != "" {
		return s.Settings.BaseCurrency
	}
	return CurrencyUSD
}
