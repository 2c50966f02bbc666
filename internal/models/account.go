package models

import "time"

// CashAccount is a backend-owned cash account in a single currency.
type CashAccount struct {
	ID         string       `json:"id" badgerhold:"key"`
	UserID     string       `json:"user_id"`
	Name       string       `json:"name"`
	Currency   CurrencyCode `json:"currency"`
	CreatedAt  time.Time    `json:"created_at"`
	ArchivedAt *time.Time   `json:"archived_at,omitempty"`
}

// IsArchived returns true if the account has been archived.
// Archived accounts are excluded from active balance computation.
func (a *CashAccount) IsArchived() bool {
	return a.ArchivedAt != nil && !a.ArchivedAt.IsZero()
}

// PortfolioSettings holds per-user portfolio preferences from the backend.
type PortfolioSettings struct {
	ID           string       `json:"id" badgerhold:"key"`
	UserID       string       `json:"user_id"`
	BaseCurrency CurrencyCode `json:"base_currency"`
	RiskFreeRate float64      `json:"risk_free_rate,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at,omitempty"`
}
