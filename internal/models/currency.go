package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO 4217 alphabetic currency code (e.g. "USD", "HKD").
type CurrencyCode string

// Common currency codes used throughout the app.
const (
	CurrencyUSD CurrencyCode = "USD"
	CurrencyHKD CurrencyCode = "HKD"
	CurrencyCNY CurrencyCode = "CNY"
	CurrencyAUD CurrencyCode = "AUD"
	CurrencyEUR CurrencyCode = "EUR"
	CurrencyGBP CurrencyCode = "GBP"
	CurrencyJPY CurrencyCode = "JPY"
)

// ParseCurrencyCode normalizes and validates a currency code string.
// Codes are three ASCII letters, stored uppercase.
func ParseCurrencyCode(s string) (CurrencyCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 3 {
		return "", fmt.Errorf("invalid currency code %q", s)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency code %q", s)
		}
	}
	return CurrencyCode(code), nil
}

func (c CurrencyCode) String() string { return string(c) }

// CurrencyRate is one observed exchange-rate row from the backend.
// Rows may exist in either direction for a pair and across multiple dates;
// consumers resolve them via the fx package rather than reading rows directly.
type CurrencyRate struct {
	ID           string          `json:"id" badgerhold:"key"`
	FromCurrency CurrencyCode    `json:"from_currency"`
	ToCurrency   CurrencyCode    `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	AsOfDate     time.Time       `json:"as_of_date"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
}
