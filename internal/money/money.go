// Package money provides fixed-point decimal rounding and user-input parsing
// for monetary values. All arithmetic is decimal; binary floating point is
// never used for amounts to avoid cent-level drift.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical scales. Values are rounded at the point they are persisted, not
// at every intermediate step.
const (
	ScaleAmount   = 2 // currency amounts: gross, fees, net cash, native amounts
	ScalePrice    = 4 // prices per share
	ScaleBase     = 4 // FX-converted base-currency amounts
	ScaleQuantity = 6 // share quantities
)

// RoundAmount rounds a currency amount to 2 decimal places.
func RoundAmount(d decimal.Decimal) decimal.Decimal { return half(d, ScaleAmount) }

// RoundPrice rounds a per-share price to 4 decimal places.
func RoundPrice(d decimal.Decimal) decimal.Decimal { return half(d, ScalePrice) }

// RoundBase rounds an FX-converted base-currency amount to 4 decimal places.
// The extra precision feeds downstream aggregation before display rounding.
func RoundBase(d decimal.Decimal) decimal.Decimal { return half(d, ScaleBase) }

// RoundQuantity rounds a share quantity to 6 decimal places.
func RoundQuantity(d decimal.Decimal) decimal.Decimal { return half(d, ScaleQuantity) }

// half rounds at the given scale. decimal.Round is half-away-from-zero,
// which is the rounding mode used everywhere in the ledger (banker's
// rounding is deliberately not used).
func half(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// ParseAmount parses a user-supplied numeric string. Thousands separators
// (commas) and surrounding whitespace are stripped; empty or non-numeric
// input is rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	return d, nil
}

// ParsePositive parses a user-supplied numeric string and requires it to be
// strictly greater than zero.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be greater than zero")
	}
	return d, nil
}

// ParseNonNegative parses a user-supplied numeric string and requires it to
// be zero or greater. An empty string is treated as zero, matching the
// optional fee fields on entry forms.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return d, nil
}
