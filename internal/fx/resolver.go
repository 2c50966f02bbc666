// Package fx resolves raw currency-rate rows into a single best to-base rate
// per currency. It is a pure function over fetched data; callers that need a
// rate for an absent currency must fail the operation rather than guess.
package fx

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/models"
)

// RateUnavailableError reports a currency with no resolvable rate to the
// base currency. It is distinct from validation errors so callers can tell
// a data-availability gap from a typo.
type RateUnavailableError struct {
	Currency models.CurrencyCode
	Base     models.CurrencyCode
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no FX rate available for %s to %s", e.Currency, e.Base)
}

// Rates is the resolved best to-base rate per currency code.
type Rates struct {
	Base  models.CurrencyCode
	rates map[models.CurrencyCode]decimal.Decimal
}

// Rate returns the to-base rate for code, or false when no rate resolved.
// The base currency itself always resolves to 1.
func (r *Rates) Rate(code models.CurrencyCode) (decimal.Decimal, bool) {
	d, ok := r.rates[code]
	return d, ok
}

// Require returns the to-base rate for code or a RateUnavailableError.
func (r *Rates) Require(code models.CurrencyCode) (decimal.Decimal, error) {
	if d, ok := r.rates[code]; ok {
		return d, nil
	}
	return decimal.Decimal{}, &RateUnavailableError{Currency: code, Base: r.Base}
}

// Codes returns every currency code with a resolved rate.
func (r *Rates) Codes() []models.CurrencyCode {
	codes := make([]models.CurrencyCode, 0, len(r.rates))
	for c := range r.rates {
		codes = append(codes, c)
	}
	return codes
}

// ResolveToBase reduces a set of rate rows (possibly containing both
// directions and stale duplicates across dates) to one best to-base rate per
// currency code.
//
// For each code the latest direct row (to == base) and the latest inverted
// row (from == base, rate inverted) are candidates; whichever carries the
// later observation date wins. Rows with a zero rate are rejected before
// inversion. The base currency always resolves to 1; codes with no usable
// row are absent from the result.
func ResolveToBase(rows []models.CurrencyRate, base models.CurrencyCode) *Rates {
	type candidate struct {
		rate decimal.Decimal
		date int64
	}

	direct := make(map[models.CurrencyCode]candidate)
	inverted := make(map[models.CurrencyCode]candidate)

	for _, row := range rows {
		if row.Rate.IsZero() {
			continue
		}
		ts := row.AsOfDate.Unix()
		switch {
		case row.ToCurrency == base && row.FromCurrency != base:
			if cur, ok := direct[row.FromCurrency]; !ok || ts > cur.date {
				direct[row.FromCurrency] = candidate{rate: row.Rate, date: ts}
			}
		case row.FromCurrency == base && row.ToCurrency != base:
			if cur, ok := inverted[row.ToCurrency]; !ok || ts > cur.date {
				inverted[row.ToCurrency] = candidate{rate: decimal.NewFromInt(1).Div(row.Rate), date: ts}
			}
		}
	}

	resolved := make(map[models.CurrencyCode]decimal.Decimal, len(direct)+len(inverted)+1)
	for code, c := range direct {
		resolved[code] = c.rate
	}
	for code, c := range inverted {
		if d, ok := direct[code]; ok && d.date >= c.date {
			continue
		}
		resolved[code] = c.rate
	}
	resolved[base] = decimal.NewFromInt(1)

	return &Rates{Base: base, rates: resolved}
}
