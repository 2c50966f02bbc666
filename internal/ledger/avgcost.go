// Package ledger maintains per-instrument quantity and moving-average cost
// basis from an ordered stream of trade events. It backs the legacy local
// (non-cloud) book; the cloud path reads server-materialized positions
// instead.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/money"
)

// Book holds the derived holding per instrument id.
type Book struct {
	holdings map[string]*models.LocalHolding
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{holdings: make(map[string]*models.LocalHolding)}
}

// Holding returns the derived holding for an instrument, or false when the
// book has never seen it.
func (b *Book) Holding(tickerID string) (*models.LocalHolding, bool) {
	h, ok := b.holdings[tickerID]
	return h, ok
}

// Holdings returns every holding in the book, including fully-sold ones.
func (b *Book) Holdings() []*models.LocalHolding {
	out := make([]*models.LocalHolding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerID < out[j].TickerID })
	return out
}

// Apply folds one transaction into the book. Transactions must be applied in
// strictly increasing date order; the moving-average update is not invertible,
// so out-of-order application silently yields a different basis.
//
// Buy blends into the running average; sell clamps quantity at zero and
// leaves the average untouched; dividends never move quantity or basis.
func (b *Book) Apply(tx models.LocalTransaction) {
	h, ok := b.holdings[tx.TickerID]
	if !ok {
		h = &models.LocalHolding{TickerID: tx.TickerID, Symbol: tx.Symbol}
		b.holdings[tx.TickerID] = h
	}
	if h.Symbol == "" {
		h.Symbol = tx.Symbol
	}

	switch tx.Type {
	case models.TradeBuy:
		newTotalCost := h.Quantity.Mul(h.AverageCost).Add(tx.Quantity.Mul(tx.Price))
		newQuantity := h.Quantity.Add(tx.Quantity)
		h.Quantity = newQuantity
		h.TotalCostBasis = newTotalCost
		if newQuantity.IsPositive() {
			h.AverageCost = newTotalCost.Div(newQuantity)
		} else {
			h.AverageCost = decimal.Zero
		}
	case models.TradeSell:
		newQuantity := h.Quantity.Sub(tx.Quantity)
		if newQuantity.IsNegative() {
			newQuantity = decimal.Zero
		}
		h.Quantity = newQuantity
		h.TotalCostBasis = newQuantity.Mul(h.AverageCost)
	case models.TradeDividend:
		// No effect on quantity or cost basis.
	}

	h.UpdatedAt = tx.Date
}

// Rebuild discards the book and replays all transactions sorted by date
// ascending. Deleting or reordering a transaction requires this full O(n)
// replay: average-cost history cannot be patched incrementally without
// per-lot tracking, which this model does not keep.
func Rebuild(txs []models.LocalTransaction) *Book {
	ordered := make([]models.LocalTransaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	b := NewBook()
	for _, tx := range ordered {
		b.Apply(tx)
	}
	return b
}

// RoundedQuantity returns the holding quantity at persistence scale.
func RoundedQuantity(h *models.LocalHolding) decimal.Decimal {
	return money.RoundQuantity(h.Quantity)
}
