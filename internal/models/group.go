package models

import "time"

// GroupType categorizes the logical economic event a transaction group represents.
type GroupType string

const (
	GroupCashOnly   GroupType = "cash_only"
	GroupStockTrade GroupType = "stock_trade"
	GroupDividend   GroupType = "dividend"
	GroupFXTransfer GroupType = "fx_transfer"
	GroupAdjustment GroupType = "adjustment"
)

// validGroupTypes lists all accepted group types.
var validGroupTypes = map[GroupType]bool{
	GroupCashOnly:   true,
	GroupStockTrade: true,
	GroupDividend:   true,
	GroupFXTransfer: true,
	GroupAdjustment: true,
}

// ValidGroupType returns true if t is a valid group type.
func ValidGroupType(t GroupType) bool {
	return validGroupTypes[t]
}

// GroupStatus is the settlement status of a transaction group.
type GroupStatus string

const (
	GroupStatusPending GroupStatus = "pending"
	GroupStatusSettled GroupStatus = "settled"
	GroupStatusVoid    GroupStatus = "void"
)

// TransactionGroup correlates the ledger legs of one logical action.
// Every cash/stock leg belongs to exactly one group; a multi-leg group's
// signed base amounts sum to zero, modulo fees.
type TransactionGroup struct {
	ID          string      `json:"id" badgerhold:"key"`
	UserID      string      `json:"user_id"`
	Type        GroupType   `json:"group_type"`
	Status      GroupStatus `json:"status"`
	OccurredAt  time.Time   `json:"occurred_at"`
	SettledAt   *time.Time  `json:"settled_at,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	ExternalRef string      `json:"external_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
}
