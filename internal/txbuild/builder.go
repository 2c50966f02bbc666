// Package txbuild translates a user's typed transaction entry into the exact
// set of ledger rows to submit: one transaction group, one or two cash legs,
// and optionally one stock leg, with signed amounts, FX-converted base
// equivalents, and rounding applied at each persistence point.
package txbuild

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/fx"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/money"
)

// Kind is the user-selected transaction kind.
type Kind string

const (
	KindCashDeposit      Kind = "cash_deposit"
	KindCashWithdrawal   Kind = "cash_withdrawal"
	KindCashInterest     Kind = "cash_interest"
	KindStockBuy         Kind = "stock_buy"
	KindStockSell        Kind = "stock_sell"
	KindStockDividend    Kind = "stock_dividend"
	KindCurrencyExchange Kind = "currency_exchange"
)

// ValidationError reports a form-level input failure. The operation is never
// attempted; the message is shown inline against the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Input carries one typed entry. Numeric fields arrive as raw user text and
// are parsed here; account and stock references are resolved by the caller.
type Input struct {
	Kind          Kind
	UserID        string
	Account       *models.CashAccount
	TargetAccount *models.CashAccount // currency exchange only
	Stock         *models.Stock       // stock kinds only
	Amount        string              // cash amount, dividend amount, or FX source amount
	Shares        string
	Price         string
	Fees          string
	PerShare      string // optional explicit dividend per share
	OccurredAt    time.Time
	Notes         string
}

// Payload is the complete set of rows to submit for one entry. Submission is
// sequential (group first, then legs) and atomic in intent only.
type Payload struct {
	Group    models.TransactionGroup
	StockLeg *models.StockTransaction
	CashLegs []models.CashTransaction
}

// Policy holds construction rules that are deliberately configurable rather
// than hardcoded.
type Policy struct {
	// AllowZeroNetDividend permits a dividend whose fees exactly equal the
	// dividend amount (net cash of zero).
	AllowZeroNetDividend bool
}

// DefaultPolicy matches the historical behavior: fees equal to the dividend
// amount pass validation.
func DefaultPolicy() Policy {
	return Policy{AllowZeroNetDividend: true}
}

// Builder constructs submission payloads against one resolved rate set.
type Builder struct {
	rates  *fx.Rates
	policy Policy
}

// Option configures the builder.
type Option func(*Builder)

// WithPolicy overrides the default construction policy.
func WithPolicy(p Policy) Option {
	return func(b *Builder) { b.policy = p }
}

// NewBuilder creates a builder over a resolved to-base rate set.
func NewBuilder(rates *fx.Rates, opts ...Option) *Builder {
	b := &Builder{rates: rates, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates the entry and emits its ledger rows. Validation failures
// return *ValidationError; a currency with no resolvable rate returns
// *fx.RateUnavailableError so callers can surface the data gap distinctly.
func (b *Builder) Build(in Input) (*Payload, error) {
	if in.Account == nil {
		return nil, invalid("account", "an account is required")
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	in.OccurredAt = occurredAt

	switch in.Kind {
	case KindCashDeposit:
		return b.buildCashLeg(in, models.CashLegDeposit, models.DirectionInflow)
	case KindCashInterest:
		return b.buildCashLeg(in, models.CashLegInterest, models.DirectionInflow)
	case KindCashWithdrawal:
		return b.buildCashLeg(in, models.CashLegWithdrawal, models.DirectionOutflow)
	case KindStockBuy, KindStockSell:
		return b.buildStockTrade(in)
	case KindStockDividend:
		return b.buildDividend(in)
	case KindCurrencyExchange:
		return b.buildExchange(in)
	default:
		return nil, invalid("kind", fmt.Sprintf("unknown transaction kind %q", in.Kind))
	}
}

// newGroup creates the parent group row for an entry.
func newGroup(in Input, typ models.GroupType) models.TransactionGroup {
	return models.TransactionGroup{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Type:       typ,
		Status:     models.GroupStatusPending,
		OccurredAt: in.OccurredAt,
		Notes:      in.Notes,
	}
}

// buildCashLeg handles deposits, withdrawals, and interest: one group and a
// single cash leg.
func (b *Builder) buildCashLeg(in Input, legType models.CashLegType, dir models.Direction) (*Payload, error) {
	amount, err := money.ParsePositive(in.Amount)
	if err != nil {
		return nil, invalid("amount", err.Error())
	}

	rate, err := b.rates.Require(in.Account.Currency)
	if err != nil {
		return nil, err
	}

	rounded := money.RoundAmount(amount)
	base := money.RoundBase(rounded.Mul(rate))
	signedBase := base
	if dir == models.DirectionOutflow {
		signedBase = base.Neg()
	}

	group := newGroup(in, models.GroupCashOnly)
	leg := models.CashTransaction{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		AccountID:  in.Account.ID,
		LegType:    legType,
		Direction:  dir,
		Amount:     rounded,
		Currency:   in.Account.Currency,
		FXRate:     rate,
		BaseAmount: signedBase,
		OccurredAt: in.OccurredAt,
		Notes:      in.Notes,
	}

	return &Payload{Group: group, CashLegs: []models.CashTransaction{leg}}, nil
}

// buildStockTrade handles buys and sells: one group, one stock leg, and one
// cash leg linked to it.
func (b *Builder) buildStockTrade(in Input) (*Payload, error) {
	if in.Stock == nil {
		return nil, invalid("stock", "a stock is required")
	}
	shares, err := money.ParsePositive(in.Shares)
	if err != nil {
		return nil, invalid("shares", err.Error())
	}
	price, err := money.ParsePositive(in.Price)
	if err != nil {
		return nil, invalid("price", err.Error())
	}
	fees, err := money.ParseNonNegative(in.Fees)
	if err != nil {
		return nil, invalid("fees", err.Error())
	}

	rate, err := b.rates.Require(in.Account.Currency)
	if err != nil {
		return nil, err
	}

	isBuy := in.Kind == KindStockBuy
	gross := money.RoundAmount(shares.Mul(price))
	roundedFees := money.RoundAmount(fees)

	var netCash decimal.Decimal
	if isBuy {
		netCash = gross.Add(roundedFees)
	} else {
		netCash = gross.Sub(roundedFees)
		if !netCash.IsPositive() {
			return nil, invalid("fees", "sell proceeds must exceed fees")
		}
	}

	baseGross := money.RoundBase(gross.Mul(rate))
	baseFees := money.RoundBase(roundedFees.Mul(rate))
	baseCash := money.RoundBase(netCash.Mul(rate))

	tradeType := models.TradeSell
	legType := models.CashLegStockSell
	dir := models.DirectionInflow
	signedBase := baseCash
	if isBuy {
		tradeType = models.TradeBuy
		legType = models.CashLegStockBuy
		dir = models.DirectionOutflow
		signedBase = baseCash.Neg()
	}

	group := newGroup(in, models.GroupStockTrade)
	stockLeg := models.StockTransaction{
		ID:            uuid.NewString(),
		GroupID:       group.ID,
		StockID:       in.Stock.ID,
		Symbol:        in.Stock.Symbol,
		TradeType:     tradeType,
		TradeDate:     in.OccurredAt,
		Quantity:      money.RoundQuantity(shares),
		PricePerShare: money.RoundPrice(price),
		GrossAmount:   gross,
		Fees:          roundedFees,
		Currency:      in.Account.Currency,
		FXRate:        rate,
		BaseGross:     baseGross,
		BaseFees:      baseFees,
		Status:        models.GroupStatusPending,
		Notes:         in.Notes,
	}
	cashLeg := models.CashTransaction{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		AccountID:  in.Account.ID,
		LegType:    legType,
		Direction:  dir,
		Amount:     netCash,
		Currency:   in.Account.Currency,
		FXRate:     rate,
		BaseAmount: signedBase,
		OccurredAt: in.OccurredAt,
		StockTxID:  stockLeg.ID,
		Notes:      in.Notes,
	}
	stockLeg.CashTxID = cashLeg.ID

	return &Payload{Group: group, StockLeg: &stockLeg, CashLegs: []models.CashTransaction{cashLeg}}, nil
}

// buildDividend handles dividends: one group, a dividend stock leg, and an
// inflow cash leg for the net amount.
func (b *Builder) buildDividend(in Input) (*Payload, error) {
	if in.Stock == nil {
		return nil, invalid("stock", "a stock is required")
	}
	dividend, err := money.ParsePositive(in.Amount)
	if err != nil {
		return nil, invalid("amount", err.Error())
	}
	shares, err := money.ParsePositive(in.Shares)
	if err != nil {
		return nil, invalid("shares", err.Error())
	}
	fees, err := money.ParseNonNegative(in.Fees)
	if err != nil {
		return nil, invalid("fees", err.Error())
	}
	if fees.GreaterThan(dividend) {
		return nil, invalid("fees", "fees cannot exceed the dividend amount")
	}
	if !b.policy.AllowZeroNetDividend && fees.Equal(dividend) {
		return nil, invalid("fees", "dividend net of fees must be greater than zero")
	}

	perShare := decimal.Decimal{}
	if in.PerShare != "" {
		perShare, err = money.ParsePositive(in.PerShare)
		if err != nil {
			return nil, invalid("per_share", err.Error())
		}
	} else {
		perShare = dividend.Div(shares)
	}

	rate, err := b.rates.Require(in.Account.Currency)
	if err != nil {
		return nil, err
	}

	roundedDividend := money.RoundAmount(dividend)
	roundedFees := money.RoundAmount(fees)
	netCash := roundedDividend.Sub(roundedFees)
	baseCash := money.RoundBase(netCash.Mul(rate))

	group := newGroup(in, models.GroupDividend)
	stockLeg := models.StockTransaction{
		ID:            uuid.NewString(),
		GroupID:       group.ID,
		StockID:       in.Stock.ID,
		Symbol:        in.Stock.Symbol,
		TradeType:     models.TradeDividend,
		TradeDate:     in.OccurredAt,
		Quantity:      money.RoundQuantity(shares),
		PricePerShare: money.RoundPrice(perShare),
		GrossAmount:   roundedDividend,
		Fees:          roundedFees,
		Currency:      in.Account.Currency,
		FXRate:        rate,
		BaseGross:     money.RoundBase(roundedDividend.Mul(rate)),
		BaseFees:      money.RoundBase(roundedFees.Mul(rate)),
		Status:        models.GroupStatusPending,
		Notes:         in.Notes,
	}
	cashLeg := models.CashTransaction{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		AccountID:  in.Account.ID,
		LegType:    models.CashLegDividend,
		Direction:  models.DirectionInflow,
		Amount:     netCash,
		Currency:   in.Account.Currency,
		FXRate:     rate,
		BaseAmount: baseCash,
		OccurredAt: in.OccurredAt,
		StockTxID:  stockLeg.ID,
		Notes:      in.Notes,
	}
	stockLeg.CashTxID = cashLeg.ID

	return &Payload{Group: group, StockLeg: &stockLeg, CashLegs: []models.CashTransaction{cashLeg}}, nil
}

// buildExchange handles currency exchanges between two accounts: one group
// and two cash legs pivoting through the base currency, no stock leg. The
// two legs' base amounts sum to zero.
func (b *Builder) buildExchange(in Input) (*Payload, error) {
	if in.TargetAccount == nil {
		return nil, invalid("target_account", "a target account is required")
	}
	if in.TargetAccount.ID == in.Account.ID {
		return nil, invalid("target_account", "source and target accounts must differ")
	}
	sourceAmount, err := money.ParsePositive(in.Amount)
	if err != nil {
		return nil, invalid("amount", err.Error())
	}

	sourceRate, err := b.rates.Require(in.Account.Currency)
	if err != nil {
		return nil, err
	}
	targetRate, err := b.rates.Require(in.TargetAccount.Currency)
	if err != nil {
		return nil, err
	}

	baseValue := sourceAmount.Mul(sourceRate)
	targetAmount := baseValue.Div(targetRate)
	if !targetAmount.IsPositive() {
		return nil, invalid("amount", "exchange produces no target amount")
	}

	roundedSource := money.RoundAmount(sourceAmount)
	roundedTarget := money.RoundAmount(targetAmount)
	roundedBase := money.RoundBase(baseValue)

	group := newGroup(in, models.GroupFXTransfer)
	outLeg := models.CashTransaction{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		AccountID:  in.Account.ID,
		LegType:    models.CashLegFXOut,
		Direction:  models.DirectionOutflow,
		Amount:     roundedSource,
		Currency:   in.Account.Currency,
		FXRate:     sourceRate,
		BaseAmount: roundedBase.Neg(),
		OccurredAt: in.OccurredAt,
		Notes:      in.Notes,
	}
	inLeg := models.CashTransaction{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		AccountID:  in.TargetAccount.ID,
		LegType:    models.CashLegFXIn,
		Direction:  models.DirectionInflow,
		Amount:     roundedTarget,
		Currency:   in.TargetAccount.Currency,
		FXRate:     targetRate,
		BaseAmount: roundedBase,
		OccurredAt: in.OccurredAt,
		Notes:      in.Notes,
	}

	return &Payload{Group: group, CashLegs: []models.CashTransaction{outLeg, inLeg}}, nil
}
