package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtarrant/folio/internal/app"
	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/fx"
	"github.com/jtarrant/folio/internal/models"
	"github.com/jtarrant/folio/internal/money"
	"github.com/jtarrant/folio/internal/txbuild"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if command == "version" {
		common.LoadVersionFromFile()
		fmt.Println(common.GetFullVersion())
		return
	}
	if command == "help" || command == "-h" || command == "--help" {
		usage()
		return
	}

	a, err := app.NewApp(os.Getenv("FOLIO_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()

	var cmdErr error
	switch command {
	case "signin":
		cmdErr = runSignIn(ctx, a, args)
	case "signup":
		cmdErr = runSignUp(ctx, a, args)
	case "signout":
		cmdErr = a.SignOut(ctx)
	case "sync":
		cmdErr = runSync(ctx, a)
	case "summary":
		cmdErr = runSummary(ctx, a)
	case "risk":
		cmdErr = runRisk(ctx, a)
	case "rates":
		cmdErr = runRates(ctx, a)
	case "record":
		cmdErr = runRecord(ctx, a, args)
	case "local":
		cmdErr = runLocal(ctx, a, args)
	case "watch":
		cmdErr = runWatch(a, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `folio - personal portfolio tracker

Usage: folio <command> [flags]

Commands:
  signin    Sign in with email and password
  signup    Register a new account
  signout   Clear the saved session
  sync      Fetch portfolio state and reconcile incomplete submissions
  summary   Show portfolio totals, day change, and gain/loss
  risk      Show volatility, drawdown, and Sharpe ratio
  rates     Show resolved FX rates against the base currency
  record    Record a transaction (deposit, withdrawal, buy, sell, ...)
  local     Manage the local holdings book (add, rm, list, holdings)
  watch     Keep refreshing in the background until interrupted
  version   Print version information
`)
}

func runSignIn(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		return fmt.Errorf("both -email and -password are required")
	}
	if err := a.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Println("Signed in.")
	return nil
}

func runSignUp(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		return fmt.Errorf("both -email and -password are required")
	}
	return a.SignUp(ctx, *email, *password)
}

func runSync(ctx context.Context, a *app.App) error {
	state, err := a.PortfolioService.Refresh(ctx)
	if err != nil {
		return err
	}
	removed, err := a.TransactionService.ReconcileOrphans(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Orphan reconciliation failed")
	}

	fmt.Printf("Synced: %d accounts, %d positions, %d cash legs, %d stock legs\n",
		len(state.Accounts), len(state.Positions), len(state.CashTransactions), len(state.StockTransactions))
	if removed > 0 {
		fmt.Printf("Removed %d orphaned transaction group(s)\n", removed)
	}
	return nil
}

func runSummary(ctx context.Context, a *app.App) error {
	summary, err := a.PortfolioService.Summary(ctx)
	if err != nil {
		return err
	}

	hundred := decimalHundred()
	fmt.Printf("Base currency     %s\n", summary.BaseCurrency)
	fmt.Printf("Holdings value    %s\n", summary.TotalHoldingsValue.StringFixed(2))
	fmt.Printf("Cash balance      %s\n", summary.CashBalanceBase.StringFixed(2))
	fmt.Printf("Current total     %s\n", summary.CurrentTotal.StringFixed(2))
	fmt.Printf("Today cash flow   %s\n", summary.TodayCashFlow.StringFixed(2))
	fmt.Printf("Today change      %s (%s%%)\n",
		summary.TodayChangeValue.StringFixed(2), summary.TodayChangePercent.Mul(hundred).StringFixed(2))
	fmt.Printf("Gain/loss         %s (%s%%)\n",
		summary.GainLossValue.StringFixed(2), summary.GainLossPercent.Mul(hundred).StringFixed(2))
	return nil
}

func runRisk(ctx context.Context, a *app.App) error {
	metrics, err := a.PortfolioService.Risk(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Annualized volatility  %.2f%%\n", metrics.AnnualizedVolatility)
	fmt.Printf("Max drawdown           %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio           %.2f\n", metrics.SharpeRatio)
	fmt.Printf("Data points            %d\n", metrics.DataPoints)
	return nil
}

func runRates(ctx context.Context, a *app.App) error {
	state, err := a.PortfolioService.State(ctx)
	if err != nil {
		return err
	}

	base := state.BaseCurrency()
	rates := fx.ResolveToBase(state.Rates, base)
	fmt.Printf("Base currency: %s\n", base)
	for _, code := range rates.Codes() {
		r, _ := rates.Rate(code)
		fmt.Printf("  %s -> %s  %s\n", code, base, r.StringFixed(4))
	}
	return nil
}

// recordKinds maps CLI names to transaction kinds.
var recordKinds = map[string]txbuild.Kind{
	"deposit":    txbuild.KindCashDeposit,
	"withdrawal": txbuild.KindCashWithdrawal,
	"interest":   txbuild.KindCashInterest,
	"buy":        txbuild.KindStockBuy,
	"sell":       txbuild.KindStockSell,
	"dividend":   txbuild.KindStockDividend,
	"exchange":   txbuild.KindCurrencyExchange,
}

func runRecord(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	kindName := fs.String("kind", "", "deposit, withdrawal, interest, buy, sell, dividend, or exchange")
	account := fs.String("account", "", "cash account name")
	target := fs.String("to", "", "target account name (exchange only)")
	symbol := fs.String("stock", "", "stock symbol (buy, sell, dividend)")
	amount := fs.String("amount", "", "cash amount, dividend amount, or exchange source amount")
	shares := fs.String("shares", "", "share quantity")
	price := fs.String("price", "", "price per share")
	fees := fs.String("fees", "", "fees (optional)")
	perShare := fs.String("per-share", "", "explicit dividend per share (optional)")
	date := fs.String("date", "", "transaction date (YYYY-MM-DD, default today)")
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)

	kind, ok := recordKinds[strings.ToLower(*kindName)]
	if !ok {
		return fmt.Errorf("unknown kind %q", *kindName)
	}

	occurredAt := time.Now()
	if *date != "" {
		parsed, err := time.Parse(dateLayout, *date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", *date, err)
		}
		occurredAt = parsed
	}

	state, err := a.PortfolioService.State(ctx)
	if err != nil {
		return err
	}

	in := txbuild.Input{
		Kind:       kind,
		UserID:     currentUserID(ctx, a),
		Amount:     *amount,
		Shares:     *shares,
		Price:      *price,
		Fees:       *fees,
		PerShare:   *perShare,
		OccurredAt: occurredAt,
		Notes:      *notes,
	}

	if in.Account, err = findAccount(state, *account); err != nil {
		return err
	}
	if *target != "" {
		if in.TargetAccount, err = findAccount(state, *target); err != nil {
			return err
		}
	}
	if *symbol != "" {
		if in.Stock, err = findStock(state, *symbol); err != nil {
			return err
		}
	}

	payload, err := a.TransactionService.Record(ctx, in)
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %s group %s with %d cash leg(s)\n",
		payload.Group.Type, payload.Group.ID, len(payload.CashLegs))
	return nil
}

func runLocal(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: folio local <add|rm|list|holdings> [flags]")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		return runLocalAdd(ctx, a, rest)
	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: folio local rm <transaction-id>")
		}
		return a.LocalBookService.DeleteTransaction(ctx, rest[0])
	case "list":
		txs, err := a.LocalBookService.Transactions(ctx)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			fmt.Printf("%s  %s  %-8s %-9s qty %s @ %s\n",
				tx.ID, tx.Date.Format(dateLayout), tx.Symbol, tx.Type, tx.Quantity, tx.Price)
		}
		return nil
	case "holdings":
		holdings, err := a.LocalBookService.Holdings(ctx)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			fmt.Printf("%-8s qty %s  avg %s  basis %s\n",
				h.Symbol, h.Quantity, h.AverageCost.StringFixed(4), h.TotalCostBasis.StringFixed(2))
		}
		return nil
	default:
		return fmt.Errorf("unknown local subcommand %q", sub)
	}
}

func runLocalAdd(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("local add", flag.ExitOnError)
	symbol := fs.String("stock", "", "stock symbol")
	tradeType := fs.String("type", "buy", "buy, sell, or dividend")
	quantity := fs.String("shares", "", "share quantity")
	price := fs.String("price", "", "price per share")
	feesStr := fs.String("fees", "", "fees (optional)")
	date := fs.String("date", "", "transaction date (YYYY-MM-DD, default today)")
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)

	tx := models.LocalTransaction{
		Symbol: strings.ToUpper(*symbol),
		Type:   models.TradeType(*tradeType),
		Date:   time.Now(),
		Notes:  *notes,
	}
	if *date != "" {
		parsed, err := time.Parse(dateLayout, *date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", *date, err)
		}
		tx.Date = parsed
	}

	var err error
	if tx.Quantity, err = parseDecimalFlag("shares", *quantity); err != nil {
		return err
	}
	if tx.Price, err = parseDecimalFlag("price", *price); err != nil {
		return err
	}
	if *feesStr != "" {
		if tx.Fees, err = parseDecimalFlag("fees", *feesStr); err != nil {
			return err
		}
	}

	if err := a.LocalBookService.AddTransaction(ctx, tx); err != nil {
		return err
	}
	fmt.Println("Local transaction added.")
	return nil
}

func runWatch(a *app.App, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 5*time.Minute, "refresh interval")
	fs.Parse(args)

	common.PrintBanner(a.Config, a.Logger)
	a.StartAutoRefresh(*interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	common.PrintShutdownBanner(a.Logger)
	return nil
}

// currentUserID reads the signed-in user id from the saved session.
func currentUserID(ctx context.Context, a *app.App) string {
	if session, err := a.Storage.Credentials().GetSession(ctx); err == nil {
		return session.UserID
	}
	return ""
}

func decimalHundred() decimal.Decimal {
	return decimal.NewFromInt(100)
}

func parseDecimalFlag(name, value string) (decimal.Decimal, error) {
	d, err := money.ParseNonNegative(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid -%s %q: %w", name, value, err)
	}
	return d, nil
}

func findAccount(state *models.PortfolioState, name string) (*models.CashAccount, error) {
	if name == "" {
		return nil, fmt.Errorf("-account is required")
	}
	for i := range state.Accounts {
		if strings.EqualFold(state.Accounts[i].Name, name) || state.Accounts[i].ID == name {
			return &state.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("no cash account named %q", name)
}

func findStock(state *models.PortfolioState, symbol string) (*models.Stock, error) {
	for i := range state.Stocks {
		if strings.EqualFold(state.Stocks[i].Symbol, symbol) || state.Stocks[i].ID == symbol {
			return &state.Stocks[i], nil
		}
	}
	return nil, fmt.Errorf("no stock with symbol %q", symbol)
}
