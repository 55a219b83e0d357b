package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stocksim/config"
	"stocksim/internal/adapters/history"
	"stocksim/internal/adapters/logger"
	"stocksim/internal/adapters/sqlite"
	"stocksim/internal/app"
	"stocksim/internal/clock"
	"stocksim/internal/domain"
	"stocksim/internal/ledger"
	"stocksim/internal/ports"
	"stocksim/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath:   cfg.DBPath,
		SeedCash: cfg.SeedCash,
		Logger:   appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize portfolio database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing portfolio database")
		}
	}()

	// 4. Initialize Price Oracle (Historical Data Adapter)
	oracle, err := history.NewOracle(history.Config{
		DataDir: cfg.DataDir,
		Mode:    history.ParseMode(cfg.OracleMode),
		Seed:    cfg.OracleSeed,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize price oracle: %v", err)
	}

	// 5. Initialize Ledger
	book, err := ledger.New(ledger.Config{
		Repo:     store,
		Logger:   appLogger,
		SeedCash: cfg.SeedCash,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ledger: %v", err)
	}

	// 6. Initialize Simulation Clock
	simClock, err := clock.New(clock.Config{
		Trader:       book,
		Oracle:       oracle,
		Logger:       appLogger,
		Policy:       domain.ExitPolicy{TakeProfit: cfg.TakeProfit, StopLoss: cfg.StopLoss},
		PriceTimeout: cfg.PriceTimeout,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize simulation clock: %v", err)
	}

	// 7. Initialize Trend Advisor
	advisor, err := strategy.New(strategy.Config{
		Source:      oracle,
		Logger:      appLogger,
		ShortPeriod: cfg.AdvisorShortPeriod,
		LongPeriod:  cfg.AdvisorLongPeriod,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trend advisor: %v", err)
	}

	// 8. Initialize Session Service
	session, err := app.NewSession(app.Config{
		Logger:       appLogger,
		Ledger:       book,
		Clock:        simClock,
		Oracle:       oracle,
		Advisor:      advisor,
		PriceTimeout: cfg.PriceTimeout,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading session: %v", err)
	}

	runMenu(context.Background(), session)
}

// runMenu is the thin presentation loop. All business rules live behind the
// session service; this only reads input and prints results.
func runMenu(ctx context.Context, session *app.Session) {
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("Stock Simulator")
		fmt.Println("1. View Portfolio")
		fmt.Println("2. Buy Stock")
		fmt.Println("3. Sell Stock")
		fmt.Println("4. Predict Stock Trends")
		fmt.Println("5. Auto-Trade Recommended Stocks")
		fmt.Println("6. Advance Simulated Time")
		fmt.Println("7. View Profit & Loss")
		fmt.Println("8. View a Specific Stock")
		fmt.Println("9. Start Over (Wipe Everything)")
		fmt.Println("10. Exit")

		switch prompt(in, "Choose an option: ") {
		case "1":
			showPortfolio(ctx, session)
		case "2":
			buyStock(ctx, in, session)
		case "3":
			sellStock(ctx, in, session)
		case "4":
			showTrends(ctx, session)
		case "5":
			autoTrade(ctx, session)
		case "6":
			advance(ctx, session)
		case "7":
			showSummary(ctx, session)
		case "8":
			viewStock(ctx, in, session)
		case "9":
			if prompt(in, "Type RESET to confirm: ") == "RESET" {
				if err := session.Reset(ctx); err != nil {
					fmt.Println("Reset failed:", err)
				} else {
					fmt.Println("Everything has been reset.")
				}
			}
		case "10":
			return
		}
	}
}

func showPortfolio(ctx context.Context, session *app.Session) {
	snap, err := session.Portfolio(ctx)
	if err != nil {
		fmt.Println("Failed to load portfolio:", err)
		return
	}
	if len(snap.OpenLots) == 0 {
		fmt.Println("No active trades.")
		return
	}
	fmt.Printf("%-6s %-8s %8s %12s\n", "ID", "Ticker", "Shares", "Buy Price")
	for _, lot := range snap.OpenLots {
		fmt.Printf("%-6d %-8s %8d %12s\n", lot.ID, lot.Ticker, lot.Shares, lot.BuyPrice.StringFixed(2))
	}
	fmt.Println("Cash:", snap.Cash.StringFixed(2))
}

func buyStock(ctx context.Context, in *bufio.Scanner, session *app.Session) {
	ticker := strings.ToUpper(prompt(in, "Enter Stock Ticker (e.g., AAPL): "))
	market, err := session.Quote(ctx, ticker)
	if err != nil {
		fmt.Println("Stock data not available.")
		return
	}
	fmt.Printf("Current market price of %s: %s\n", ticker, market.StringFixed(2))

	shares, err := strconv.ParseInt(prompt(in, "Enter Number of Shares: "), 10, 64)
	if err != nil {
		fmt.Println("Invalid share count.")
		return
	}
	price, err := decimal.NewFromString(prompt(in, "Enter Purchase Price: "))
	if err != nil {
		fmt.Println("Invalid price.")
		return
	}

	receipt, err := session.Buy(ctx, ticker, shares, price)
	switch {
	case errors.Is(err, ports.ErrBelowMarket):
		fmt.Printf("Cannot buy below the current market price (%s).\n", market.StringFixed(2))
	case errors.Is(err, ports.ErrInsufficientFunds):
		fmt.Println("Insufficient funds.")
	case err != nil:
		fmt.Println("Buy failed:", err)
	default:
		fmt.Printf("Bought %d shares of %s at %s. New balance: %s\n",
			shares, ticker, price.StringFixed(2), receipt.NewBalance.StringFixed(2))
	}
}

func sellStock(ctx context.Context, in *bufio.Scanner, session *app.Session) {
	ticker := strings.ToUpper(prompt(in, "Enter Stock Ticker to Sell: "))
	shares, err := strconv.ParseInt(prompt(in, "Enter Number of Shares to Sell: "), 10, 64)
	if err != nil {
		fmt.Println("Invalid share count.")
		return
	}

	receipt, err := session.Sell(ctx, ticker, shares)
	switch {
	case errors.Is(err, ports.ErrNoPosition):
		fmt.Println("You do not own any shares of this stock.")
	case errors.Is(err, ports.ErrInsufficientShares):
		fmt.Println("You do not own that many shares.")
	case errors.Is(err, ports.ErrPriceUnavailable):
		fmt.Println("Market data unavailable, cannot sell.")
	case err != nil:
		fmt.Println("Sell failed:", err)
	default:
		fmt.Printf("Sold %d shares of %s at %s. P&L from this sale: %s\n",
			shares, ticker, receipt.Price.StringFixed(2), receipt.RealizedPL.StringFixed(2))
	}
}

func showTrends(ctx context.Context, session *app.Session) {
	recs, err := session.Trends(ctx)
	if err != nil {
		fmt.Println("Trend prediction failed:", err)
		return
	}
	if len(recs) == 0 {
		fmt.Println("No upward trends detected.")
		return
	}
	fmt.Println("Stocks trending up:")
	for _, rec := range recs {
		fmt.Printf("  %s at %s\n", rec.Ticker, rec.Price.StringFixed(2))
	}
}

func viewStock(ctx context.Context, in *bufio.Scanner, session *app.Session) {
	ticker := strings.ToUpper(prompt(in, "Enter Stock Ticker to View (e.g., AAPL): "))
	price, err := session.Quote(ctx, ticker)
	if err != nil {
		fmt.Println("Stock data not available.")
		return
	}
	fmt.Println("Ticker:", ticker)
	fmt.Println("Last Close Price:", price.StringFixed(2))
}

func autoTrade(ctx context.Context, session *app.Session) {
	receipts, err := session.AutoTrade(ctx)
	if err != nil {
		fmt.Println("Auto-trade failed:", err)
		return
	}
	if len(receipts) == 0 {
		fmt.Println("No strong buy signals at this time.")
		return
	}
	for _, r := range receipts {
		fmt.Printf("Auto-bought 1 share of %s at %s\n", r.Lot.Ticker, r.Lot.BuyPrice.StringFixed(2))
	}
}

func advance(ctx context.Context, session *app.Session) {
	events, err := session.AdvanceStep(ctx)
	if err != nil {
		fmt.Println("Step failed:", err)
		return
	}
	if len(events) == 0 {
		fmt.Println("Time advanced. No positions closed.")
		return
	}
	for _, ev := range events {
		label := "Profit target hit"
		if ev.Reason == domain.ExitStopLoss {
			label = "Stop-loss triggered"
		}
		fmt.Printf("Sold %d shares of %s at %s (%s) | P&L: %s\n",
			ev.Shares, ev.Ticker, ev.ExitPrice.StringFixed(2), label, ev.RealizedPL.StringFixed(2))
	}
}

func showSummary(ctx context.Context, session *app.Session) {
	cash, realized, err := session.AccountSummary(ctx)
	if err != nil {
		fmt.Println("Failed to load account summary:", err)
		return
	}
	fmt.Println("Cash Balance:", cash.StringFixed(2))
	fmt.Println("Realized P&L:", realized.StringFixed(2))
}

func prompt(in *bufio.Scanner, msg string) string {
	fmt.Print(msg)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}
