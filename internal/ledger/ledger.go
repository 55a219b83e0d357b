package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stocksim/internal/domain"
	"stocksim/internal/ports"
)

// Ledger owns the cash balance and the trade (lot) collection. Every mutation
// is a single transaction: cash never moves without a matching lot mutation
// and vice versa. Public methods are safe to call from concurrent callers; a
// mutex serializes mutations on top of the store's transactions so a sweep of
// automatic exits and a manual sell can run at the same time.
type Ledger struct {
	repo   ports.LedgerRepository
	logger ports.Logger
	seed   decimal.Decimal

	mu sync.Mutex // Serializes mutating operations
}

// Config holds the dependencies for a Ledger.
type Config struct {
	Repo     ports.LedgerRepository
	Logger   ports.Logger
	SeedCash decimal.Decimal // Balance restored by Reset
}

// New creates a Ledger instance.
func New(cfg Config) (*Ledger, error) {
	if cfg.Repo == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	if cfg.SeedCash.IsNegative() {
		return nil, fmt.Errorf("seed cash cannot be negative")
	}
	return &Ledger{repo: cfg.Repo, logger: cfg.Logger, seed: cfg.SeedCash}, nil
}

// BuyReceipt confirms a successful purchase. It is observational only; the
// committed state is the lot row and the debited balance.
type BuyReceipt struct {
	Lot        *domain.Trade
	Cost       decimal.Decimal
	NewBalance decimal.Decimal
}

// SellReceipt confirms a successful sale across one or more lots.
type SellReceipt struct {
	Ticker     string
	Shares     int64
	Price      decimal.Decimal
	Proceeds   decimal.Decimal
	RealizedPL decimal.Decimal
	NewBalance decimal.Decimal
}

// ExitReceipt confirms a full single-lot close (manual or automatic).
type ExitReceipt struct {
	Lot        *domain.Trade
	Reason     domain.ExitReason
	ExitPrice  decimal.Decimal
	RealizedPL decimal.Decimal
	NewBalance decimal.Decimal
}

// Snapshot is a read-only view of the portfolio.
type Snapshot struct {
	Cash     decimal.Decimal
	OpenLots []*domain.Trade
}

// Buy debits cash and opens a new lot in one transaction. It fails with
// ports.ErrInvalidArgument on non-positive shares or price and with
// ports.ErrInsufficientFunds when the cost exceeds cash; nothing is mutated
// on failure.
func (l *Ledger) Buy(ctx context.Context, ticker string, shares int64, price decimal.Decimal) (*BuyReceipt, error) {
	if ticker == "" || shares <= 0 || price.Sign() <= 0 {
		return nil, ports.ErrInvalidArgument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := price.Mul(decimal.NewFromInt(shares))
	receipt := &BuyReceipt{Cost: cost}
	err := l.repo.Transact(ctx, func(tx ports.LedgerTx) error {
		cash, err := tx.CashBalance()
		if err != nil {
			return err
		}
		if cost.GreaterThan(cash) {
			return fmt.Errorf("cost %s exceeds cash %s: %w", cost, cash, ports.ErrInsufficientFunds)
		}
		if err := tx.AdjustCash(cost.Neg()); err != nil {
			return err
		}
		lot := &domain.Trade{
			Ticker:   ticker,
			Shares:   shares,
			BuyPrice: price,
			Status:   domain.StatusOpen,
			OpenedAt: time.Now().UTC(),
		}
		if _, err := tx.InsertTrade(lot); err != nil {
			return err
		}
		receipt.Lot = lot
		receipt.NewBalance = cash.Sub(cost)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "Bought shares", map[string]interface{}{
		"lotID":      receipt.Lot.ID,
		"ticker":     ticker,
		"shares":     shares,
		"price":      price.String(),
		"newBalance": receipt.NewBalance.String(),
	})
	return receipt, nil
}

// Sell disposes of the given share count at the given price, closing the
// oldest lots first. The lot mutations and the cash credit commit together or
// not at all. Fails with ports.ErrNoPosition when nothing of the ticker is
// owned and ports.ErrInsufficientShares when the request exceeds holdings.
func (l *Ledger) Sell(ctx context.Context, ticker string, shares int64, price decimal.Decimal) (*SellReceipt, error) {
	return l.sell(ctx, ticker, shares, price, domain.ExitManual)
}

func (l *Ledger) sell(ctx context.Context, ticker string, shares int64, price decimal.Decimal, reason domain.ExitReason) (*SellReceipt, error) {
	if ticker == "" || shares <= 0 || price.Sign() <= 0 {
		return nil, ports.ErrInvalidArgument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	receipt := &SellReceipt{Ticker: ticker, Shares: shares, Price: price}
	err := l.repo.Transact(ctx, func(tx ports.LedgerTx) error {
		lots, err := tx.OpenLotsByTicker(ticker)
		if err != nil {
			return err
		}
		var owned int64
		for _, lot := range lots {
			owned += lot.Shares
		}
		if owned == 0 {
			return fmt.Errorf("ticker %s: %w", ticker, ports.ErrNoPosition)
		}
		if shares > owned {
			return fmt.Errorf("requested %d of %d owned shares of %s: %w", shares, owned, ticker, ports.ErrInsufficientShares)
		}

		allocs, err := domain.MatchForSell(lots, shares)
		if err != nil {
			return err
		}
		realized := decimal.Zero
		for _, alloc := range allocs {
			if alloc.Full {
				if err := tx.CloseTrade(alloc.Lot.ID, price, reason, now); err != nil {
					return err
				}
			} else {
				// Split: the remainder stays open, the taken portion becomes
				// a closed disposal row so its cost basis is preserved.
				if err := tx.ReduceTrade(alloc.Lot.ID, alloc.Lot.Shares-alloc.Taken); err != nil {
					return err
				}
				disposal := &domain.Trade{
					Ticker:    ticker,
					Shares:    alloc.Taken,
					BuyPrice:  alloc.Lot.BuyPrice,
					SellPrice: price,
					Status:    domain.StatusClosed,
					Reason:    reason,
					OpenedAt:  alloc.Lot.OpenedAt,
					ClosedAt:  now,
				}
				if _, err := tx.InsertTrade(disposal); err != nil {
					return err
				}
			}
			realized = realized.Add(price.Sub(alloc.Lot.BuyPrice).Mul(decimal.NewFromInt(alloc.Taken)))
		}

		proceeds := price.Mul(decimal.NewFromInt(shares))
		if err := tx.AdjustCash(proceeds); err != nil {
			return err
		}
		cash, err := tx.CashBalance()
		if err != nil {
			return err
		}
		receipt.Proceeds = proceeds
		receipt.RealizedPL = realized
		receipt.NewBalance = cash
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "Sold shares", map[string]interface{}{
		"ticker":     ticker,
		"shares":     shares,
		"price":      price.String(),
		"realizedPL": receipt.RealizedPL.String(),
		"newBalance": receipt.NewBalance.String(),
	})
	return receipt, nil
}

// CloseLot sells a single lot's entire current shares at the given price,
// through the same transactional path as Sell. Used by the simulation clock
// for automatic exits. Fails with ports.ErrNoPosition when the lot does not
// exist or is already closed.
func (l *Ledger) CloseLot(ctx context.Context, lotID int64, price decimal.Decimal, reason domain.ExitReason) (*ExitReceipt, error) {
	if price.Sign() <= 0 {
		return nil, ports.ErrInvalidArgument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	receipt := &ExitReceipt{Reason: reason, ExitPrice: price}
	err := l.repo.Transact(ctx, func(tx ports.LedgerTx) error {
		lot, err := tx.FindTrade(lotID)
		if err != nil {
			return err
		}
		if lot == nil || !lot.IsOpen() {
			return fmt.Errorf("lot %d: %w", lotID, ports.ErrNoPosition)
		}
		if err := tx.CloseTrade(lot.ID, price, reason, now); err != nil {
			return err
		}
		proceeds := price.Mul(decimal.NewFromInt(lot.Shares))
		if err := tx.AdjustCash(proceeds); err != nil {
			return err
		}
		cash, err := tx.CashBalance()
		if err != nil {
			return err
		}
		lot.SellPrice = price
		lot.Status = domain.StatusClosed
		lot.Reason = reason
		lot.ClosedAt = now
		receipt.Lot = lot
		receipt.RealizedPL = price.Sub(lot.BuyPrice).Mul(decimal.NewFromInt(lot.Shares))
		receipt.NewBalance = cash
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "Closed lot", map[string]interface{}{
		"lotID":      receipt.Lot.ID,
		"ticker":     receipt.Lot.Ticker,
		"reason":     string(reason),
		"exitPrice":  price.String(),
		"realizedPL": receipt.RealizedPL.String(),
	})
	return receipt, nil
}

// Reset clears every trade and restores the seed balance in one transaction.
// Idempotent: a second call leaves the same state as the first.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.repo.Transact(ctx, func(tx ports.LedgerTx) error {
		return tx.Wipe(l.seed)
	})
	if err != nil {
		return err
	}
	l.logger.Info(ctx, "Ledger reset", map[string]interface{}{"seedCash": l.seed.String()})
	return nil
}

// CashBalance returns the committed cash balance.
func (l *Ledger) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	return l.repo.CashBalance(ctx)
}

// ListOpen returns every open lot ordered by ID ascending.
func (l *Ledger) ListOpen(ctx context.Context) ([]*domain.Trade, error) {
	return l.repo.OpenLots(ctx)
}

// RealizedPL returns the total realized profit and loss over closed lots.
func (l *Ledger) RealizedPL(ctx context.Context) (decimal.Decimal, error) {
	return l.repo.RealizedPL(ctx)
}

// PortfolioSnapshot returns the current cash balance together with the open
// lots.
func (l *Ledger) PortfolioSnapshot(ctx context.Context) (*Snapshot, error) {
	cash, err := l.repo.CashBalance(ctx)
	if err != nil {
		return nil, err
	}
	lots, err := l.repo.OpenLots(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Cash: cash, OpenLots: lots}, nil
}
