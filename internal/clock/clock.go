package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stocksim/internal/domain"
	"stocksim/internal/ledger"
	"stocksim/internal/ports"
)

const defaultPriceTimeout = 5 * time.Second

// Trader is the slice of the ledger the clock needs to execute automatic
// exits.
type Trader interface {
	ListOpen(ctx context.Context) ([]*domain.Trade, error)
	CloseLot(ctx context.Context, lotID int64, price decimal.Decimal, reason domain.ExitReason) (*ledger.ExitReceipt, error)
}

// AutoExitEvent records one automatic close performed during a step.
type AutoExitEvent struct {
	LotID      int64
	Ticker     string
	Shares     int64
	BuyPrice   decimal.Decimal
	ExitPrice  decimal.Decimal
	Reason     domain.ExitReason
	RealizedPL decimal.Decimal
}

// Clock advances simulated time. Each step re-prices every open lot via the
// price oracle and closes the ones that hit the exit policy's thresholds.
type Clock struct {
	trader  Trader
	oracle  ports.PriceOracle
	logger  ports.Logger
	policy  domain.ExitPolicy
	timeout time.Duration
}

// Config holds the dependencies for a Clock.
type Config struct {
	Trader       Trader
	Oracle       ports.PriceOracle
	Logger       ports.Logger
	Policy       domain.ExitPolicy
	PriceTimeout time.Duration // Bound on a single oracle lookup
}

// New creates a simulation clock.
func New(cfg Config) (*Clock, error) {
	if cfg.Trader == nil || cfg.Oracle == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Clock")
	}
	if cfg.Policy.TakeProfit.Sign() <= 0 || cfg.Policy.StopLoss.Sign() <= 0 {
		return nil, fmt.Errorf("exit policy thresholds must be positive")
	}
	timeout := cfg.PriceTimeout
	if timeout <= 0 {
		timeout = defaultPriceTimeout
	}
	return &Clock{
		trader:  cfg.Trader,
		oracle:  cfg.Oracle,
		logger:  cfg.Logger,
		policy:  cfg.Policy,
		timeout: timeout,
	}, nil
}

// AdvanceStep evaluates every currently open lot exactly once, in ID order.
// A lot whose next price is unavailable is skipped for this step. Each
// triggered exit is its own ledger transaction, so an interrupt between lots
// leaves a fully consistent ledger; the events executed so far are returned
// alongside the cancellation error.
func (c *Clock) AdvanceStep(ctx context.Context) ([]AutoExitEvent, error) {
	lots, err := c.trader.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lots for step: %w", err)
	}

	events := make([]AutoExitEvent, 0)
	for _, lot := range lots {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		price, err := c.nextPrice(ctx, lot.Ticker)
		if err != nil {
			if errors.Is(err, ports.ErrPriceUnavailable) {
				c.logger.Debug(ctx, "No next price for lot, skipping this step", map[string]interface{}{
					"lotID": lot.ID, "ticker": lot.Ticker,
				})
				continue
			}
			c.logger.Warn(ctx, "Price lookup failed, skipping lot this step", map[string]interface{}{
				"lotID": lot.ID, "ticker": lot.Ticker, "error": err.Error(),
			})
			continue
		}

		reason := domain.EvaluateExit(lot.BuyPrice, price, c.policy)
		if reason == domain.ExitNone {
			continue
		}

		receipt, err := c.trader.CloseLot(ctx, lot.ID, price, reason)
		if err != nil {
			if errors.Is(err, ports.ErrNoPosition) {
				// Closed by a concurrent caller between the snapshot and now.
				continue
			}
			return events, fmt.Errorf("auto exit of lot %d failed: %w", lot.ID, err)
		}
		events = append(events, AutoExitEvent{
			LotID:      lot.ID,
			Ticker:     lot.Ticker,
			Shares:     lot.Shares,
			BuyPrice:   lot.BuyPrice,
			ExitPrice:  price,
			Reason:     reason,
			RealizedPL: receipt.RealizedPL,
		})
	}
	return events, nil
}

// nextPrice queries the oracle under a bounded timeout so a slow lookup can
// never stall the step indefinitely.
func (c *Clock) nextPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.oracle.NextPrice(lookupCtx, ticker)
}
