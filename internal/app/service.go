package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stocksim/internal/clock"
	"stocksim/internal/domain"
	"stocksim/internal/ledger"
	"stocksim/internal/ports"
)

const defaultPriceTimeout = 5 * time.Second

// Session orchestrates one simulated trading session: it applies session
// policy (market-price checks, recommendation sweeps) on top of the ledger's
// invariants and forwards time steps to the simulation clock. The ledger
// itself stays policy-free.
type Session struct {
	logger       ports.Logger
	ledger       *ledger.Ledger
	clock        *clock.Clock
	oracle       ports.PriceOracle
	advisor      ports.TrendAdvisor
	priceTimeout time.Duration
}

// Config holds the dependencies for a Session.
type Config struct {
	Logger       ports.Logger
	Ledger       *ledger.Ledger
	Clock        *clock.Clock
	Oracle       ports.PriceOracle
	Advisor      ports.TrendAdvisor
	PriceTimeout time.Duration // Bound on a single oracle lookup
}

// NewSession creates a trading session service.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Logger == nil || cfg.Ledger == nil || cfg.Clock == nil || cfg.Oracle == nil || cfg.Advisor == nil {
		return nil, fmt.Errorf("missing required dependencies for Session")
	}
	timeout := cfg.PriceTimeout
	if timeout <= 0 {
		timeout = defaultPriceTimeout
	}
	return &Session{
		logger:       cfg.Logger,
		ledger:       cfg.Ledger,
		clock:        cfg.Clock,
		oracle:       cfg.Oracle,
		advisor:      cfg.Advisor,
		priceTimeout: timeout,
	}, nil
}

// Buy purchases shares at the caller's price, enforcing the session rule that
// a manual buy may not undercut the current market price. Fails with
// ports.ErrPriceUnavailable when the ticker has no market data and
// ports.ErrBelowMarket when the offered price is below the latest quote.
func (s *Session) Buy(ctx context.Context, ticker string, shares int64, price decimal.Decimal) (*ledger.BuyReceipt, error) {
	market, err := s.marketPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if price.LessThan(market) {
		return nil, fmt.Errorf("offered %s against market %s for %s: %w", price, market, ticker, ports.ErrBelowMarket)
	}
	return s.ledger.Buy(ctx, ticker, shares, price)
}

// Sell disposes of shares at the current market price, oldest lots first.
func (s *Session) Sell(ctx context.Context, ticker string, shares int64) (*ledger.SellReceipt, error) {
	market, err := s.marketPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return s.ledger.Sell(ctx, ticker, shares, market)
}

// Quote returns the ticker's latest market price, or
// ports.ErrPriceUnavailable when it has no data.
func (s *Session) Quote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return s.marketPrice(ctx, ticker)
}

// Trends returns the advisor's current buy signals without acting on them.
func (s *Session) Trends(ctx context.Context) ([]ports.Recommendation, error) {
	recs, err := s.advisor.Recommend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}
	return recs, nil
}

// marketPrice queries the latest quote under a bounded timeout so a slow
// oracle can never stall an interactive operation.
func (s *Session) marketPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.priceTimeout)
	defer cancel()
	return s.oracle.LatestPrice(lookupCtx, ticker)
}

// AutoTrade buys one share of every ticker the advisor recommends. A
// recommendation the balance cannot cover is skipped, not an error; the
// sweep continues with the remaining recommendations.
func (s *Session) AutoTrade(ctx context.Context) ([]*ledger.BuyReceipt, error) {
	recs, err := s.advisor.Recommend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}

	receipts := make([]*ledger.BuyReceipt, 0, len(recs))
	for _, rec := range recs {
		receipt, err := s.ledger.Buy(ctx, rec.Ticker, 1, rec.Price)
		if err != nil {
			if errors.Is(err, ports.ErrInsufficientFunds) {
				s.logger.Warn(ctx, "Skipping recommended buy, insufficient funds", map[string]interface{}{
					"ticker": rec.Ticker, "price": rec.Price.String(),
				})
				continue
			}
			return receipts, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// AdvanceStep moves simulated time forward one step.
func (s *Session) AdvanceStep(ctx context.Context) ([]clock.AutoExitEvent, error) {
	return s.clock.AdvanceStep(ctx)
}

// Portfolio returns the open lots and the cash balance.
func (s *Session) Portfolio(ctx context.Context) (*ledger.Snapshot, error) {
	return s.ledger.PortfolioSnapshot(ctx)
}

// AccountSummary returns the cash balance and the total realized P&L.
func (s *Session) AccountSummary(ctx context.Context) (cash, realizedPL decimal.Decimal, err error) {
	cash, err = s.ledger.CashBalance(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	realizedPL, err = s.ledger.RealizedPL(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return cash, realizedPL, nil
}

// ListOpen returns every open lot ordered by ID ascending.
func (s *Session) ListOpen(ctx context.Context) ([]*domain.Trade, error) {
	return s.ledger.ListOpen(ctx)
}

// Reset wipes every trade and restores the seed balance.
func (s *Session) Reset(ctx context.Context) error {
	return s.ledger.Reset(ctx)
}
