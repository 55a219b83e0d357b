package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stocksim/internal/domain"
)

// LedgerTx is the mutation surface available inside one ledger transaction.
// Every method operates on uncommitted state; returning an error from the
// Transact callback rolls the whole transaction back, so a multi-lot sell is
// never visible half applied.
type LedgerTx interface {
	// CashBalance returns the current cash balance as seen by this transaction.
	CashBalance() (decimal.Decimal, error)
	// AdjustCash applies a signed delta to the cash balance.
	AdjustCash(delta decimal.Decimal) error
	// InsertTrade stores a new lot (open or closed disposal) and returns its ID.
	InsertTrade(t *domain.Trade) (int64, error)
	// OpenLotsByTicker returns the ticker's open lots ordered by ID ascending.
	OpenLotsByTicker(ticker string) ([]*domain.Trade, error)
	// FindTrade retrieves a lot by ID. Returns nil, nil when absent.
	FindTrade(id int64) (*domain.Trade, error)
	// CloseTrade marks a lot closed at the given price with the given reason.
	CloseTrade(id int64, sellPrice decimal.Decimal, reason domain.ExitReason, closedAt time.Time) error
	// ReduceTrade lowers an open lot's share count after a partial sell.
	ReduceTrade(id int64, shares int64) error
	// Wipe deletes all trades and resets cash to the seed value.
	Wipe(seed decimal.Decimal) error
}

// LedgerRepository persists the trading ledger: the trade (lot) collection and
// the single cash balance row. Mutations go through Transact; the read methods
// observe committed state only.
type LedgerRepository interface {
	// Transact runs fn inside a single database transaction. If fn returns an
	// error the transaction is rolled back and that error is returned.
	Transact(ctx context.Context, fn func(tx LedgerTx) error) error
	// CashBalance returns the committed cash balance.
	CashBalance(ctx context.Context) (decimal.Decimal, error)
	// OpenLots returns every open lot ordered by ID ascending.
	OpenLots(ctx context.Context) ([]*domain.Trade, error)
	// OpenLotsByTicker returns the ticker's open lots ordered by ID ascending.
	OpenLotsByTicker(ctx context.Context, ticker string) ([]*domain.Trade, error)
	// AllTrades returns every trade row, open and closed, ordered by ID ascending.
	AllTrades(ctx context.Context) ([]*domain.Trade, error)
	// RealizedPL sums (sell_price - buy_price) * shares over closed lots.
	RealizedPL(ctx context.Context) (decimal.Decimal, error)
}
