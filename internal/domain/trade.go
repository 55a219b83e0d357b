package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus represents the lifecycle state of a lot.
// The transition is monotonic: OPEN -> CLOSED, never back.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// ExitReason indicates why a lot (or a portion of it) was closed.
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitManual       ExitReason = "MANUAL"
)

// Trade represents one discrete purchase of shares (a lot), tracked until sold.
// A ticker may have many open lots at once; ordering by ID ascending is also
// purchase-time order and is the basis for FIFO matching.
type Trade struct {
	ID        int64           // Assigned by the store, monotonically increasing
	Ticker    string          // Instrument identifier, immutable
	Shares    int64           // Positive while open; only ever decreased by partial sells
	BuyPrice  decimal.Decimal // Fixed at creation
	SellPrice decimal.Decimal // Zero while open, fixed once closed
	Status    TradeStatus
	Reason    ExitReason // Set when closed
	OpenedAt  time.Time
	ClosedAt  time.Time // Zero value while open
}

// IsOpen reports whether the lot still holds shares.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// RealizedPL returns (sell_price - buy_price) * shares for a closed lot,
// and zero for an open one.
func (t *Trade) RealizedPL() decimal.Decimal {
	if t.Status != StatusClosed {
		return decimal.Zero
	}
	return t.SellPrice.Sub(t.BuyPrice).Mul(decimal.NewFromInt(t.Shares))
}
