package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies simulated market prices for tickers. Implementations
// must either return a price or ErrPriceUnavailable; they must never hang,
// and they honor context deadlines on any blocking lookup.
//
// The sampling strategy behind NextPrice is deliberately implementation
// defined: the default adapter can sample a random historical point or step a
// deterministic cursor. Callers that need reproducible behavior inject a
// deterministic implementation.
type PriceOracle interface {
	// LatestPrice returns the most recent known price for the ticker.
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	// NextPrice returns the price for the next simulated time step.
	NextPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}
