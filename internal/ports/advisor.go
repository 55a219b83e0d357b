package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// Recommendation is a buy suggestion produced by a trend model.
type Recommendation struct {
	Ticker string
	Price  decimal.Decimal // Latest known price to buy at
}

// TrendAdvisor surfaces tickers with a positive trend signal. The prediction
// model behind it is an opaque collaborator; the ledger never depends on how
// the signal is computed.
type TrendAdvisor interface {
	Recommend(ctx context.Context) ([]Recommendation, error)
}
