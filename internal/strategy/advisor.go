package strategy

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"stocksim/internal/ports"
)

// HistorySource supplies the closing-price series the advisor analyzes. The
// history oracle satisfies this.
type HistorySource interface {
	Tickers() []string
	Closes(ticker string) ([]decimal.Decimal, bool)
}

// Advisor implements ports.TrendAdvisor with a simple momentum signal: a
// ticker whose short moving average sits above its long moving average is
// trending up and gets recommended at its latest close. It stands in for the
// original regression model; the ledger treats either as an opaque oracle.
type Advisor struct {
	source      HistorySource
	logger      ports.Logger
	shortPeriod int
	longPeriod  int
}

// Config holds configuration for the SMA advisor.
type Config struct {
	Source      HistorySource
	Logger      ports.Logger
	ShortPeriod int // e.g. 5
	LongPeriod  int // e.g. 20
}

// New creates an Advisor instance.
func New(cfg Config) (*Advisor, error) {
	if cfg.Source == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Advisor")
	}
	if cfg.ShortPeriod <= 0 || cfg.LongPeriod <= 0 {
		return nil, fmt.Errorf("advisor SMA periods must be positive")
	}
	if cfg.ShortPeriod >= cfg.LongPeriod {
		return nil, fmt.Errorf("advisor short period must be less than long period")
	}
	return &Advisor{
		source:      cfg.Source,
		logger:      cfg.Logger,
		shortPeriod: cfg.ShortPeriod,
		longPeriod:  cfg.LongPeriod,
	}, nil
}

// Recommend returns the tickers currently showing upward momentum. Tickers
// with too little history are skipped, not errors.
func (a *Advisor) Recommend(ctx context.Context) ([]ports.Recommendation, error) {
	recs := make([]ports.Recommendation, 0)
	for _, ticker := range a.source.Tickers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		closes, ok := a.source.Closes(ticker)
		if !ok || len(closes) < a.longPeriod {
			a.logger.Debug(ctx, "Not enough history for trend signal", map[string]interface{}{
				"ticker": ticker, "points": len(closes), "required": a.longPeriod,
			})
			continue
		}

		shortSMA, err := tailMean(closes, a.shortPeriod)
		if err != nil {
			return nil, fmt.Errorf("short SMA for %s: %w", ticker, err)
		}
		longSMA, err := tailMean(closes, a.longPeriod)
		if err != nil {
			return nil, fmt.Errorf("long SMA for %s: %w", ticker, err)
		}
		if shortSMA <= longSMA {
			continue
		}
		recs = append(recs, ports.Recommendation{
			Ticker: ticker,
			Price:  closes[len(closes)-1],
		})
	}
	return recs, nil
}

// tailMean computes the mean of the last n values of the series.
func tailMean(closes []decimal.Decimal, n int) (float64, error) {
	window := make([]float64, 0, n)
	for _, c := range closes[len(closes)-n:] {
		window = append(window, c.InexactFloat64())
	}
	return stats.Mean(window)
}
