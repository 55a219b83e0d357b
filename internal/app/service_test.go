package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksim/internal/adapters/sqlite"
	"stocksim/internal/clock"
	"stocksim/internal/domain"
	"stocksim/internal/ledger"
	"stocksim/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubOracle serves fixed latest prices; tickers without an entry are
// unavailable.
type stubOracle struct {
	latest map[string]decimal.Decimal
}

func (s *stubOracle) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	price, ok := s.latest[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", ticker, ports.ErrPriceUnavailable)
	}
	return price, nil
}

func (s *stubOracle) NextPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return s.LatestPrice(ctx, ticker)
}

// stubAdvisor returns a canned recommendation list.
type stubAdvisor struct {
	recs []ports.Recommendation
	err  error
}

func (s *stubAdvisor) Recommend(ctx context.Context) ([]ports.Recommendation, error) {
	return s.recs, s.err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupSession(t *testing.T, seedCash int64, oracle ports.PriceOracle, advisor ports.TrendAdvisor) (*Session, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "stocksim-session-test-*")
	require.NoError(t, err)

	store, err := sqlite.NewStore(sqlite.Config{
		DBPath:   filepath.Join(tmpDir, "test.db"),
		SeedCash: decimal.NewFromInt(seedCash),
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)

	book, err := ledger.New(ledger.Config{
		Repo:     store,
		Logger:   &mockLogger{},
		SeedCash: decimal.NewFromInt(seedCash),
	})
	require.NoError(t, err)

	ticker, err := clock.New(clock.Config{
		Trader: book,
		Oracle: oracle,
		Logger: &mockLogger{},
		Policy: domain.DefaultExitPolicy(),
	})
	require.NoError(t, err)

	session, err := NewSession(Config{
		Logger:  &mockLogger{},
		Ledger:  book,
		Clock:   ticker,
		Oracle:  oracle,
		Advisor: advisor,
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return session, cleanup
}

func TestSession_Buy(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("150")}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name    string
		ticker  string
		shares  int64
		price   string
		wantErr error
	}{
		{name: "at market", ticker: "AAPL", shares: 2, price: "150"},
		{name: "above market", ticker: "AAPL", shares: 1, price: "151.25"},
		{name: "below market", ticker: "AAPL", shares: 1, price: "149.9999", wantErr: ports.ErrBelowMarket},
		{name: "no market data", ticker: "TSLA", shares: 1, price: "150", wantErr: ports.ErrPriceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := session.Buy(ctx, tt.ticker, tt.shares, d(tt.price))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ticker, receipt.Lot.Ticker)
			assert.True(t, receipt.Lot.BuyPrice.Equal(d(tt.price)))
		})
	}

	// Rejected buys must not open lots or touch cash.
	open, err := session.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	cash, _, err := session.AccountSummary(ctx)
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("9548.75")), "got %s", cash) // 10000 - 300 - 151.25
}

func TestSession_SellAtMarketPrice(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("100")}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	_, err := session.Buy(ctx, "AAPL", 5, d("100"))
	require.NoError(t, err)

	// The sell price is whatever the market says now, not the buy price.
	oracle.latest["AAPL"] = d("120")

	receipt, err := session.Sell(ctx, "AAPL", 5)
	require.NoError(t, err)
	assert.True(t, receipt.Price.Equal(d("120")))
	assert.True(t, receipt.Proceeds.Equal(d("600")))
	assert.True(t, receipt.RealizedPL.Equal(d("100")))

	delete(oracle.latest, "AAPL")
	_, err = session.Sell(ctx, "AAPL", 1)
	assert.ErrorIs(t, err, ports.ErrPriceUnavailable)
}

func TestSession_AutoTrade(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{}}
	advisor := &stubAdvisor{recs: []ports.Recommendation{
		{Ticker: "AAPL", Price: d("150")},
		{Ticker: "BRK", Price: d("700000")}, // Unaffordable, skipped
		{Ticker: "MSFT", Price: d("300")},
	}}
	session, cleanup := setupSession(t, 1000, oracle, advisor)
	defer cleanup()
	ctx := context.Background()

	receipts, err := session.AutoTrade(ctx)
	require.NoError(t, err)

	// One share per affordable recommendation; the sweep continues past the
	// one the balance cannot cover.
	require.Len(t, receipts, 2)
	assert.Equal(t, "AAPL", receipts[0].Lot.Ticker)
	assert.Equal(t, "MSFT", receipts[1].Lot.Ticker)
	assert.Equal(t, int64(1), receipts[0].Lot.Shares)
	assert.Equal(t, int64(1), receipts[1].Lot.Shares)

	cash, _, err := session.AccountSummary(ctx)
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("550")), "got %s", cash)
}

func TestSession_AutoTradeAdvisorError(t *testing.T) {
	advisor := &stubAdvisor{err: fmt.Errorf("model unavailable")}
	session, cleanup := setupSession(t, 1000, &stubOracle{}, advisor)
	defer cleanup()

	_, err := session.AutoTrade(context.Background())
	assert.Error(t, err)
}

func TestSession_Trends(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{}}
	advisor := &stubAdvisor{recs: []ports.Recommendation{
		{Ticker: "AAPL", Price: d("150")},
		{Ticker: "MSFT", Price: d("300")},
	}}
	session, cleanup := setupSession(t, 10000, oracle, advisor)
	defer cleanup()
	ctx := context.Background()

	recs, err := session.Trends(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "AAPL", recs[0].Ticker)
	assert.Equal(t, "MSFT", recs[1].Ticker)

	// Viewing trends is read-only: no lots open, no cash moves.
	open, err := session.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	cash, _, err := session.AccountSummary(ctx)
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("10000")), "got %s", cash)

	advisor.err = fmt.Errorf("model unavailable")
	_, err = session.Trends(ctx)
	assert.Error(t, err)
}

func TestSession_Quote(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("150")}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	price, err := session.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, price.Equal(d("150")))

	_, err = session.Quote(ctx, "TSLA")
	assert.ErrorIs(t, err, ports.ErrPriceUnavailable)
}

// deadlineOracle records whether each quote lookup carried a deadline.
type deadlineOracle struct {
	stubOracle
	sawDeadline bool
}

func (o *deadlineOracle) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	_, o.sawDeadline = ctx.Deadline()
	return o.stubOracle.LatestPrice(ctx, ticker)
}

func TestSession_QuoteLookupsAreBounded(t *testing.T) {
	oracle := &deadlineOracle{stubOracle: stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("100")}}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	_, err := session.Buy(ctx, "AAPL", 1, d("100"))
	require.NoError(t, err)
	assert.True(t, oracle.sawDeadline, "buy must bound the price lookup")

	oracle.sawDeadline = false
	_, err = session.Sell(ctx, "AAPL", 1)
	require.NoError(t, err)
	assert.True(t, oracle.sawDeadline, "sell must bound the price lookup")

	oracle.sawDeadline = false
	_, err = session.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, oracle.sawDeadline, "quote must bound the price lookup")
}

func TestSession_AdvanceStepAndSummary(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("100")}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	_, err := session.Buy(ctx, "AAPL", 2, d("100"))
	require.NoError(t, err)

	oracle.latest["AAPL"] = d("110") // +10%, past the profit target
	events, err := session.AdvanceStep(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ExitProfitTarget, events[0].Reason)

	cash, realizedPL, err := session.AccountSummary(ctx)
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("10020")), "got %s", cash)
	assert.True(t, realizedPL.Equal(d("20")), "got %s", realizedPL)

	snapshot, err := session.Portfolio(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.OpenLots)
	assert.True(t, snapshot.Cash.Equal(d("10020")))
}

func TestSession_Reset(t *testing.T) {
	oracle := &stubOracle{latest: map[string]decimal.Decimal{"AAPL": d("100")}}
	session, cleanup := setupSession(t, 10000, oracle, &stubAdvisor{})
	defer cleanup()
	ctx := context.Background()

	_, err := session.Buy(ctx, "AAPL", 3, d("100"))
	require.NoError(t, err)

	require.NoError(t, session.Reset(ctx))

	open, err := session.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	cash, realizedPL, err := session.AccountSummary(ctx)
	require.NoError(t, err)
	assert.True(t, cash.Equal(d("10000")))
	assert.True(t, realizedPL.IsZero())
}
