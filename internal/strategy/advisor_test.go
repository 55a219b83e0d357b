package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksim/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubSource serves fixed close series per ticker.
type stubSource struct {
	tickers []string
	series  map[string][]decimal.Decimal
}

func (s *stubSource) Tickers() []string { return s.tickers }

func (s *stubSource) Closes(ticker string) ([]decimal.Decimal, bool) {
	closes, ok := s.series[ticker]
	return closes, ok
}

func closes(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}

func newAdvisor(t *testing.T, source HistorySource) *Advisor {
	t.Helper()
	a, err := New(Config{Source: source, Logger: &mockLogger{}, ShortPeriod: 2, LongPeriod: 4})
	require.NoError(t, err)
	return a
}

func TestAdvisor_Recommend(t *testing.T) {
	source := &stubSource{
		tickers: []string{"DOWN", "FLAT", "SHORT", "UP"},
		series: map[string][]decimal.Decimal{
			"UP":    closes(100, 101, 103, 107), // short SMA 105 > long SMA 102.75
			"DOWN":  closes(110, 108, 104, 100), // short SMA 102 < long SMA 105.5
			"FLAT":  closes(100, 100, 100, 100),
			"SHORT": closes(100, 120), // Below the long period, skipped
		},
	}

	recs, err := newAdvisor(t, source).Recommend(context.Background())
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, "UP", recs[0].Ticker)
	assert.True(t, recs[0].Price.Equal(decimal.NewFromInt(107)), "recommended at latest close, got %s", recs[0].Price)
}

func TestAdvisor_RecommendEmptyUniverse(t *testing.T) {
	recs, err := newAdvisor(t, &stubSource{}).Recommend(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAdvisor_ConfigValidation(t *testing.T) {
	source := &stubSource{}
	logger := &mockLogger{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing source", cfg: Config{Logger: logger, ShortPeriod: 2, LongPeriod: 4}},
		{name: "missing logger", cfg: Config{Source: source, ShortPeriod: 2, LongPeriod: 4}},
		{name: "zero short period", cfg: Config{Source: source, Logger: logger, ShortPeriod: 0, LongPeriod: 4}},
		{name: "short not below long", cfg: Config{Source: source, Logger: logger, ShortPeriod: 4, LongPeriod: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

var _ ports.TrendAdvisor = (*Advisor)(nil)
