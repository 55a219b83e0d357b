package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateExit(t *testing.T) {
	policy := DefaultExitPolicy()

	tests := []struct {
		name      string
		buyPrice  string
		nextPrice string
		want      ExitReason
	}{
		{name: "just above profit target", buyPrice: "100", nextPrice: "105.00001", want: ExitProfitTarget},
		{name: "exactly at profit target", buyPrice: "100", nextPrice: "105", want: ExitProfitTarget},
		{name: "just under profit target", buyPrice: "100", nextPrice: "104.9999", want: ExitNone},
		{name: "exactly at stop loss", buyPrice: "100", nextPrice: "95.0", want: ExitStopLoss},
		{name: "just above stop loss", buyPrice: "100", nextPrice: "95.0001", want: ExitNone},
		{name: "deep loss", buyPrice: "100", nextPrice: "50", want: ExitStopLoss},
		{name: "unchanged price", buyPrice: "100", nextPrice: "100", want: ExitNone},
		{name: "non-round buy price", buyPrice: "37.50", nextPrice: "39.375", want: ExitProfitTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateExit(
				decimal.RequireFromString(tt.buyPrice),
				decimal.RequireFromString(tt.nextPrice),
				policy,
			)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateExit_CustomThresholds(t *testing.T) {
	policy := ExitPolicy{
		TakeProfit: decimal.RequireFromString("0.10"),
		StopLoss:   decimal.RequireFromString("0.02"),
	}

	buy := decimal.RequireFromString("200")
	assert.Equal(t, ExitNone, EvaluateExit(buy, decimal.RequireFromString("210"), policy))
	assert.Equal(t, ExitProfitTarget, EvaluateExit(buy, decimal.RequireFromString("220"), policy))
	assert.Equal(t, ExitStopLoss, EvaluateExit(buy, decimal.RequireFromString("196"), policy))
	assert.Equal(t, ExitNone, EvaluateExit(buy, decimal.RequireFromString("197"), policy))
}

func TestEvaluateExit_InvalidBuyPrice(t *testing.T) {
	policy := DefaultExitPolicy()
	assert.Equal(t, ExitNone, EvaluateExit(decimal.Zero, decimal.RequireFromString("100"), policy))
}
