package domain

import "github.com/shopspring/decimal"

// ExitPolicy holds the automatic exit thresholds as fractions of the buy
// price. Both are positive; StopLoss is applied on the downside.
type ExitPolicy struct {
	TakeProfit decimal.Decimal // e.g. 0.05 closes at +5% or better
	StopLoss   decimal.Decimal // e.g. 0.05 closes at -5% or worse
}

// DefaultExitPolicy matches the simulator's fixed +/-5% rule.
func DefaultExitPolicy() ExitPolicy {
	five := decimal.New(5, -2)
	return ExitPolicy{TakeProfit: five, StopLoss: five}
}

// EvaluateExit decides whether a lot bought at buyPrice should be closed at
// nextPrice. Thresholds are inclusive: a margin of exactly +TakeProfit or
// exactly -StopLoss triggers the corresponding exit.
func EvaluateExit(buyPrice, nextPrice decimal.Decimal, policy ExitPolicy) ExitReason {
	if buyPrice.Sign() <= 0 {
		return ExitNone
	}
	margin := nextPrice.Sub(buyPrice).Div(buyPrice)
	switch {
	case margin.GreaterThanOrEqual(policy.TakeProfit):
		return ExitProfitTarget
	case margin.LessThanOrEqual(policy.StopLoss.Neg()):
		return ExitStopLoss
	default:
		return ExitNone
	}
}
