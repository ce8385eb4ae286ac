// Package pricing implements the theoretical option pricing estimator
// and the slippage fill simulator for the paper trading engine.
//
// The estimator is a deliberate simplification, not a Black-Scholes
// solve: intrinsic value plus a scaled square-root-of-time value term.
// It exists to give paper fills a plausible shape, not to price risk.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The square-root term is computed in float64 and immediately converted
// back to decimal.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// PriceScale is the number of decimal places for price rounding.
const PriceScale int32 = 8

// DefaultDaysToExpiry is used when a leg carries no expiration date.
const DefaultDaysToExpiry = 30

var (
	// DefaultVolatility is the fixed annualized volatility assumption
	// (30%) applied when the caller supplies none.
	DefaultVolatility = decimal.NewFromFloat(0.30)

	// timeValueScale dampens the square-root time value term.
	timeValueScale = decimal.NewFromFloat(0.4)

	// buySlippage and sellSlippage approximate a 1% bid/ask spread:
	// buys fill above theoretical, sells below, so both sides pay the
	// spread relative to mid.
	buySlippage  = decimal.NewFromFloat(1.01)
	sellSlippage = decimal.NewFromFloat(0.99)
)

// EstimateInput holds the parameters for one theoretical price.
type EstimateInput struct {
	SpotPrice    decimal.Decimal
	StrikePrice  decimal.Decimal
	DaysToExpiry int
	Volatility   decimal.Decimal
	Type         model.OptionType
}

// Estimate computes the theoretical per-contract price:
//
//	intrinsic  = max(spot - strike, 0) for calls,
//	             max(strike - spot, 0) for puts
//	timeValue  = sqrt(days/365) × volatility × spot × 0.4
//	theoretical = intrinsic + timeValue
//
// Negative days are treated as zero. The result is never negative.
// Pure function, no side effects.
func Estimate(in EstimateInput) decimal.Decimal {
	var intrinsic decimal.Decimal
	if in.Type == model.OptionPut {
		intrinsic = in.StrikePrice.Sub(in.SpotPrice)
	} else {
		intrinsic = in.SpotPrice.Sub(in.StrikePrice)
	}
	if intrinsic.IsNegative() {
		intrinsic = decimal.Zero
	}

	days := in.DaysToExpiry
	if days < 0 {
		days = 0
	}
	sqrtT := decimal.NewFromFloat(math.Sqrt(float64(days) / 365.0))

	timeValue := sqrtT.Mul(in.Volatility).Mul(in.SpotPrice).Mul(timeValueScale)

	price := intrinsic.Add(timeValue).Round(PriceScale)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// FillPrice applies the slippage model to a theoretical price: buys
// fill at ×1.01, sells at ×0.99. Pure function.
func FillPrice(theoretical decimal.Decimal, side model.Side) decimal.Decimal {
	if side == model.SideSell {
		return theoretical.Mul(sellSlippage).Round(PriceScale)
	}
	return theoretical.Mul(buySlippage).Round(PriceScale)
}
