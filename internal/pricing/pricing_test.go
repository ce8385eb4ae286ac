package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// tol is the comparison tolerance for float-derived decimal math.
var tol = decimal.NewFromFloat(1e-6)

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tol)
}

// --- Estimator tests ---

func TestEstimate_AtTheMoneyCall(t *testing.T) {
	got := Estimate(EstimateInput{
		SpotPrice:    d(100),
		StrikePrice:  d(100),
		DaysToExpiry: 30,
		Volatility:   d(0.3),
		Type:         model.OptionCall,
	})

	// intrinsic 0, timeValue = sqrt(30/365) * 0.3 * 100 * 0.4
	want := d(math.Sqrt(30.0/365.0) * 0.3 * 100 * 0.4)
	if !approxEqual(got, want) {
		t.Errorf("ATM call: expected ≈ %s, got %s", want, got)
	}
}

func TestEstimate_InTheMoneyCall(t *testing.T) {
	got := Estimate(EstimateInput{
		SpotPrice:    d(110),
		StrikePrice:  d(100),
		DaysToExpiry: 30,
		Volatility:   d(0.3),
		Type:         model.OptionCall,
	})

	want := d(10 + math.Sqrt(30.0/365.0)*0.3*110*0.4)
	if !approxEqual(got, want) {
		t.Errorf("ITM call: expected ≈ %s, got %s", want, got)
	}
}

func TestEstimate_InTheMoneyPut(t *testing.T) {
	got := Estimate(EstimateInput{
		SpotPrice:    d(90),
		StrikePrice:  d(100),
		DaysToExpiry: 30,
		Volatility:   d(0.3),
		Type:         model.OptionPut,
	})

	want := d(10 + math.Sqrt(30.0/365.0)*0.3*90*0.4)
	if !approxEqual(got, want) {
		t.Errorf("ITM put: expected ≈ %s, got %s", want, got)
	}
}

func TestEstimate_OutOfTheMoneyHasNoIntrinsic(t *testing.T) {
	call := Estimate(EstimateInput{
		SpotPrice:    d(90),
		StrikePrice:  d(100),
		DaysToExpiry: 30,
		Volatility:   d(0.3),
		Type:         model.OptionCall,
	})
	timeValue := d(math.Sqrt(30.0/365.0) * 0.3 * 90 * 0.4)
	if !approxEqual(call, timeValue) {
		t.Errorf("OTM call should be pure time value %s, got %s", timeValue, call)
	}
}

func TestEstimate_ZeroDaysIsIntrinsicOnly(t *testing.T) {
	got := Estimate(EstimateInput{
		SpotPrice:    d(105),
		StrikePrice:  d(100),
		DaysToExpiry: 0,
		Volatility:   d(0.3),
		Type:         model.OptionCall,
	})
	if !approxEqual(got, d(5)) {
		t.Errorf("expected intrinsic 5 at expiry, got %s", got)
	}
}

func TestEstimate_NegativeDaysClampedToZero(t *testing.T) {
	got := Estimate(EstimateInput{
		SpotPrice:    d(100),
		StrikePrice:  d(100),
		DaysToExpiry: -5,
		Volatility:   d(0.3),
		Type:         model.OptionCall,
	})
	if !got.IsZero() {
		t.Errorf("expected 0 for expired ATM call, got %s", got)
	}
}

// Price floor: never negative, for any inputs with days ≥ 0, vol ≥ 0.
func TestEstimate_NeverNegative(t *testing.T) {
	cases := []EstimateInput{
		{SpotPrice: d(0), StrikePrice: d(100), DaysToExpiry: 0, Volatility: d(0), Type: model.OptionCall},
		{SpotPrice: d(1), StrikePrice: d(1000), DaysToExpiry: 0, Volatility: d(0), Type: model.OptionCall},
		{SpotPrice: d(1000), StrikePrice: d(1), DaysToExpiry: 0, Volatility: d(0), Type: model.OptionPut},
		{SpotPrice: d(50), StrikePrice: d(50), DaysToExpiry: 365, Volatility: d(2), Type: model.OptionPut},
		{SpotPrice: d(0.01), StrikePrice: d(0.01), DaysToExpiry: 1, Volatility: d(0.01), Type: model.OptionCall},
	}
	for i, in := range cases {
		if got := Estimate(in); got.IsNegative() {
			t.Errorf("case %d: estimate must be >= 0, got %s", i, got)
		}
	}
}

// --- Fill simulator tests ---

func TestFillPrice_Buy(t *testing.T) {
	got := FillPrice(d(10), model.SideBuy)
	if !approxEqual(got, d(10.1)) {
		t.Errorf("expected 10.1, got %s", got)
	}
}

func TestFillPrice_Sell(t *testing.T) {
	got := FillPrice(d(10), model.SideSell)
	if !approxEqual(got, d(9.9)) {
		t.Errorf("expected 9.9, got %s", got)
	}
}

// Slippage direction: buy fills above theoretical, sell below, both
// within 1% of it.
func TestFillPrice_SlippageBounds(t *testing.T) {
	onePct := d(0.01)
	for _, p := range []decimal.Decimal{d(0.5), d(3.44), d(100), d(12345.678)} {
		buy := FillPrice(p, model.SideBuy)
		sell := FillPrice(p, model.SideSell)

		if !buy.GreaterThan(p) {
			t.Errorf("buy fill %s should exceed theoretical %s", buy, p)
		}
		if !sell.LessThan(p) {
			t.Errorf("sell fill %s should be below theoretical %s", sell, p)
		}

		maxSlip := p.Mul(onePct).Add(tol)
		if buy.Sub(p).GreaterThan(maxSlip) {
			t.Errorf("buy slippage exceeds 1%%: theo=%s fill=%s", p, buy)
		}
		if p.Sub(sell).GreaterThan(maxSlip) {
			t.Errorf("sell slippage exceeds 1%%: theo=%s fill=%s", p, sell)
		}
	}
}

func TestFillPrice_ZeroTheoretical(t *testing.T) {
	if got := FillPrice(decimal.Zero, model.SideBuy); !got.IsZero() {
		t.Errorf("zero theoretical should fill at zero, got %s", got)
	}
}
