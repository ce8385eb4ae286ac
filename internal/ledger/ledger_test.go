package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var tol = decimal.NewFromFloat(1e-6)

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tol)
}

var now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func openPosition(qty int64, avgCost float64) *model.Position {
	return &model.Position{
		ID:          "pos-1",
		AccountID:   1,
		AssetID:     1,
		Quantity:    qty,
		AverageCost: d(avgCost),
		LastUpdated: now,
	}
}

// --- Merge tests ---

func TestMerge_OpenNewPosition(t *testing.T) {
	res, err := Merge(nil, 1, 1, model.SideBuy, 2, d(3.5), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Action != ActionCreate {
		t.Errorf("expected create, got %s", res.Action)
	}
	p := res.Position
	if p.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", p.Quantity)
	}
	if !p.AverageCost.Equal(d(3.5)) {
		t.Errorf("expected averageCost 3.5, got %s", p.AverageCost)
	}
	if !p.CurrentPrice.Valid || !p.CurrentPrice.Decimal.Equal(d(3.5)) {
		t.Errorf("expected currentPrice 3.5, got %v", p.CurrentPrice)
	}
	if !p.UnrealizedPnL.IsZero() {
		t.Errorf("new position should have zero unrealized P&L, got %s", p.UnrealizedPnL)
	}
	if p.ID == "" {
		t.Error("expected a generated position ID")
	}
}

func TestMerge_SellWithoutPosition(t *testing.T) {
	_, err := Merge(nil, 1, 1, model.SideSell, 1, d(5), now)
	if !errors.Is(err, ErrNoPositionToSell) {
		t.Errorf("expected ErrNoPositionToSell, got %v", err)
	}
}

func TestMerge_SellExceedsPosition(t *testing.T) {
	_, err := Merge(openPosition(2, 5), 1, 1, model.SideSell, 3, d(5), now)
	if !errors.Is(err, ErrSellExceedsPosition) {
		t.Errorf("expected ErrSellExceedsPosition, got %v", err)
	}
}

func TestMerge_ZeroQuantity(t *testing.T) {
	_, err := Merge(nil, 1, 1, model.SideBuy, 0, d(5), now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

// Weighted average cost across a sequence of same-direction fills must
// equal the quantity-weighted mean of the fill prices.
func TestMerge_WeightedAverageCost(t *testing.T) {
	res, err := Merge(nil, 1, 1, model.SideBuy, 2, d(4), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err = Merge(&res.Position, 1, 1, model.SideBuy, 3, d(6), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err = Merge(&res.Position, 1, 1, model.SideBuy, 5, d(5), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// (2*4 + 3*6 + 5*5) / 10 = 5.1
	if !approxEqual(res.Position.AverageCost, d(5.1)) {
		t.Errorf("expected averageCost 5.1, got %s", res.Position.AverageCost)
	}
	if res.Position.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", res.Position.Quantity)
	}
}

func TestMerge_FullCloseDeletesAndRealizes(t *testing.T) {
	res, err := Merge(openPosition(2, 5), 1, 1, model.SideSell, 2, d(6), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Action != ActionDelete {
		t.Errorf("expected delete, got %s", res.Action)
	}
	// (6 - 5) * 2 * 100 = 200
	if !approxEqual(res.RealizedPnL, d(200)) {
		t.Errorf("expected realized P&L 200, got %s", res.RealizedPnL)
	}
}

// Partial reduction blends the realized portion into the remaining
// basis: basis = 4*5 - 4.5*2 = 11, avg = 11/3 ≈ 3.6667.
func TestMerge_PartialReduction(t *testing.T) {
	res, err := Merge(openPosition(5, 4), 1, 1, model.SideSell, 2, d(4.5), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Action != ActionUpdate {
		t.Errorf("expected update, got %s", res.Action)
	}
	p := res.Position
	if p.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", p.Quantity)
	}
	want := d(11.0).Div(d(3))
	if !approxEqual(p.AverageCost, want) {
		t.Errorf("expected averageCost ≈ %s, got %s", want, p.AverageCost)
	}
	// unrealized = (4.5 - 11/3) * 3 = 2.5
	if !approxEqual(p.UnrealizedPnL, d(2.5)) {
		t.Errorf("expected unrealized P&L 2.5, got %s", p.UnrealizedPnL)
	}
}

func TestMerge_BuyIntoExisting(t *testing.T) {
	res, err := Merge(openPosition(1, 3), 1, 1, model.SideBuy, 1, d(5), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := res.Position
	if p.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", p.Quantity)
	}
	if !approxEqual(p.AverageCost, d(4)) {
		t.Errorf("expected averageCost 4, got %s", p.AverageCost)
	}
	// unrealized = (5 - 4) * 2 = 2
	if !approxEqual(p.UnrealizedPnL, d(2)) {
		t.Errorf("expected unrealized P&L 2, got %s", p.UnrealizedPnL)
	}
}

// --- Net / classification tests ---

func TestNet_DebitSpread(t *testing.T) {
	net := Net([]LegFill{
		{Side: model.SideBuy, Quantity: 1, FillPrice: d(3)},
		{Side: model.SideBuy, Quantity: 1, FillPrice: d(2)},
	})

	if !net.TotalCost.Equal(d(500)) {
		t.Errorf("expected totalCost 500, got %s", net.TotalCost)
	}
	if !net.TotalCredit.IsZero() {
		t.Errorf("expected totalCredit 0, got %s", net.TotalCredit)
	}
	if !net.NetCost.Equal(d(500)) {
		t.Errorf("expected netCost 500, got %s", net.NetCost)
	}
	if !net.IsDebit {
		t.Error("expected debit classification")
	}
}

func TestNet_CreditSpread(t *testing.T) {
	net := Net([]LegFill{
		{Side: model.SideBuy, Quantity: 1, FillPrice: d(2)},
		{Side: model.SideSell, Quantity: 1, FillPrice: d(3)},
	})

	if !net.NetCost.Equal(d(-100)) {
		t.Errorf("expected netCost -100, got %s", net.NetCost)
	}
	if net.IsDebit {
		t.Error("expected credit classification")
	}
}

func TestNet_ZeroNetIsCredit(t *testing.T) {
	net := Net([]LegFill{
		{Side: model.SideBuy, Quantity: 1, FillPrice: d(3)},
		{Side: model.SideSell, Quantity: 1, FillPrice: d(3)},
	})
	if net.IsDebit {
		t.Error("netCost == 0 must classify as credit")
	}
}

// --- Funds check tests ---

func TestCheckFunds_Insufficient(t *testing.T) {
	net := Net([]LegFill{{Side: model.SideBuy, Quantity: 1, FillPrice: d(3.277)}})

	err := CheckFunds(d(100), net)
	var ife *InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !approxEqual(ife.Required, d(327.7)) {
		t.Errorf("expected required 327.7, got %s", ife.Required)
	}
	if !ife.Available.Equal(d(100)) {
		t.Errorf("expected available 100, got %s", ife.Available)
	}
}

func TestCheckFunds_SufficientDebit(t *testing.T) {
	net := Net([]LegFill{{Side: model.SideBuy, Quantity: 1, FillPrice: d(3)}})
	if err := CheckFunds(d(300), net); err != nil {
		t.Errorf("exactly-sufficient cash should pass, got %v", err)
	}
}

func TestCheckFunds_CreditAlwaysPasses(t *testing.T) {
	net := Net([]LegFill{{Side: model.SideSell, Quantity: 10, FillPrice: d(3)}})
	if err := CheckFunds(d(0), net); err != nil {
		t.Errorf("credit spread should never fail funds check, got %v", err)
	}
}

// --- Settlement tests ---

func TestSettle_DebitReducesCash(t *testing.T) {
	net := Net([]LegFill{{Side: model.SideBuy, Quantity: 1, FillPrice: d(3.277)}})
	positions := []model.Position{{
		Quantity:     1,
		AverageCost:  d(3.277),
		CurrentPrice: decimal.NewNullDecimal(d(3.277)),
	}}

	res := Settle(d(10000), d(10000), net, positions)

	if !approxEqual(res.CashBalance, d(10000-327.7)) {
		t.Errorf("expected cash 9672.3, got %s", res.CashBalance)
	}
	if !approxEqual(res.PositionValue, d(327.7)) {
		t.Errorf("expected position value 327.7, got %s", res.PositionValue)
	}
}

func TestSettle_CreditAddsCash(t *testing.T) {
	net := Net([]LegFill{{Side: model.SideSell, Quantity: 2, FillPrice: d(6)}})

	res := Settle(d(1000), d(1000), net, nil)

	if !approxEqual(res.CashBalance, d(2200)) {
		t.Errorf("expected cash 2200, got %s", res.CashBalance)
	}
}

// Equity identity: totalEquity == cash + Σ position valuation, exactly.
func TestSettle_EquityIdentity(t *testing.T) {
	net := Net([]LegFill{
		{Side: model.SideBuy, Quantity: 3, FillPrice: d(2.5)},
		{Side: model.SideSell, Quantity: 1, FillPrice: d(4)},
	})
	positions := []model.Position{
		{Quantity: 3, AverageCost: d(2.5), CurrentPrice: decimal.NewNullDecimal(d(2.6))},
		{Quantity: 2, AverageCost: d(7)}, // no current price: marks at cost
	}

	res := Settle(d(5000), d(5000), net, positions)

	wantValue := d(2.6).Mul(d(3)).Mul(d(100)).Add(d(7).Mul(d(2)).Mul(d(100)))
	if !res.PositionValue.Equal(wantValue) {
		t.Errorf("expected position value %s, got %s", wantValue, res.PositionValue)
	}
	if !res.TotalEquity.Equal(res.CashBalance.Add(res.PositionValue)) {
		t.Errorf("equity identity violated: equity=%s cash=%s value=%s",
			res.TotalEquity, res.CashBalance, res.PositionValue)
	}
	if !res.TotalPnL.Equal(res.TotalEquity.Sub(d(5000))) {
		t.Errorf("P&L identity violated: pnl=%s equity=%s", res.TotalPnL, res.TotalEquity)
	}
}

func TestLegFill_Cost(t *testing.T) {
	cost := LegFill{Side: model.SideBuy, Quantity: 2, FillPrice: d(3.5)}.Cost()
	if !cost.Equal(d(700)) {
		t.Errorf("expected 700, got %s", cost)
	}
}
