package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// LegFill is the priced outcome of one leg, input to settlement.
type LegFill struct {
	Side      model.Side
	Quantity  int64
	FillPrice decimal.Decimal
}

// Cost returns the leg's notional: fillPrice × quantity × multiplier.
func (l LegFill) Cost() decimal.Decimal {
	return l.FillPrice.Mul(decimal.NewFromInt(l.Quantity)).Mul(ContractMultiplier)
}

// NetResult classifies a multi-leg order as a debit or credit spread.
// NetCost is signed: positive when the account pays to open (debit),
// negative or zero when it collects premium (credit).
type NetResult struct {
	TotalCost   decimal.Decimal // Σ buy leg notional
	TotalCredit decimal.Decimal // Σ sell leg notional
	NetCost     decimal.Decimal // TotalCost − TotalCredit
	IsDebit     bool            // NetCost > 0
}

// Net aggregates leg costs and credits across all legs of an order.
func Net(legs []LegFill) NetResult {
	var cost, credit decimal.Decimal
	for _, l := range legs {
		if l.Side == model.SideBuy {
			cost = cost.Add(l.Cost())
		} else {
			credit = credit.Add(l.Cost())
		}
	}
	net := cost.Sub(credit)
	return NetResult{
		TotalCost:   cost,
		TotalCredit: credit,
		NetCost:     net,
		IsDebit:     net.IsPositive(),
	}
}

// InsufficientFundsError reports a failed buying-power check, carrying
// the amounts needed for the structured error response.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds: required %s, available %s",
		e.Required, e.Available)
}

// CheckFunds validates buying power for a debit spread. It must run
// before any leg is written: a rejected order leaves no state behind.
// Credit spreads always pass.
func CheckFunds(cashBalance decimal.Decimal, net NetResult) error {
	if net.IsDebit && cashBalance.LessThan(net.NetCost) {
		return &InsufficientFundsError{
			Required:  net.NetCost,
			Available: cashBalance,
		}
	}
	return nil
}

// SettlementResult carries the account fields recomputed after all
// legs of an order have been applied.
type SettlementResult struct {
	CashBalance   decimal.Decimal
	PositionValue decimal.Decimal
	TotalEquity   decimal.Decimal
	TotalPnL      decimal.Decimal
}

// Settle computes the account's new cash balance, total equity, and
// total P&L from the net order cost and the full post-order position
// set. Debit spreads reduce cash by the net cost; credit spreads add
// the absolute net credit.
//
//	totalEquity = cashBalance + Σ markPrice × quantity × multiplier
//	totalPnl    = totalEquity − initialBalance
func Settle(cashBalance, initialBalance decimal.Decimal, net NetResult, positions []model.Position) SettlementResult {
	var newCash decimal.Decimal
	if net.IsDebit {
		newCash = cashBalance.Sub(net.NetCost)
	} else {
		newCash = cashBalance.Add(net.NetCost.Abs())
	}

	posValue := decimal.Zero
	for i := range positions {
		p := &positions[i]
		posValue = posValue.Add(
			p.MarkPrice().Mul(decimal.NewFromInt(p.Quantity)).Mul(ContractMultiplier))
	}

	equity := newCash.Add(posValue)
	return SettlementResult{
		CashBalance:   newCash,
		PositionValue: posValue,
		TotalEquity:   equity,
		TotalPnL:      equity.Sub(initialBalance),
	}
}
