// Package ledger implements the position merge and account settlement
// math for the paper trading engine. All functions are pure: they take
// current state and a fill, and return the new state. Persistence is
// the caller's concern.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

var (
	// ErrNoPositionToSell is returned when a sell leg references an
	// asset the account holds no position in. Short selling is not
	// supported: sells only reduce or close existing inventory.
	ErrNoPositionToSell = errors.New("ledger: no open position to sell")

	// ErrSellExceedsPosition is returned when a sell leg's quantity is
	// larger than the open position, which would flip the position
	// through zero into a short.
	ErrSellExceedsPosition = errors.New("ledger: sell quantity exceeds open position")

	// ErrInvalidQuantity is returned for non-positive fill quantities.
	ErrInvalidQuantity = errors.New("ledger: fill quantity must be positive")
)

// ContractMultiplier converts a per-unit option price into per-contract
// notional. One contract covers 100 units of the underlying.
var ContractMultiplier = decimal.NewFromInt(100)

// Action describes the row write a merge requires.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MergeResult is the outcome of applying one fill to a position.
// For ActionDelete, Position carries the closed position's identifiers
// and RealizedPnL the profit realized on the closed quantity.
type MergeResult struct {
	Action      Action
	Position    model.Position
	RealizedPnL decimal.Decimal
}

// Merge applies a fill to the account's position in one asset and
// returns the new position state.
//
//   - no position + buy: open at the fill price
//   - no position + sell: ErrNoPositionToSell
//   - fill nets quantity to exactly zero: delete the position and
//     realize (fill − averageCost) × closedQty × multiplier
//   - otherwise: recompute the weighted average cost from the signed
//     cost basis, mark at the fill price, and recompute unrealized P&L
//
// Note the partial-close basis formula blends the realized portion of
// a gain or loss into the remaining basis rather than leaving basis
// unchanged; this matches the single-asset position endpoint.
func Merge(existing *model.Position, accountID, assetID int64, side model.Side, fillQty int64, fillPrice decimal.Decimal, now time.Time) (MergeResult, error) {
	if fillQty <= 0 {
		return MergeResult{}, ErrInvalidQuantity
	}
	qty := decimal.NewFromInt(fillQty)

	if existing == nil {
		if side == model.SideSell {
			return MergeResult{}, ErrNoPositionToSell
		}
		return MergeResult{
			Action: ActionCreate,
			Position: model.Position{
				ID:            uuid.New().String(),
				AccountID:     accountID,
				AssetID:       assetID,
				Quantity:      fillQty,
				AverageCost:   fillPrice,
				CurrentPrice:  decimal.NewNullDecimal(fillPrice),
				UnrealizedPnL: decimal.Zero,
				RealizedPnL:   decimal.Zero,
				LastUpdated:   now,
			},
		}, nil
	}

	var newQty int64
	if side == model.SideBuy {
		newQty = existing.Quantity + fillQty
	} else {
		if fillQty > existing.Quantity {
			return MergeResult{}, ErrSellExceedsPosition
		}
		newQty = existing.Quantity - fillQty
	}

	if newQty == 0 {
		realized := fillPrice.Sub(existing.AverageCost).
			Mul(qty).Mul(ContractMultiplier)
		closed := *existing
		closed.Quantity = 0
		closed.CurrentPrice = decimal.NewNullDecimal(fillPrice)
		closed.RealizedPnL = existing.RealizedPnL.Add(realized)
		closed.LastUpdated = now
		return MergeResult{
			Action:      ActionDelete,
			Position:    closed,
			RealizedPnL: realized,
		}, nil
	}

	oldQty := decimal.NewFromInt(existing.Quantity)
	signedQty := qty
	if side == model.SideSell {
		signedQty = qty.Neg()
	}
	totalBasis := existing.AverageCost.Mul(oldQty).Add(fillPrice.Mul(signedQty))
	newAvg := totalBasis.Div(decimal.NewFromInt(newQty)).Abs()

	updated := *existing
	updated.Quantity = newQty
	updated.AverageCost = newAvg
	updated.CurrentPrice = decimal.NewNullDecimal(fillPrice)
	updated.UnrealizedPnL = fillPrice.Sub(newAvg).Mul(decimal.NewFromInt(newQty))
	updated.LastUpdated = now

	return MergeResult{Action: ActionUpdate, Position: updated}, nil
}
