// Package risk enforces position limits on paper accounts.
//
// Paper accounts are meant for strategy rehearsal, not for piling an
// unbounded number of contracts into one name. The limiter caps the
// open quantity per asset and the aggregate contract count across the
// whole account.
package risk

import (
	"errors"
)

var (
	// ErrPerAssetLimitExceeded is returned when an order would push a
	// single asset's open quantity beyond the per-asset maximum.
	ErrPerAssetLimitExceeded = errors.New("risk: per-asset position limit exceeded")

	// ErrAccountExposureExceeded is returned when an order would push
	// the aggregate open contract count across the account beyond the
	// account maximum.
	ErrAccountExposureExceeded = errors.New("risk: account exposure limit exceeded")
)

// Limiter enforces per-asset and account-wide contract limits.
type Limiter struct {
	// MaxPerAsset is the maximum absolute open quantity in any single asset.
	MaxPerAsset int64

	// MaxAccountContracts is the maximum aggregate absolute open
	// quantity summed across all assets in the account.
	MaxAccountContracts int64
}

// NewLimiter creates a limiter with the given per-asset and account
// exposure limits.
func NewLimiter(maxPerAsset, maxAccountContracts int64) *Limiter {
	return &Limiter{
		MaxPerAsset:         maxPerAsset,
		MaxAccountContracts: maxAccountContracts,
	}
}

// Check validates whether applying quantityDelta to one asset respects
// the limits.
//
// Parameters:
//   - assetID: asset being traded
//   - quantityDelta: signed change in open quantity (+buy / −sell)
//   - openQuantities: map of asset ID → current open quantity
//
// Returns nil if the order is within limits.
func (l *Limiter) Check(assetID int64, quantityDelta int64, openQuantities map[int64]int64) error {
	newQty := openQuantities[assetID] + quantityDelta
	if abs(newQty) > l.MaxPerAsset {
		return ErrPerAssetLimitExceeded
	}

	total := abs(newQty)
	for id, qty := range openQuantities {
		if id == assetID {
			continue // already counted via newQty above
		}
		total += abs(qty)
	}
	if total > l.MaxAccountContracts {
		return ErrAccountExposureExceeded
	}

	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
