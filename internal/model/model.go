// Package model defines the core domain types shared across the paper
// trading engine. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Valid reports whether the option type is one of the known values.
func (o OptionType) Valid() bool {
	return o == OptionCall || o == OptionPut
}

// Order statuses. Every order in this engine is synchronously filled at
// creation time; there are no resting or partially filled orders.
const (
	OrderStatusPending = "pending"
	OrderStatusFilled  = "filled"
)

// OrderTypeMarket is the only order type the engine executes.
const OrderTypeMarket = "market"

// Asset is an immutable instrument reference. Looked up, never mutated
// by the execution path.
type Asset struct {
	ID        int64     `json:"id" db:"id"`
	Symbol    string    `json:"symbol" db:"symbol"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Account is the root aggregate for all equity and P&L invariants.
// totalEquity = cashBalance + Σ position valuation;
// totalPnl = totalEquity - initialBalance.
type Account struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	CashBalance    decimal.Decimal `json:"cashBalance" db:"cash_balance"`
	TotalEquity    decimal.Decimal `json:"totalEquity" db:"total_equity"`
	TotalPnL       decimal.Decimal `json:"totalPnl" db:"total_pnl"`
	InitialBalance decimal.Decimal `json:"initialBalance" db:"initial_balance"`
	IsActive       bool            `json:"isActive" db:"is_active"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// Position is one row per (account, asset) pair. A position whose
// quantity nets to zero is deleted, never retained at quantity 0.
type Position struct {
	ID            string              `json:"id" db:"id"`
	AccountID     int64               `json:"accountId" db:"account_id"`
	AssetID       int64               `json:"assetId" db:"asset_id"`
	Quantity      int64               `json:"quantity" db:"quantity"`
	AverageCost   decimal.Decimal     `json:"averageCost" db:"average_cost"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice" db:"current_price"`
	UnrealizedPnL decimal.Decimal     `json:"unrealizedPnl" db:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal     `json:"realizedPnl" db:"realized_pnl"`
	LastUpdated   time.Time           `json:"lastUpdated" db:"last_updated"`
}

// MarkPrice returns the price used for valuation: the last known price
// when present, otherwise the cost basis.
func (p *Position) MarkPrice() decimal.Decimal {
	if p.CurrentPrice.Valid {
		return p.CurrentPrice.Decimal
	}
	return p.AverageCost
}

// Order records one leg execution. Created pending and transitioned to
// filled within the same request.
type Order struct {
	ID             string              `json:"id" db:"id"`
	AccountID      int64               `json:"accountId" db:"account_id"`
	AssetID        int64               `json:"assetId" db:"asset_id"`
	OrderType      string              `json:"orderType" db:"order_type"`
	Side           Side                `json:"side" db:"side"`
	Quantity       int64               `json:"quantity" db:"quantity"`
	Status         string              `json:"status" db:"status"`
	FilledQuantity int64               `json:"filledQuantity" db:"filled_quantity"`
	FilledPrice    decimal.NullDecimal `json:"filledPrice" db:"filled_price"`
	CreatedAt      time.Time           `json:"createdAt" db:"created_at"`
	FilledAt       *time.Time          `json:"filledAt,omitempty" db:"filled_at"`
	UpdatedAt      time.Time           `json:"updatedAt" db:"updated_at"`
}
