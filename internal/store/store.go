// Package store defines the persistence interface for the paper
// trading engine. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// ErrNotFound is returned (wrapped) when a referenced row does not
// exist. Callers distinguish it from infrastructure failures with
// errors.Is.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// --- Asset reference data ---

	// CreateAsset persists a new asset and assigns its ID.
	CreateAsset(ctx context.Context, a *model.Asset) error

	// GetAsset retrieves an asset by ID.
	GetAsset(ctx context.Context, id int64) (*model.Asset, error)

	// ListAssets returns all assets.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// --- Accounts ---

	// CreateAccount persists a new paper account and assigns its ID.
	CreateAccount(ctx context.Context, a *model.Account) error

	// GetAccount retrieves an account by ID.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// UpdateAccountBalances writes the settled cash, equity, and P&L.
	UpdateAccountBalances(ctx context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error

	// --- Positions ---

	// GetPosition retrieves the account's position in one asset.
	GetPosition(ctx context.Context, accountID, assetID int64) (*model.Position, error)

	// ListPositions returns all open positions for an account.
	ListPositions(ctx context.Context, accountID int64) ([]model.Position, error)

	// UpsertPosition inserts or replaces the (account, asset) position.
	UpsertPosition(ctx context.Context, p *model.Position) error

	// DeletePosition removes a position that has netted to zero.
	DeletePosition(ctx context.Context, accountID, assetID int64) error

	// --- Orders ---

	// InsertOrder persists a new order row.
	InsertOrder(ctx context.Context, o *model.Order) error

	// MarkOrderFilled transitions an order to filled with its fill.
	MarkOrderFilled(ctx context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error

	// ListOrdersByAccount returns all orders for an account.
	ListOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error)

	// --- Transactions ---

	// WithinTx runs fn against a transactional view of the store. All
	// writes issued through the view commit together or not at all.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
