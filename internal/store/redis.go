package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache for accounts, assets, and position sets. Writes go
// to the primary store and invalidate the cache; reads check Redis
// first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(id)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(id), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(id), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, accountID int64) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(accountID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(accountID), data, s.ttl)
	}
	return positions, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	return s.primary.CreateAsset(ctx, a)
}

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	return s.primary.CreateAccount(ctx, a)
}

func (s *CachedStore) UpdateAccountBalances(ctx context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error {
	if err := s.primary.UpdateAccountBalances(ctx, id, cash, equity, pnl, at); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, accountKey(id))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.AccountID))
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, accountID, assetID int64) error {
	if err := s.primary.DeletePosition(ctx, accountID, assetID); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(accountID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx)
}

func (s *CachedStore) GetPosition(ctx context.Context, accountID, assetID int64) (*model.Position, error) {
	return s.primary.GetPosition(ctx, accountID, assetID)
}

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.Order) error {
	return s.primary.InsertOrder(ctx, o)
}

func (s *CachedStore) MarkOrderFilled(ctx context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error {
	return s.primary.MarkOrderFilled(ctx, orderID, filledQty, filledPrice, at)
}

func (s *CachedStore) ListOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error) {
	return s.primary.ListOrdersByAccount(ctx, accountID)
}

// --- Transactions ---

// WithinTx delegates to the primary's transaction. Reads inside the
// transaction bypass the cache entirely: populating Redis with
// uncommitted rows would leak them to concurrent requests, and a
// rollback would leave phantoms behind for the full TTL. Cache keys
// touched by transactional writes are invalidated only after the
// primary commits.
func (s *CachedStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	view := &txCacheView{}
	err := s.primary.WithinTx(ctx, func(tx Store) error {
		view.tx = tx
		return fn(view)
	})
	if err != nil {
		return err
	}
	if len(view.stale) > 0 {
		s.rdb.Del(ctx, view.stale...)
	}
	return nil
}

// txCacheView is the Store handed to WithinTx callbacks. Every call
// goes straight to the transactional primary; it only records which
// cache keys the transaction's writes made stale.
type txCacheView struct {
	tx    Store
	stale []string
}

func (v *txCacheView) invalidate(key string) {
	for _, k := range v.stale {
		if k == key {
			return
		}
	}
	v.stale = append(v.stale, key)
}

func (v *txCacheView) CreateAsset(ctx context.Context, a *model.Asset) error {
	return v.tx.CreateAsset(ctx, a)
}

func (v *txCacheView) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	return v.tx.GetAsset(ctx, id)
}

func (v *txCacheView) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return v.tx.ListAssets(ctx)
}

func (v *txCacheView) CreateAccount(ctx context.Context, a *model.Account) error {
	return v.tx.CreateAccount(ctx, a)
}

func (v *txCacheView) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return v.tx.GetAccount(ctx, id)
}

func (v *txCacheView) UpdateAccountBalances(ctx context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error {
	if err := v.tx.UpdateAccountBalances(ctx, id, cash, equity, pnl, at); err != nil {
		return err
	}
	v.invalidate(accountKey(id))
	return nil
}

func (v *txCacheView) GetPosition(ctx context.Context, accountID, assetID int64) (*model.Position, error) {
	return v.tx.GetPosition(ctx, accountID, assetID)
}

func (v *txCacheView) ListPositions(ctx context.Context, accountID int64) ([]model.Position, error) {
	return v.tx.ListPositions(ctx, accountID)
}

func (v *txCacheView) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := v.tx.UpsertPosition(ctx, p); err != nil {
		return err
	}
	v.invalidate(positionsKey(p.AccountID))
	return nil
}

func (v *txCacheView) DeletePosition(ctx context.Context, accountID, assetID int64) error {
	if err := v.tx.DeletePosition(ctx, accountID, assetID); err != nil {
		return err
	}
	v.invalidate(positionsKey(accountID))
	return nil
}

func (v *txCacheView) InsertOrder(ctx context.Context, o *model.Order) error {
	return v.tx.InsertOrder(ctx, o)
}

func (v *txCacheView) MarkOrderFilled(ctx context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error {
	return v.tx.MarkOrderFilled(ctx, orderID, filledQty, filledPrice, at)
}

func (v *txCacheView) ListOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error) {
	return v.tx.ListOrdersByAccount(ctx, accountID)
}

// WithinTx joins the enclosing transaction.
func (v *txCacheView) WithinTx(_ context.Context, fn func(Store) error) error {
	return fn(v)
}

// --- Cache keys ---

func assetKey(id int64) string     { return fmt.Sprintf("asset:%d", id) }
func accountKey(id int64) string   { return fmt.Sprintf("account:%d", id) }
func positionsKey(id int64) string { return fmt.Sprintf("positions:%d", id) }
