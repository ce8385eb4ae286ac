package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	assets    map[int64]*model.Asset
	accounts  map[int64]*model.Account
	positions map[string]*model.Position // key: accountID:assetID
	orders    []model.Order

	nextAssetID   int64
	nextAccountID int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:    make(map[int64]*model.Asset),
		accounts:  make(map[int64]*model.Account),
		positions: make(map[string]*model.Position),
	}
}

func positionKey(accountID, assetID int64) string {
	return fmt.Sprintf("%d:%d", accountID, assetID)
}

// --- Assets ---

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		s.nextAssetID++
		a.ID = s.nextAssetID
	} else if a.ID > s.nextAssetID {
		s.nextAssetID = a.ID
	}

	copy := *a
	s.assets[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id int64) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, *a)
	}
	return assets, nil
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		s.nextAccountID++
		a.ID = s.nextAccountID
	} else if a.ID > s.nextAccountID {
		s.nextAccountID = a.ID
	}

	copy := *a
	s.accounts[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) UpdateAccountBalances(_ context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	a.CashBalance = cash
	a.TotalEquity = equity
	a.TotalPnL = pnl
	a.UpdatedAt = at
	return nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, accountID, assetID int64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey(accountID, assetID)]
	if !ok {
		return nil, fmt.Errorf("position %d/%d: %w", accountID, assetID, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, accountID int64) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.AccountID == accountID {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.positions[positionKey(p.AccountID, p.AssetID)] = &copy
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, accountID, assetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, positionKey(accountID, assetID))
	return nil
}

// --- Orders ---

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, *o)
	return nil
}

func (s *MemoryStore) MarkOrderFilled(_ context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == orderID {
			o := &s.orders[i]
			o.Status = model.OrderStatusFilled
			o.FilledQuantity = filledQty
			o.FilledPrice = decimal.NewNullDecimal(filledPrice)
			filledAt := at
			o.FilledAt = &filledAt
			o.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
}

func (s *MemoryStore) ListOrdersByAccount(_ context.Context, accountID int64) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []model.Order
	for _, o := range s.orders {
		if o.AccountID == accountID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// --- Transactions ---

// WithinTx serializes against other transactions and reverts the
// transaction's own writes if fn fails. Writes issued outside the
// transaction while it runs are untouched by a rollback, matching the
// PostgreSQL implementation's isolation of independent sessions.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records an undo entry alongside every write it applies, so
// a rollback removes exactly the transaction's writes and nothing
// else. Each write captures its prior state and mutates under one lock
// section. Reads delegate to the store.
type memoryTx struct {
	s    *MemoryStore
	undo []func()
}

// rollback applies the undo log in reverse. The closures assume the
// store lock is held.
func (t *memoryTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) CreateAsset(_ context.Context, a *model.Asset) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if a.ID == 0 {
		t.s.nextAssetID++
		a.ID = t.s.nextAssetID
	} else if a.ID > t.s.nextAssetID {
		t.s.nextAssetID = a.ID
	}
	c := *a
	t.s.assets[a.ID] = &c

	// IDs are never reused, so the counter is not reverted.
	id := a.ID
	t.undo = append(t.undo, func() { delete(t.s.assets, id) })
	return nil
}

func (t *memoryTx) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	return t.s.GetAsset(ctx, id)
}

func (t *memoryTx) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return t.s.ListAssets(ctx)
}

func (t *memoryTx) CreateAccount(_ context.Context, a *model.Account) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if a.ID == 0 {
		t.s.nextAccountID++
		a.ID = t.s.nextAccountID
	} else if a.ID > t.s.nextAccountID {
		t.s.nextAccountID = a.ID
	}
	c := *a
	t.s.accounts[a.ID] = &c

	id := a.ID
	t.undo = append(t.undo, func() { delete(t.s.accounts, id) })
	return nil
}

func (t *memoryTx) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return t.s.GetAccount(ctx, id)
}

func (t *memoryTx) UpdateAccountBalances(_ context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	a, ok := t.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	prev := *a
	a.CashBalance = cash
	a.TotalEquity = equity
	a.TotalPnL = pnl
	a.UpdatedAt = at

	t.undo = append(t.undo, func() {
		if cur, ok := t.s.accounts[id]; ok {
			*cur = prev
		}
	})
	return nil
}

func (t *memoryTx) GetPosition(ctx context.Context, accountID, assetID int64) (*model.Position, error) {
	return t.s.GetPosition(ctx, accountID, assetID)
}

func (t *memoryTx) ListPositions(ctx context.Context, accountID int64) ([]model.Position, error) {
	return t.s.ListPositions(ctx, accountID)
}

func (t *memoryTx) UpsertPosition(_ context.Context, p *model.Position) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := positionKey(p.AccountID, p.AssetID)
	prev, existed := t.s.positions[key]
	var prevCopy model.Position
	if existed {
		prevCopy = *prev
	}

	c := *p
	t.s.positions[key] = &c

	t.undo = append(t.undo, func() {
		if existed {
			restored := prevCopy
			t.s.positions[key] = &restored
		} else {
			delete(t.s.positions, key)
		}
	})
	return nil
}

func (t *memoryTx) DeletePosition(_ context.Context, accountID, assetID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := positionKey(accountID, assetID)
	prev, existed := t.s.positions[key]
	if !existed {
		return nil
	}
	prevCopy := *prev
	delete(t.s.positions, key)

	t.undo = append(t.undo, func() {
		restored := prevCopy
		t.s.positions[key] = &restored
	})
	return nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o *model.Order) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.s.orders = append(t.s.orders, *o)

	id := o.ID
	t.undo = append(t.undo, func() {
		for i := len(t.s.orders) - 1; i >= 0; i-- {
			if t.s.orders[i].ID == id {
				t.s.orders = append(t.s.orders[:i], t.s.orders[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (t *memoryTx) MarkOrderFilled(_ context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for i := range t.s.orders {
		if t.s.orders[i].ID == orderID {
			prev := t.s.orders[i]
			o := &t.s.orders[i]
			o.Status = model.OrderStatusFilled
			o.FilledQuantity = filledQty
			o.FilledPrice = decimal.NewNullDecimal(filledPrice)
			filledAt := at
			o.FilledAt = &filledAt
			o.UpdatedAt = at

			t.undo = append(t.undo, func() {
				for j := range t.s.orders {
					if t.s.orders[j].ID == orderID {
						t.s.orders[j] = prev
						return
					}
				}
			})
			return nil
		}
	}
	return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
}

func (t *memoryTx) ListOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error) {
	return t.s.ListOrdersByAccount(ctx, accountID)
}

// WithinTx joins the enclosing transaction.
func (t *memoryTx) WithinTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}
