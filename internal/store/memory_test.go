package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

var errRollback = errors.New("rollback")

func newTestAccount(t *testing.T, s *MemoryStore, cash int64) *model.Account {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Account{
		Name:           "test",
		CashBalance:    decimal.NewFromInt(cash),
		TotalEquity:    decimal.NewFromInt(cash),
		InitialBalance: decimal.NewFromInt(cash),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func TestWithinTx_RollbackRevertsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	account := newTestAccount(t, s, 1000)

	// Pre-existing position the transaction will delete.
	err := s.UpsertPosition(ctx, &model.Position{
		ID: "existing", AccountID: account.ID, AssetID: 2,
		Quantity: 2, AverageCost: decimal.NewFromInt(5), LastUpdated: now,
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}

	err = s.WithinTx(ctx, func(tx Store) error {
		order := &model.Order{
			ID: "o1", AccountID: account.ID, AssetID: 1,
			OrderType: model.OrderTypeMarket, Side: model.SideBuy,
			Quantity: 1, Status: model.OrderStatusPending,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.MarkOrderFilled(ctx, "o1", 1, decimal.NewFromInt(5), now); err != nil {
			return err
		}
		if err := tx.UpsertPosition(ctx, &model.Position{
			ID: "p1", AccountID: account.ID, AssetID: 1,
			Quantity: 1, AverageCost: decimal.NewFromInt(5), LastUpdated: now,
		}); err != nil {
			return err
		}
		if err := tx.DeletePosition(ctx, account.ID, 2); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalances(ctx, account.ID,
			decimal.NewFromInt(500), decimal.NewFromInt(1000), decimal.Zero, now); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	if orders, _ := s.ListOrdersByAccount(ctx, account.ID); len(orders) != 0 {
		t.Errorf("expected orders rolled back, got %d", len(orders))
	}
	if _, err := s.GetPosition(ctx, account.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected tx position rolled back, got %v", err)
	}

	restored, err := s.GetPosition(ctx, account.ID, 2)
	if err != nil {
		t.Fatalf("expected deleted position restored, got %v", err)
	}
	if restored.Quantity != 2 {
		t.Errorf("expected restored quantity 2, got %d", restored.Quantity)
	}

	after, _ := s.GetAccount(ctx, account.ID)
	if !after.CashBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected cash restored to 1000, got %s", after.CashBalance)
	}
}

func TestWithinTx_RollbackKeepsConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	entered := make(chan struct{})
	created := make(chan struct{})

	// A handler-path write (not inside any transaction) lands while the
	// transaction is open.
	go func() {
		<-entered
		s.CreateAccount(ctx, &model.Account{
			Name: "outside", CashBalance: decimal.NewFromInt(100),
			InitialBalance: decimal.NewFromInt(100), IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		})
		close(created)
	}()

	err := s.WithinTx(ctx, func(tx Store) error {
		if err := tx.CreateAsset(ctx, &model.Asset{Symbol: "SPY", CreatedAt: now}); err != nil {
			return err
		}
		close(entered)
		<-created
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	if _, err := s.GetAccount(ctx, 1); err != nil {
		t.Errorf("concurrent account create was lost on rollback: %v", err)
	}
	if _, err := s.GetAsset(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected tx asset rolled back, got %v", err)
	}
}

func TestWithinTx_CommitKeepsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	account := newTestAccount(t, s, 1000)

	err := s.WithinTx(ctx, func(tx Store) error {
		if err := tx.UpsertPosition(ctx, &model.Position{
			ID: "p1", AccountID: account.ID, AssetID: 1,
			Quantity: 3, AverageCost: decimal.NewFromInt(7), LastUpdated: now,
		}); err != nil {
			return err
		}
		return tx.UpdateAccountBalances(ctx, account.ID,
			decimal.NewFromInt(800), decimal.NewFromInt(1000), decimal.Zero, now)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, err := s.GetPosition(ctx, account.ID, 1)
	if err != nil {
		t.Fatalf("expected committed position, got %v", err)
	}
	if pos.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", pos.Quantity)
	}
	after, _ := s.GetAccount(ctx, account.ID)
	if !after.CashBalance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("expected cash 800, got %s", after.CashBalance)
	}
}
