package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/model"
)

// querier is the subset of pgx operations shared by *pgxpool.Pool and
// pgx.Tx, so the same store methods run inside and outside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool // nil inside a transaction
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// WithinTx runs fn inside a serializable transaction. Nested calls run
// in the enclosing transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Assets ---

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO assets (symbol, created_at) VALUES ($1, $2) RETURNING id`,
		a.Symbol, a.CreatedAt,
	).Scan(&a.ID)
}

func (s *PostgresStore) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	var a model.Asset
	err := s.db.QueryRow(ctx,
		`SELECT id, symbol, created_at FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Symbol, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, symbol, created_at FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO paper_accounts
		   (name, cash_balance, total_equity, total_pnl, initial_balance, is_active, created_at, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)
		 RETURNING id`,
		a.Name,
		a.CashBalance.String(), a.TotalEquity.String(),
		a.TotalPnL.String(), a.InitialBalance.String(),
		a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	var cash, equity, pnl, initial string

	err := s.db.QueryRow(ctx,
		`SELECT id, name,
		        cash_balance::TEXT, total_equity::TEXT, total_pnl::TEXT, initial_balance::TEXT,
		        is_active, created_at, updated_at
		 FROM paper_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &cash, &equity, &pnl, &initial,
			&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}

	a.CashBalance, _ = decimal.NewFromString(cash)
	a.TotalEquity, _ = decimal.NewFromString(equity)
	a.TotalPnL, _ = decimal.NewFromString(pnl)
	a.InitialBalance, _ = decimal.NewFromString(initial)

	return &a, nil
}

func (s *PostgresStore) UpdateAccountBalances(ctx context.Context, id int64, cash, equity, pnl decimal.Decimal, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE paper_accounts
		 SET cash_balance = $2::NUMERIC, total_equity = $3::NUMERIC,
		     total_pnl = $4::NUMERIC, updated_at = $5
		 WHERE id = $1`,
		id, cash.String(), equity.String(), pnl.String(), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, accountID, assetID int64) (*model.Position, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, account_id, asset_id, quantity,
		        average_cost::TEXT, current_price::TEXT,
		        unrealized_pnl::TEXT, realized_pnl::TEXT, last_updated
		 FROM positions WHERE account_id = $1 AND asset_id = $2`,
		accountID, assetID)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %d/%d: %w", accountID, assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %d/%d: %w", accountID, assetID, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, accountID int64) ([]model.Position, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, asset_id, quantity,
		        average_cost::TEXT, current_price::TEXT,
		        unrealized_pnl::TEXT, realized_pnl::TEXT, last_updated
		 FROM positions WHERE account_id = $1 ORDER BY asset_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	var current *string
	if p.CurrentPrice.Valid {
		v := p.CurrentPrice.Decimal.String()
		current = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO positions
		   (id, account_id, asset_id, quantity, average_cost, current_price, unrealized_pnl, realized_pnl, last_updated)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)
		 ON CONFLICT (account_id, asset_id) DO UPDATE SET
		   quantity = EXCLUDED.quantity,
		   average_cost = EXCLUDED.average_cost,
		   current_price = EXCLUDED.current_price,
		   unrealized_pnl = EXCLUDED.unrealized_pnl,
		   realized_pnl = EXCLUDED.realized_pnl,
		   last_updated = EXCLUDED.last_updated`,
		p.ID, p.AccountID, p.AssetID, p.Quantity,
		p.AverageCost.String(), current,
		p.UnrealizedPnL.String(), p.RealizedPnL.String(),
		p.LastUpdated,
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, accountID, assetID int64) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM positions WHERE account_id = $1 AND asset_id = $2`,
		accountID, assetID)
	return err
}

// --- Orders ---

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	var filledPrice *string
	if o.FilledPrice.Valid {
		v := o.FilledPrice.Decimal.String()
		filledPrice = &v
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO orders
		   (id, account_id, asset_id, order_type, side, quantity, status,
		    filled_quantity, filled_price, created_at, filled_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10, $11, $12)`,
		o.ID, o.AccountID, o.AssetID, o.OrderType, string(o.Side),
		o.Quantity, o.Status, o.FilledQuantity, filledPrice,
		o.CreatedAt, o.FilledAt, o.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) MarkOrderFilled(ctx context.Context, orderID string, filledQty int64, filledPrice decimal.Decimal, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders
		 SET status = $2, filled_quantity = $3, filled_price = $4::NUMERIC,
		     filled_at = $5, updated_at = $5
		 WHERE id = $1`,
		orderID, model.OrderStatusFilled, filledQty, filledPrice.String(), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListOrdersByAccount(ctx context.Context, accountID int64) ([]model.Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, asset_id, order_type, side, quantity, status,
		        filled_quantity, filled_price::TEXT, created_at, filled_at, updated_at
		 FROM orders WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var side string
		var filledPrice *string

		if err := rows.Scan(&o.ID, &o.AccountID, &o.AssetID, &o.OrderType,
			&side, &o.Quantity, &o.Status, &o.FilledQuantity,
			&filledPrice, &o.CreatedAt, &o.FilledAt, &o.UpdatedAt); err != nil {
			return nil, err
		}

		o.Side = model.Side(side)
		if filledPrice != nil {
			d, _ := decimal.NewFromString(*filledPrice)
			o.FilledPrice = decimal.NewNullDecimal(d)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// scanPosition reads one position row with NUMERIC fields as text.
func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var avgCost, uPnL, rPnL string
	var current *string

	if err := row.Scan(&p.ID, &p.AccountID, &p.AssetID, &p.Quantity,
		&avgCost, &current, &uPnL, &rPnL, &p.LastUpdated); err != nil {
		return nil, err
	}

	p.AverageCost, _ = decimal.NewFromString(avgCost)
	p.UnrealizedPnL, _ = decimal.NewFromString(uPnL)
	p.RealizedPnL, _ = decimal.NewFromString(rPnL)
	if current != nil {
		d, _ := decimal.NewFromString(*current)
		p.CurrentPrice = decimal.NewNullDecimal(d)
	}

	return &p, nil
}
