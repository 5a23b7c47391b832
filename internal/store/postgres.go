package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/botfolio/portfolio-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Append order is preserved by a per-table BIGSERIAL sequence column:
//
//	CREATE TABLE wallets (
//	    name       TEXT PRIMARY KEY,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE trades (
//	    seq         BIGSERIAL PRIMARY KEY,
//	    id          TEXT NOT NULL,
//	    wallet      TEXT NOT NULL REFERENCES wallets(name),
//	    ts          TIMESTAMPTZ NOT NULL,
//	    action      TEXT NOT NULL,
//	    asset       TEXT NOT NULL,
//	    quantity    NUMERIC NOT NULL,
//	    price       NUMERIC NOT NULL,
//	    total_value NUMERIC NOT NULL,
//	    notes       TEXT NOT NULL DEFAULT ''
//	);
//
// Running balances are never persisted; the ledger recomputes them on load.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateWallet(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (s *PostgresStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM wallets ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) AppendTrade(ctx context.Context, wallet string, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, wallet, ts, action, asset, quantity, price, total_value, notes)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, wallet, t.Timestamp, t.Action, t.Asset,
		t.Quantity.String(), t.Price.String(), t.TotalValue.String(),
		t.Notes,
	)
	if err != nil {
		return fmt.Errorf("append trade to %s: %w", wallet, err)
	}
	return nil
}

func (s *PostgresStore) LoadLedger(ctx context.Context, wallet string) ([]model.Trade, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE name = $1)`, wallet).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, wallet)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet, ts, action, asset,
		        quantity::TEXT, price::TEXT, total_value::TEXT, notes
		 FROM trades WHERE wallet = $1 ORDER BY seq`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var qtyS, priceS, totalS string

		if err := rows.Scan(&t.ID, &t.Wallet, &t.Timestamp, &t.Action, &t.Asset,
			&qtyS, &priceS, &totalS, &t.Notes); err != nil {
			return nil, err
		}

		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.TotalValue, _ = decimal.NewFromString(totalS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
