package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists trades in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS swap_trades (
    id BIGSERIAL PRIMARY KEY,
    wallet TEXT NOT NULL,
    token_in TEXT NOT NULL,
    token_out TEXT NOT NULL,
    amount_in NUMERIC(78, 0) NOT NULL,
    min_amount_out NUMERIC(78, 0) NOT NULL,
    tx_hash TEXT NOT NULL DEFAULT '',
    gas_used BIGINT NOT NULL DEFAULT 0,
    fee NUMERIC(78, 0),
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS swap_trades_created_at_idx ON swap_trades (created_at DESC);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Save(ctx context.Context, trade Trade) (Trade, error) {
	var fee *string
	if trade.Fee != "" {
		fee = &trade.Fee
	}
	err := p.pool.QueryRow(ctx, `
INSERT INTO swap_trades (wallet, token_in, token_out, amount_in, min_amount_out, tx_hash, gas_used, fee, status, error, created_at)
VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7, $8::text::numeric, $9, $10, $11)
RETURNING id
`, trade.Wallet, trade.TokenIn, trade.TokenOut, trade.AmountIn, trade.MinAmountOut,
		trade.TxHash, int64(trade.GasUsed), fee, trade.Status, trade.Error, trade.CreatedAt).Scan(&trade.ID)
	if err != nil {
		return Trade{}, err
	}
	return trade, nil
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, wallet, token_in, token_out, amount_in::text, min_amount_out::text,
       tx_hash, gas_used, COALESCE(fee::text, ''), status, error, created_at
FROM swap_trades
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var gas int64
		if err := rows.Scan(&t.ID, &t.Wallet, &t.TokenIn, &t.TokenOut, &t.AmountIn, &t.MinAmountOut,
			&t.TxHash, &gas, &t.Fee, &t.Status, &t.Error, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.GasUsed = uint64(gas)
		out = append(out, t)
	}
	return out, rows.Err()
}
