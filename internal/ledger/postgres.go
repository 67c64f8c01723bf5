package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps balances in a single table. Reserve is one conditional
// UPDATE, so the row lock makes check-and-decrement atomic per account while
// different accounts proceed independently.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the accounts table name (default "ledger_accounts").
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) { s.table = name }
}

func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool, table: "ledger_accounts"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the accounts table if it does not exist. Safe to run
// on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			balance BIGINT NOT NULL CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ledger/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, initialBalance int64) (string, error) {
	key := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, balance) VALUES ($1, $2)`, s.table),
		key, initialBalance,
	)
	if err != nil {
		return "", fmt.Errorf("ledger/postgres: create: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) Reserve(ctx context.Context, key string, cost int64) (Reservation, error) {
	var remaining int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET balance = balance - $2
			WHERE key = $1 AND balance >= $2
			RETURNING balance`, s.table),
		key, cost,
	).Scan(&remaining)
	if err == nil {
		return Reservation{Key: key, Cost: cost, Remaining: remaining}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, fmt.Errorf("ledger/postgres: reserve: %w", err)
	}

	// No row matched: either the key is unknown or the balance is short.
	// The follow-up read is diagnostic only; the grant path above is the
	// single atomic step.
	var balance int64
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT balance FROM %s WHERE key = $1`, s.table),
		key,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("ledger/postgres: reserve lookup: %w", err)
	}
	return Reservation{}, &InsufficientError{Balance: balance}
}

func (s *PostgresStore) Balance(ctx context.Context, key string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT balance FROM %s WHERE key = $1`, s.table),
		key,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ledger/postgres: balance: %w", err)
	}
	return balance, nil
}
