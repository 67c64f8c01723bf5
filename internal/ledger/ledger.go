// Package ledger implements the credit ledger: a durable key→balance mapping
// with an atomic decrement-if-sufficient reservation primitive.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. NotFound and Insufficient are business outcomes; anything
// else returned by a Store is a transport fault and must not be conflated
// with them.
var (
	ErrNotFound     = errors.New("ledger: account not found")
	ErrInsufficient = errors.New("ledger: insufficient credits")
)

// InsufficientError carries the untouched balance of an account whose
// reservation was refused. errors.Is(err, ErrInsufficient) matches it.
type InsufficientError struct {
	Balance int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("ledger: insufficient credits (balance %d)", e.Balance)
}

func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficient }

// Reservation is the result of a granted Reserve call.
type Reservation struct {
	Key       string
	Cost      int64
	Remaining int64
}

// Store manages per-account credit balances.
//
// Reserve must be linearizable per key: two concurrent calls against a
// balance of 1 with cost 1 must never both be granted. Contention on
// different keys must not serialize against each other.
type Store interface {
	// Create issues a fresh opaque key with the given starting balance.
	// Keys are never reused.
	Create(ctx context.Context, initialBalance int64) (string, error)

	// Reserve atomically checks and decrements the balance for key.
	// Returns ErrNotFound for an unknown key, an *InsufficientError
	// (leaving the balance untouched) when balance < cost, or a
	// Reservation with the post-decrement balance.
	Reserve(ctx context.Context, key string, cost int64) (Reservation, error)

	// Balance is a read-only lookup for diagnostics; it is not on the
	// charge path.
	Balance(ctx context.Context, key string) (int64, error)
}
