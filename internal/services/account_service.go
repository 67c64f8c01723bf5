package services

import (
	"context"
	"errors"

	"github.com/meterly/datagate/internal/ledger"
)

// ErrInvalidCredits rejects negative starting balances at provisioning time.
var ErrInvalidCredits = errors.New("initial credits must be >= 0")

// AccountService provisions accounts: a fresh opaque key with a starting
// balance. It has no quota check of its own.
type AccountService struct {
	ledger ledger.Store
}

func NewAccountService(l ledger.Store) *AccountService {
	return &AccountService{ledger: l}
}

func (s *AccountService) Create(ctx context.Context, initialCredits int64) (string, error) {
	if initialCredits < 0 {
		return "", ErrInvalidCredits
	}
	return s.ledger.Create(ctx, initialCredits)
}
