package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for dev mode and tests. Each account
// carries its own mutex so reservations on different keys do not contend.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount
}

type memAccount struct {
	mu      sync.Mutex
	balance int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memAccount)}
}

func (s *MemoryStore) Create(_ context.Context, initialBalance int64) (string, error) {
	key := uuid.NewString()
	s.mu.Lock()
	s.accounts[key] = &memAccount{balance: initialBalance}
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStore) Reserve(_ context.Context, key string, cost int64) (Reservation, error) {
	s.mu.RLock()
	acc, ok := s.accounts[key]
	s.mu.RUnlock()
	if !ok {
		return Reservation{}, ErrNotFound
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.balance < cost {
		return Reservation{}, &InsufficientError{Balance: acc.balance}
	}
	acc.balance -= cost
	return Reservation{Key: key, Cost: cost, Remaining: acc.balance}, nil
}

func (s *MemoryStore) Balance(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	acc, ok := s.accounts[key]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}
