package account

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]ServerAccount
}

// NewMemoryRepository builds an in-memory account store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]ServerAccount)}
}

func (r *memoryRepository) Create(_ context.Context, acc ServerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acc.ID]; exists {
		return errors.New("account exists")
	}
	r.accounts[acc.ID] = acc
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (ServerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return ServerAccount{}, errors.New("account not found")
	}
	return acc, nil
}

func (r *memoryRepository) TouchLastSeen(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	acc.LastSeen = time.Now().UTC()
	r.accounts[id] = acc
	return nil
}
