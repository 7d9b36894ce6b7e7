package wallet

import (
	"sync"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// MemoryStore is an in-process wallet backend for tests and for servers that
// run without an external economy plugin.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[game.PlayerID]money.Amount
	available bool
}

// NewMemoryStore constructs an available, empty wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[game.PlayerID]money.Amount), available: true}
}

// SetAvailable toggles plugin availability, mirroring a plugin being unloaded.
func (m *MemoryStore) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = ok
}

// Seed sets a player's balance directly. Test helper.
func (m *MemoryStore) Seed(player game.PlayerID, amount money.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[player] = amount
}

func (m *MemoryStore) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *MemoryStore) Balance(player game.PlayerID) money.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[player]
}

func (m *MemoryStore) Deposit(player game.PlayerID, amount money.Amount) bool {
	if !money.Positive(amount) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return false
	}
	m.balances[player] = m.balances[player].Add(amount)
	return true
}

func (m *MemoryStore) Withdraw(player game.PlayerID, amount money.Amount) bool {
	if !money.Positive(amount) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return false
	}
	current := m.balances[player]
	if current.LessThan(amount) {
		return false
	}
	m.balances[player] = current.Sub(amount)
	return true
}
