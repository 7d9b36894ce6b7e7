package bank

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// InMemory is a concurrency-safe in-process bank used by unit tests. Failure
// injection hooks let tests drive every compensation branch of the saga.
type InMemory struct {
	mu           sync.Mutex
	balances     map[game.PlayerID]money.Amount
	transactions map[string]money.Amount
	loans        []Contract

	failBalance  error
	failDeposit  error
	failWithdraw error
	failLoan     error
}

// NewInMemory creates an empty in-memory bank.
func NewInMemory() *InMemory {
	return &InMemory{
		balances:     make(map[game.PlayerID]money.Amount),
		transactions: make(map[string]money.Amount),
	}
}

func (b *InMemory) Balance(_ context.Context, account game.PlayerID) (money.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(&b.failBalance); err != nil {
		return money.Zero(), err
	}
	return b.balances[account], nil
}

func (b *InMemory) Deposit(_ context.Context, tx Transaction) (money.Amount, error) {
	if !money.Positive(tx.Amount) {
		return money.Zero(), Transportf("rejected deposit of %s", tx.Amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFault(&b.failDeposit); err != nil {
		return money.Zero(), err
	}

	key := tx.Reason + ":" + tx.ClientTxID
	if prev, seen := b.transactions[key]; seen && tx.ClientTxID != "" {
		return prev, ErrDuplicateTransaction
	}

	balance := b.balances[tx.Account].Add(tx.Amount)
	b.balances[tx.Account] = balance
	b.transactions[key] = balance
	return balance, nil
}

func (b *InMemory) Withdraw(_ context.Context, tx Transaction) (money.Amount, error) {
	if !money.Positive(tx.Amount) {
		return money.Zero(), Transportf("rejected withdrawal of %s", tx.Amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFault(&b.failWithdraw); err != nil {
		return money.Zero(), err
	}

	key := tx.Reason + ":" + tx.ClientTxID
	if prev, seen := b.transactions[key]; seen && tx.ClientTxID != "" {
		return prev, ErrDuplicateTransaction
	}

	balance := b.balances[tx.Account]
	if balance.LessThan(tx.Amount) {
		return money.Zero(), ErrInsufficientFunds
	}

	balance = balance.Sub(tx.Amount)
	b.balances[tx.Account] = balance
	b.transactions[key] = balance
	return balance, nil
}

func (b *InMemory) CreateLoan(_ context.Context, c Contract) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(&b.failLoan); err != nil {
		return Record{}, err
	}
	b.loans = append(b.loans, c)
	return Record{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}, nil
}

// takeFault consumes a one-shot injected fault. Caller holds the lock.
func (b *InMemory) takeFault(slot *error) error {
	err := *slot
	*slot = nil
	return err
}
