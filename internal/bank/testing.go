package bank

import (
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// SeedBalance sets an account balance directly on the in-memory bank.
func SeedBalance(l Ledger, account game.PlayerID, amount money.Amount) {
	if mem, ok := l.(*InMemory); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[account] = amount
	}
}

// FailNextBalance makes the next Balance call on the in-memory bank fail.
func (b *InMemory) FailNextBalance(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failBalance = err
}

// FailNextDeposit makes the next Deposit call fail.
func (b *InMemory) FailNextDeposit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDeposit = err
}

// FailNextWithdraw makes the next Withdraw call fail.
func (b *InMemory) FailNextWithdraw(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWithdraw = err
}

// FailNextLoan makes the next CreateLoan call fail.
func (b *InMemory) FailNextLoan(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLoan = err
}

// LoanCount returns how many loans the in-memory bank recorded.
func (b *InMemory) LoanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loans)
}

// LastLoan returns the most recently recorded loan contract.
func (b *InMemory) LastLoan() (Contract, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.loans) == 0 {
		return Contract{}, false
	}
	return b.loans[len(b.loans)-1], true
}
