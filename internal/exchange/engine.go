package exchange

import (
	"errors"

	"github.com/vaultlink/vaultlink/internal/denom"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
	"github.com/vaultlink/vaultlink/internal/sched"
	"github.com/vaultlink/vaultlink/internal/wallet"
)

var (
	// ErrInvalidAmount rejects zero and negative amounts up front.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNoDenominations means the registry is empty; nothing was mutated.
	ErrNoDenominations = errors.New("no denominations registered")

	// ErrInexact is the exactness violation: the amount cannot be
	// represented by the available denominations. The engine never rounds.
	ErrInexact = errors.New("amount not representable by registered denominations")

	// ErrNothingToDeposit means the presented items carried no registered
	// cash value; nothing was consumed.
	ErrNothingToDeposit = errors.New("no registered cash among items")

	// ErrInsufficientFunds means the wallet balance does not cover the
	// requested cash-out.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrWalletUnavailable disables the engine while the wallet plugin is
	// gone.
	ErrWalletUnavailable = errors.New("wallet plugin not available")

	// ErrCreditRejected means the wallet plugin is loaded but refused the
	// deposit; nothing was consumed.
	ErrCreditRejected = errors.New("wallet rejected the credit")
)

// creditOutcome is the result of a wallet check run on the main-loop
// scheduler, keeping availability and balance rejection distinguishable.
type creditOutcome int

const (
	creditOK creditOutcome = iota
	creditUnavailable
	creditRejected
)

// Engine converts between the continuous wallet balance and discrete physical
// cash, never manufacturing value: credits happen before items are consumed,
// debits only after the output stacks exist.
type Engine struct {
	registry denom.Registry
	wallet   wallet.Store
	sched    sched.Scheduler
}

// NewEngine builds an exchange engine.
func NewEngine(registry denom.Registry, w wallet.Store, s sched.Scheduler) *Engine {
	return &Engine{registry: registry, wallet: w, sched: s}
}

// CashResult reports a cash deposit: the credited total and the item list
// with consumed stacks zeroed out. Unregistered stacks come back untouched.
type CashResult struct {
	Credited money.Amount
	Items    []item.Stack
}

// CashToBalance values the presented stacks against the registry, credits the
// floored total to the wallet, and only then zeroes the matched stacks. A
// total of zero or a rejected credit consumes nothing.
func (e *Engine) CashToBalance(player game.PlayerID, items []item.Stack) (CashResult, error) {
	total := money.Zero()
	matched := make([]bool, len(items))
	for i, s := range items {
		if s.Empty() {
			continue
		}
		face, ok := e.registry.ByItem(s)
		if !ok {
			continue
		}
		total = total.Add(face.Mul(money.FromInt(int64(s.Count))))
		matched[i] = true
	}

	total = money.FloorUnit(total)
	if !money.Positive(total) {
		return CashResult{}, ErrNothingToDeposit
	}

	switch sched.Wait(e.sched, func() creditOutcome {
		if !e.wallet.Available() {
			return creditUnavailable
		}
		if !e.wallet.Deposit(player, total) {
			return creditRejected
		}
		return creditOK
	}) {
	case creditUnavailable:
		return CashResult{}, ErrWalletUnavailable
	case creditRejected:
		return CashResult{}, ErrCreditRejected
	}

	// Credit confirmed; consuming the items can no longer destroy value.
	out := item.Clone(items)
	for i := range out {
		if matched[i] {
			out[i].Count = 0
		}
	}
	return CashResult{Credited: total, Items: out}, nil
}

// BalanceToCash converts amount into physical stacks with a greedy pass over
// the denominations in strictly descending face order. An amount that is not
// exactly representable aborts with ErrInexact and no debit.
func (e *Engine) BalanceToCash(player game.PlayerID, amount money.Amount) ([]item.Stack, error) {
	if !money.Positive(amount) {
		return nil, ErrInvalidAmount
	}

	denoms := e.registry.Descending()
	if len(denoms) == 0 {
		return nil, ErrNoDenominations
	}

	switch sched.Wait(e.sched, func() creditOutcome {
		if !e.wallet.Available() {
			return creditUnavailable
		}
		if e.wallet.Balance(player).LessThan(amount) {
			return creditRejected
		}
		return creditOK
	}) {
	case creditUnavailable:
		return nil, ErrWalletUnavailable
	case creditRejected:
		return nil, ErrInsufficientFunds
	}

	remaining := amount
	var stacks []item.Stack
	for _, d := range denoms {
		count := remaining.Div(d.Value).Floor()
		if !count.IsPositive() {
			continue
		}
		remaining = remaining.Sub(d.Value.Mul(count))
		stacks = append(stacks, d.Item.WithCount(int(count.IntPart())))
	}
	if remaining.IsPositive() {
		return nil, ErrInexact
	}

	// Stacks built; debit exactly the represented amount, which equals the
	// request or the operation would have aborted above.
	debited := sched.Wait(e.sched, func() bool {
		return e.wallet.Withdraw(player, amount)
	})
	if !debited {
		return nil, ErrInsufficientFunds
	}
	return stacks, nil
}
