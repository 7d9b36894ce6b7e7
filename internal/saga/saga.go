package saga

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
	"github.com/vaultlink/vaultlink/internal/sched"
	"github.com/vaultlink/vaultlink/internal/wallet"
)

// AmountSpec is either a literal amount or "the entire source balance".
type AmountSpec struct {
	all   bool
	value money.Amount
}

// Exact requests a literal amount.
func Exact(v money.Amount) AmountSpec {
	return AmountSpec{value: v}
}

// All requests the entire balance of the operation's source store, resolved
// against a snapshot read before the saga starts.
func All() AmountSpec {
	return AmountSpec{all: true}
}

// Receipt reports a completed saga: the resolved amount and the new balance
// of the remote account that was touched last.
type Receipt struct {
	Amount        money.Amount
	RemoteBalance money.Amount
}

// Coordinator makes deposit, withdraw and transfer look atomic across the
// wallet and the bank even though the two share no transaction. The store
// that can reject for business reasons is always debited first, so a business
// rejection never needs compensation; a failure on the second leg is
// compensated, and a failed compensation escalates to the operator.
type Coordinator struct {
	wallet wallet.Store
	ledger bank.Ledger
	sched  sched.Scheduler
	log    *slog.Logger
}

// NewCoordinator builds a saga coordinator.
func NewCoordinator(w wallet.Store, l bank.Ledger, s sched.Scheduler, log *slog.Logger) *Coordinator {
	return &Coordinator{wallet: w, ledger: l, sched: s, log: log}
}

// Deposit moves value from the player's wallet into the bank.
func (c *Coordinator) Deposit(ctx context.Context, player game.PlayerID, spec AmountSpec) (Receipt, error) {
	const op = "deposit"

	if !sched.Wait(c.sched, c.wallet.Available) {
		return Receipt{}, failf(KindTransport, op, "wallet plugin not available")
	}

	amount := spec.value
	if spec.all {
		amount = sched.Wait(c.sched, func() money.Amount {
			return c.wallet.Balance(player)
		})
	}
	if !money.Positive(amount) {
		return Receipt{}, failf(KindInvalidAmount, op, "amount must be positive, got %s", amount)
	}

	// Leg 1: wallet debit. A rejection here costs nothing remotely.
	debited := sched.Wait(c.sched, func() bool {
		return c.wallet.Withdraw(player, amount)
	})
	if !debited {
		return Receipt{}, failf(KindInsufficientLocal, op, "wallet balance below %s", amount)
	}

	// Leg 2: bank credit, compensated by re-crediting the wallet on failure.
	balance, err := c.ledger.Deposit(ctx, bank.Transaction{
		Account:    player,
		Amount:     amount,
		Reason:     bank.ReasonDeposit,
		ClientTxID: uuid.NewString(),
	})
	if err != nil && !errors.Is(err, bank.ErrDuplicateTransaction) {
		restored := sched.Wait(c.sched, func() bool {
			return c.wallet.Deposit(player, amount)
		})
		if !restored {
			return Receipt{}, c.escalate(op, player, amount, err)
		}
		return Receipt{}, c.classifyRemote(op, err)
	}

	return Receipt{Amount: amount, RemoteBalance: balance}, nil
}

// Withdraw moves value from the bank into the player's wallet.
func (c *Coordinator) Withdraw(ctx context.Context, player game.PlayerID, spec AmountSpec) (Receipt, error) {
	const op = "withdraw"

	if !sched.Wait(c.sched, c.wallet.Available) {
		return Receipt{}, failf(KindTransport, op, "wallet plugin not available")
	}

	amount := spec.value
	if spec.all {
		snapshot, err := c.ledger.Balance(ctx, player)
		if err != nil {
			return Receipt{}, c.classifyRemote(op, err)
		}
		amount = snapshot
	}
	if !money.Positive(amount) {
		return Receipt{}, failf(KindInvalidAmount, op, "amount must be positive, got %s", amount)
	}

	// Leg 1: bank debit. Insufficient funds surfaces as a business
	// rejection, transport problems need no compensation yet.
	balance, err := c.ledger.Withdraw(ctx, bank.Transaction{
		Account:    player,
		Amount:     amount,
		Reason:     bank.ReasonWithdraw,
		ClientTxID: uuid.NewString(),
	})
	if err != nil && !errors.Is(err, bank.ErrDuplicateTransaction) {
		return Receipt{}, c.classifyRemote(op, err)
	}

	// Leg 2: wallet credit, compensated by refunding the bank on failure.
	credited := sched.Wait(c.sched, func() bool {
		return c.wallet.Deposit(player, amount)
	})
	if !credited {
		_, refundErr := c.ledger.Deposit(ctx, bank.Transaction{
			Account:    player,
			Amount:     amount,
			Reason:     bank.ReasonWithdrawRefund,
			ClientTxID: uuid.NewString(),
		})
		if refundErr != nil && !errors.Is(refundErr, bank.ErrDuplicateTransaction) {
			return Receipt{}, c.escalate(op, player, amount, refundErr)
		}
		return Receipt{}, failf(KindTransport, op, "wallet rejected credit of %s, bank refunded", amount)
	}

	return Receipt{Amount: amount, RemoteBalance: balance}, nil
}

// Transfer moves value between two bank accounts. The recipient only needs an
// identity; it does not have to be online. The wallet is not involved, so the
// only compensation is refunding the sender when the credit leg fails.
func (c *Coordinator) Transfer(ctx context.Context, sender, recipient game.PlayerID, spec AmountSpec) (Receipt, error) {
	const op = "transfer"

	if sender == recipient {
		return Receipt{}, failf(KindInvalidAmount, op, "cannot transfer to yourself")
	}

	amount := spec.value
	if spec.all {
		snapshot, err := c.ledger.Balance(ctx, sender)
		if err != nil {
			return Receipt{}, c.classifyRemote(op, err)
		}
		amount = snapshot
	}
	if !money.Positive(amount) {
		return Receipt{}, failf(KindInvalidAmount, op, "amount must be positive, got %s", amount)
	}

	senderBalance, err := c.ledger.Withdraw(ctx, bank.Transaction{
		Account:    sender,
		Amount:     amount,
		Reason:     bank.ReasonTransfer,
		ClientTxID: uuid.NewString(),
	})
	if err != nil && !errors.Is(err, bank.ErrDuplicateTransaction) {
		return Receipt{}, c.classifyRemote(op, err)
	}

	_, err = c.ledger.Deposit(ctx, bank.Transaction{
		Account:    recipient,
		Amount:     amount,
		Reason:     bank.ReasonTransfer,
		ClientTxID: uuid.NewString(),
	})
	if err != nil && !errors.Is(err, bank.ErrDuplicateTransaction) {
		_, refundErr := c.ledger.Deposit(ctx, bank.Transaction{
			Account:    sender,
			Amount:     amount,
			Reason:     bank.ReasonTransferRefund,
			ClientTxID: uuid.NewString(),
		})
		if refundErr != nil && !errors.Is(refundErr, bank.ErrDuplicateTransaction) {
			return Receipt{}, c.escalate(op, sender, amount, refundErr)
		}
		return Receipt{}, c.classifyRemote(op, err)
	}

	return Receipt{Amount: amount, RemoteBalance: senderBalance}, nil
}

// classifyRemote turns a bank error into the matching failure kind.
func (c *Coordinator) classifyRemote(op string, err error) *Failure {
	if errors.Is(err, bank.ErrInsufficientFunds) {
		return wrap(KindInsufficientRemote, op, err)
	}
	return wrap(KindTransport, op, err)
}

// escalate reports a failed compensation. Funds are now tracked by neither
// store and have to be reconciled by hand; this must never be swallowed.
func (c *Coordinator) escalate(op string, player game.PlayerID, amount money.Amount, err error) *Failure {
	if c.log != nil {
		c.log.Error("compensation failed, manual reconciliation required",
			slog.Bool("reconciliation", true),
			slog.String("op", op),
			slog.String("player", string(player)),
			slog.String("amount", amount.String()),
			slog.Any("error", err))
	}
	return wrap(KindReconciliation, op, err)
}
