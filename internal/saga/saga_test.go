package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/money"
	"github.com/vaultlink/vaultlink/internal/sched"
	"github.com/vaultlink/vaultlink/internal/wallet"
)

const player = game.PlayerID("11111111-1111-1111-1111-111111111111")

// flakyWallet rejects the next deposit, simulating a wallet plugin refusing a
// credit mid-saga.
type flakyWallet struct {
	*wallet.MemoryStore
	failDeposit bool
}

func (w *flakyWallet) Deposit(p game.PlayerID, a money.Amount) bool {
	if w.failDeposit {
		w.failDeposit = false
		return false
	}
	return w.MemoryStore.Deposit(p, a)
}

func newCoordinator(w wallet.Store, b bank.Ledger) *Coordinator {
	return NewCoordinator(w, b, sched.Sync{}, logging.Discard())
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	return f.Kind
}

func TestDepositMovesValueAndConservesSum(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	w.Seed(player, money.FromInt(100))
	c := newCoordinator(w, b)

	receipt, err := c.Deposit(context.Background(), player, Exact(money.FromInt(40)))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !receipt.RemoteBalance.Equal(money.FromInt(40)) {
		t.Fatalf("expected bank balance 40, got %s", receipt.RemoteBalance)
	}
	if got := w.Balance(player); !got.Equal(money.FromInt(60)) {
		t.Fatalf("expected wallet balance 60, got %s", got)
	}
	bankBal, _ := b.Balance(context.Background(), player)
	if sum := w.Balance(player).Add(bankBal); !sum.Equal(money.FromInt(100)) {
		t.Fatalf("value not conserved: %s", sum)
	}
}

func TestDepositRejectsOverBalance(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	w.Seed(player, money.FromInt(10))
	c := newCoordinator(w, b)

	_, err := c.Deposit(context.Background(), player, Exact(money.FromInt(50)))
	if kindOf(t, err) != KindInsufficientLocal {
		t.Fatalf("expected local insufficient funds, got %v", err)
	}
	if got := w.Balance(player); !got.Equal(money.FromInt(10)) {
		t.Fatalf("wallet changed on rejection: %s", got)
	}
	if bal, _ := b.Balance(context.Background(), player); !bal.IsZero() {
		t.Fatalf("bank changed on rejection: %s", bal)
	}
}

func TestDepositRejectsNonPositive(t *testing.T) {
	w := wallet.NewMemoryStore()
	c := newCoordinator(w, bank.NewInMemory())

	_, err := c.Deposit(context.Background(), player, Exact(money.Zero()))
	if kindOf(t, err) != KindInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	_, err = c.Deposit(context.Background(), player, Exact(money.FromInt(-3)))
	if kindOf(t, err) != KindInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestDepositCompensatesRemoteFailure(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	w.Seed(player, money.FromInt(100))
	b.FailNextDeposit(bank.Transportf("bank down"))
	c := newCoordinator(w, b)

	_, err := c.Deposit(context.Background(), player, Exact(money.FromInt(40)))
	if kindOf(t, err) != KindTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if got := w.Balance(player); !got.Equal(money.FromInt(100)) {
		t.Fatalf("compensation did not restore wallet: %s", got)
	}
}

func TestDepositEscalatesFailedCompensation(t *testing.T) {
	w := &flakyWallet{MemoryStore: wallet.NewMemoryStore()}
	b := bank.NewInMemory()
	w.Seed(player, money.FromInt(100))
	b.FailNextDeposit(bank.Transportf("bank down"))
	w.failDeposit = true
	c := newCoordinator(w, b)

	_, err := c.Deposit(context.Background(), player, Exact(money.FromInt(40)))
	if kindOf(t, err) != KindReconciliation {
		t.Fatalf("expected reconciliation failure, got %v", err)
	}
}

func TestDepositAllResolvesWalletSnapshot(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	w.Seed(player, money.FromInt(70))
	c := newCoordinator(w, b)

	receipt, err := c.Deposit(context.Background(), player, All())
	if err != nil {
		t.Fatalf("deposit all: %v", err)
	}
	if !receipt.Amount.Equal(money.FromInt(70)) {
		t.Fatalf("expected resolved amount 70, got %s", receipt.Amount)
	}
	if got := w.Balance(player); !got.IsZero() {
		t.Fatalf("expected empty wallet, got %s", got)
	}
}

func TestDepositAllRejectsEmptyWallet(t *testing.T) {
	c := newCoordinator(wallet.NewMemoryStore(), bank.NewInMemory())

	_, err := c.Deposit(context.Background(), player, All())
	if kindOf(t, err) != KindInvalidAmount {
		t.Fatalf("expected invalid amount on empty balance, got %v", err)
	}
}

func TestDepositWalletUnavailable(t *testing.T) {
	w := wallet.NewMemoryStore()
	w.SetAvailable(false)
	c := newCoordinator(w, bank.NewInMemory())

	_, err := c.Deposit(context.Background(), player, Exact(money.FromInt(5)))
	if kindOf(t, err) != KindTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestWithdrawMovesValue(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	bank.SeedBalance(b, player, money.FromInt(50))
	c := newCoordinator(w, b)

	receipt, err := c.Withdraw(context.Background(), player, Exact(money.FromInt(20)))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !receipt.RemoteBalance.Equal(money.FromInt(30)) {
		t.Fatalf("expected bank balance 30, got %s", receipt.RemoteBalance)
	}
	if got := w.Balance(player); !got.Equal(money.FromInt(20)) {
		t.Fatalf("expected wallet balance 20, got %s", got)
	}
}

func TestWithdrawSurfacesRemoteInsufficientFunds(t *testing.T) {
	w := wallet.NewMemoryStore()
	b := bank.NewInMemory()
	bank.SeedBalance(b, player, money.FromInt(5))
	c := newCoordinator(w, b)

	_, err := c.Withdraw(context.Background(), player, Exact(money.FromInt(20)))
	if kindOf(t, err) != KindInsufficientRemote {
		t.Fatalf("expected remote insufficient funds, got %v", err)
	}
	if bal, _ := b.Balance(context.Background(), player); !bal.Equal(money.FromInt(5)) {
		t.Fatalf("bank changed on rejection: %s", bal)
	}
	if got := w.Balance(player); !got.IsZero() {
		t.Fatalf("wallet changed on rejection: %s", got)
	}
}

func TestWithdrawRefundsBankWhenWalletRejects(t *testing.T) {
	w := &flakyWallet{MemoryStore: wallet.NewMemoryStore()}
	b := bank.NewInMemory()
	bank.SeedBalance(b, player, money.FromInt(50))
	w.failDeposit = true
	c := newCoordinator(w, b)

	_, err := c.Withdraw(context.Background(), player, Exact(money.FromInt(20)))
	if kindOf(t, err) != KindTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if bal, _ := b.Balance(context.Background(), player); !bal.Equal(money.FromInt(50)) {
		t.Fatalf("refund did not restore bank balance: %s", bal)
	}
}

func TestWithdrawEscalatesFailedRefund(t *testing.T) {
	w := &flakyWallet{MemoryStore: wallet.NewMemoryStore()}
	b := bank.NewInMemory()
	bank.SeedBalance(b, player, money.FromInt(50))
	w.failDeposit = true
	c := newCoordinator(w, b)

	// Withdraw succeeds remotely, then the wallet rejects the credit and
	// the refund deposit fails too.
	b.FailNextDeposit(bank.Transportf("bank down"))
	_, err := c.Withdraw(context.Background(), player, Exact(money.FromInt(20)))
	if kindOf(t, err) != KindReconciliation {
		t.Fatalf("expected reconciliation failure, got %v", err)
	}
}

func TestTransferExactBalance(t *testing.T) {
	sender := game.PlayerID("22222222-2222-2222-2222-222222222222")
	recipient := game.PlayerID("33333333-3333-3333-3333-333333333333")
	b := bank.NewInMemory()
	bank.SeedBalance(b, sender, money.FromInt(25))
	c := newCoordinator(wallet.NewMemoryStore(), b)

	receipt, err := c.Transfer(context.Background(), sender, recipient, Exact(money.FromInt(25)))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !receipt.RemoteBalance.IsZero() {
		t.Fatalf("expected sender balance 0, got %s", receipt.RemoteBalance)
	}
	if bal, _ := b.Balance(context.Background(), recipient); !bal.Equal(money.FromInt(25)) {
		t.Fatalf("expected recipient balance 25, got %s", bal)
	}
}

func TestTransferRefundsSenderWhenCreditFails(t *testing.T) {
	sender := game.PlayerID("22222222-2222-2222-2222-222222222222")
	recipient := game.PlayerID("33333333-3333-3333-3333-333333333333")
	b := bank.NewInMemory()
	bank.SeedBalance(b, sender, money.FromInt(25))
	b.FailNextDeposit(bank.Transportf("bank down"))
	c := newCoordinator(wallet.NewMemoryStore(), b)

	_, err := c.Transfer(context.Background(), sender, recipient, Exact(money.FromInt(25)))
	if kindOf(t, err) != KindTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if bal, _ := b.Balance(context.Background(), sender); !bal.Equal(money.FromInt(25)) {
		t.Fatalf("sender not refunded: %s", bal)
	}
	if bal, _ := b.Balance(context.Background(), recipient); !bal.IsZero() {
		t.Fatalf("recipient credited despite failure: %s", bal)
	}
}

func TestTransferRejectsSelf(t *testing.T) {
	c := newCoordinator(wallet.NewMemoryStore(), bank.NewInMemory())
	_, err := c.Transfer(context.Background(), player, player, Exact(money.FromInt(5)))
	if kindOf(t, err) != KindInvalidAmount {
		t.Fatalf("expected rejection, got %v", err)
	}
}
