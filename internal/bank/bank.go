package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

var (
	// ErrInsufficientFunds occurs when the account lacks available balance to
	// cover a withdrawal. It is a business rejection, not a transport error.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the client transaction identifier was
	// already posted; the operation is treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Transaction reasons recorded in the remote audit trail. Compensation legs
// carry distinct reasons so refunds are visible as refunds.
const (
	ReasonDeposit         = "deposit"
	ReasonDepositReversal = "deposit_reversal"
	ReasonWithdraw        = "withdraw"
	ReasonWithdrawRefund  = "withdraw_refund"
	ReasonTransfer        = "transfer"
	ReasonTransferRefund  = "transfer_refund"
)

// TransportError marks a failure to reach the bank or a malfunction on its
// side, as opposed to a business rejection of the request itself.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bank transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transportf builds a TransportError from a format string.
func Transportf(format string, args ...any) error {
	return &TransportError{Err: fmt.Errorf(format, args...)}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Transaction describes a single posting against a player's bank account.
type Transaction struct {
	Account    game.PlayerID
	Amount     money.Amount
	Reason     string
	ClientTxID string
}

// Ledger is the remote balance store. Every call crosses the network and may
// fail for transport reasons; Withdraw additionally fails with
// ErrInsufficientFunds when the balance does not cover the amount. Deposit and
// Withdraw return the new balance.
type Ledger interface {
	Balance(ctx context.Context, account game.PlayerID) (money.Amount, error)
	Deposit(ctx context.Context, tx Transaction) (money.Amount, error)
	Withdraw(ctx context.Context, tx Transaction) (money.Amount, error)
}

// Contract is a finalized loan handed to the bank for record keeping.
// Collateral is the encoded stack list (item.EncodeStacks).
type Contract struct {
	Lender      game.PlayerID
	Borrower    game.PlayerID
	RepayAmount money.Amount
	DueDate     time.Time
	Collateral  string
}

// Record identifies a stored loan.
type Record struct {
	ID        string
	CreatedAt time.Time
}

// Loans is the bank's loan registry.
type Loans interface {
	CreateLoan(ctx context.Context, c Contract) (Record, error)
}
