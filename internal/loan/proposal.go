package loan

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
)

// State is the negotiation lifecycle position of a proposal. Transitions are
// validated by the Service against (state, action) pairs; there are no flag
// combinations to branch on.
type State int

const (
	// Open awaits the borrower's response.
	Open State = iota
	// BorrowerApproved awaits the lender's final confirmation.
	BorrowerApproved
	// Finalized means the loan record was created at the bank. Terminal.
	Finalized
	// RejectedByBorrower is terminal; collateral went back to the borrower.
	RejectedByBorrower
	// RejectedByLender is terminal; collateral went back to the borrower.
	RejectedByLender
	// CancelledBorrowerOffline is the lender-side cancellation of a
	// negotiation whose borrower left the server. Terminal; the collateral
	// return is deferred through the pending-return queue.
	CancelledBorrowerOffline
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case BorrowerApproved:
		return "borrower_approved"
	case Finalized:
		return "finalized"
	case RejectedByBorrower:
		return "rejected_by_borrower"
	case RejectedByLender:
		return "rejected_by_lender"
	case CancelledBorrowerOffline:
		return "cancelled_borrower_offline"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the negotiation.
func (s State) Terminal() bool {
	return s != Open && s != BorrowerApproved
}

// Proposal is a single pending loan negotiation. Principal is informational;
// RepayAmount is the contractual debt sent to the bank at finalization.
// TermDays converts to an absolute due date only when the lender confirms, so
// negotiation time never shortens the term.
type Proposal struct {
	ID          uuid.UUID
	Lender      game.PlayerID
	Borrower    game.PlayerID
	Principal   money.Amount
	RepayAmount money.Amount
	TermDays    int
	Collateral  []item.Stack
	State       State
	CreatedAt   time.Time
}

// snapshot returns a copy safe to hand outside the store's lock.
func (p *Proposal) snapshot() Proposal {
	out := *p
	out.Collateral = item.Clone(p.Collateral)
	return out
}
