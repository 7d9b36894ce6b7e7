package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
	"github.com/vaultlink/vaultlink/internal/notify"
)

var (
	// ErrInvalidTerms rejects non-positive principal, repay amount or term.
	ErrInvalidTerms = errors.New("invalid loan terms")

	// ErrSelfLoan rejects lender == borrower without elevated privilege.
	ErrSelfLoan = errors.New("cannot lend to yourself")

	// ErrUnknownBorrower means the borrower name did not resolve.
	ErrUnknownBorrower = errors.New("borrower not found")

	// ErrWrongActor means the caller is not the party this transition
	// belongs to.
	ErrWrongActor = errors.New("not a party to this proposal")

	// ErrWrongState means the transition is not valid in the proposal's
	// current state.
	ErrWrongState = errors.New("transition not valid in current state")

	// ErrFinalizeFailed wraps a bank-side loan creation failure; the
	// collateral has been scheduled back to the borrower.
	ErrFinalizeFailed = errors.New("loan creation failed")
)

// Service drives the proposal lifecycle. It owns no threading concerns and
// touches no inventories: every transition returns Effect values the caller
// executes on the main-loop scheduler.
type Service struct {
	store *Store
	loans bank.Loans
	world game.World
	now   func() time.Time
}

// NewService builds the negotiation service around a store, the bank's loan
// registry and the game world.
func NewService(store *Store, loans bank.Loans, world game.World) *Service {
	return &Service{store: store, loans: loans, world: world, now: time.Now}
}

// ProposeInput carries the lender's offer. Privileged reflects the caller's
// permission check and allows self-loans (testing and admin tooling).
type ProposeInput struct {
	Lender       game.PlayerID
	BorrowerName string
	Principal    money.Amount
	RepayAmount  money.Amount
	TermDays     int
	Privileged   bool
}

// Propose opens a negotiation and notifies the borrower.
func (s *Service) Propose(in ProposeInput) (Proposal, []Effect, error) {
	if !money.Positive(in.Principal) || !money.Positive(in.RepayAmount) || in.TermDays <= 0 {
		return Proposal{}, nil, ErrInvalidTerms
	}
	borrower, ok := s.world.Resolve(in.BorrowerName)
	if !ok {
		return Proposal{}, nil, ErrUnknownBorrower
	}
	if borrower == in.Lender && !in.Privileged {
		return Proposal{}, nil, ErrSelfLoan
	}

	p := Proposal{
		ID:          uuid.New(),
		Lender:      in.Lender,
		Borrower:    borrower,
		Principal:   in.Principal,
		RepayAmount: in.RepayAmount,
		TermDays:    in.TermDays,
		State:       Open,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Insert(p); err != nil {
		return Proposal{}, nil, err
	}

	effects := []Effect{Notice{
		Player:   borrower,
		Severity: notify.Success,
		Text:     fmt.Sprintf("Loan offer: repay %s within %d days.", p.RepayAmount, p.TermDays),
	}}
	return p, effects, nil
}

// SetCollateral replaces the proposal's collateral list wholesale. Only the
// named borrower may do this, and only while the proposal is still Open.
func (s *Service) SetCollateral(id uuid.UUID, borrower game.PlayerID, items []item.Stack) (Proposal, error) {
	return s.store.Update(id, func(p *Proposal) error {
		if p.Borrower != borrower {
			return ErrWrongActor
		}
		if p.State != Open {
			return ErrWrongState
		}
		p.Collateral = item.Clone(items)
		return nil
	})
}

// BorrowerAccept moves the proposal to BorrowerApproved and notifies the
// lender. An unreachable lender does not cancel anything: the proposal waits
// in BorrowerApproved for the lender's return. Re-accepting is an error.
func (s *Service) BorrowerAccept(id uuid.UUID, borrower game.PlayerID) (Proposal, []Effect, error) {
	p, err := s.store.Update(id, func(p *Proposal) error {
		if p.Borrower != borrower {
			return ErrWrongActor
		}
		if p.State != Open {
			return ErrWrongState
		}
		p.State = BorrowerApproved
		return nil
	})
	if err != nil {
		return Proposal{}, nil, err
	}

	var effects []Effect
	if s.world.Online(p.Lender) {
		effects = append(effects, Notice{
			Player:   p.Lender,
			Severity: notify.Success,
			Text:     "Borrower accepted your loan offer. Confirm to finalize.",
		})
	}
	return p, effects, nil
}

// BorrowerReject withdraws the borrower from an Open negotiation. Once the
// borrower has approved, only the lender can still back out.
func (s *Service) BorrowerReject(id uuid.UUID, borrower game.PlayerID) (Proposal, []Effect, error) {
	p, err := s.store.Take(id, func(p *Proposal) error {
		if p.Borrower != borrower {
			return ErrWrongActor
		}
		if p.State != Open {
			return ErrWrongState
		}
		return nil
	})
	if err != nil {
		return Proposal{}, nil, err
	}
	p.State = RejectedByBorrower

	effects := returnEffects(p)
	if s.world.Online(p.Lender) {
		effects = append(effects, Notice{
			Player:   p.Lender,
			Severity: notify.Warning,
			Text:     "Your loan offer was declined.",
		})
	}
	return p, effects, nil
}

// LenderConfirm finalizes the loan. The proposal leaves the store before the
// bank is called, so a concurrent duplicate confirmation observes ErrNotFound
// instead of double-finalizing. The due date is computed now, not at proposal
// time. On bank failure the collateral is scheduled back to the borrower.
func (s *Service) LenderConfirm(ctx context.Context, id uuid.UUID, lender game.PlayerID) (Proposal, []Effect, error) {
	p, err := s.store.Take(id, func(p *Proposal) error {
		if p.Lender != lender {
			return ErrWrongActor
		}
		if p.State != BorrowerApproved {
			return ErrWrongState
		}
		return nil
	})
	if err != nil {
		return Proposal{}, nil, err
	}

	encoded, err := item.EncodeStacks(p.Collateral)
	if err != nil {
		p.State = RejectedByLender
		return p, returnEffects(p), fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	}

	dueDate := s.now().UTC().AddDate(0, 0, p.TermDays)
	_, err = s.loans.CreateLoan(ctx, bank.Contract{
		Lender:      p.Lender,
		Borrower:    p.Borrower,
		RepayAmount: p.RepayAmount,
		DueDate:     dueDate,
		Collateral:  encoded,
	})
	if err != nil {
		p.State = RejectedByLender
		effects := returnEffects(p)
		effects = append(effects, Notice{
			Player:   lender,
			Severity: notify.Error,
			Text:     "The bank could not create the loan. Collateral was returned.",
		})
		return p, effects, fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	}

	// Collateral is now held by the bank's loan record, not the borrower.
	p.State = Finalized
	effects := []Effect{Notice{
		Player:   lender,
		Severity: notify.Success,
		Text:     fmt.Sprintf("Loan finalized. Repayment of %s due by %s.", p.RepayAmount, dueDate.Format("2006-01-02")),
	}}
	if s.world.Online(p.Borrower) {
		effects = append(effects, Notice{
			Player:   p.Borrower,
			Severity: notify.Success,
			Text:     fmt.Sprintf("Your loan is active. Repay %s by %s.", p.RepayAmount, dueDate.Format("2006-01-02")),
		})
	}
	return p, effects, nil
}

// LenderReject cancels the negotiation from the lender side, valid both
// before and after borrower approval. A negotiation whose borrower already
// left the server ends as CancelledBorrowerOffline and the collateral return
// is deferred through the pending-return queue.
func (s *Service) LenderReject(id uuid.UUID, lender game.PlayerID) (Proposal, []Effect, error) {
	p, err := s.store.Take(id, func(p *Proposal) error {
		if p.Lender != lender {
			return ErrWrongActor
		}
		if p.State != Open && p.State != BorrowerApproved {
			return ErrWrongState
		}
		return nil
	})
	if err != nil {
		return Proposal{}, nil, err
	}

	borrowerOnline := s.world.Online(p.Borrower)
	if borrowerOnline {
		p.State = RejectedByLender
	} else {
		p.State = CancelledBorrowerOffline
	}

	effects := returnEffects(p)
	if borrowerOnline {
		effects = append(effects, Notice{
			Player:   p.Borrower,
			Severity: notify.Warning,
			Text:     "The lender withdrew the loan offer. Your collateral was returned.",
		})
	}
	return p, effects, nil
}

// LenderView exposes the current collateral to the named lender without
// mutating anything.
func (s *Service) LenderView(id uuid.UUID, lender game.PlayerID) ([]item.Stack, error) {
	p, ok := s.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if p.Lender != lender {
		return nil, ErrWrongActor
	}
	return p.Collateral, nil
}

// returnEffects builds the collateral-return effect for every abort path.
// The negotiation never completes a transition with collateral un-owned.
func returnEffects(p Proposal) []Effect {
	if len(p.Collateral) == 0 {
		return nil
	}
	return []Effect{ReturnCollateral{Borrower: p.Borrower, Items: item.Clone(p.Collateral)}}
}
