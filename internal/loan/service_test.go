package loan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vaultlink/vaultlink/internal/bank"
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/money"
	"github.com/vaultlink/vaultlink/internal/sched"
)

const (
	lender   = game.PlayerID("aaaaaaaa-0000-0000-0000-000000000001")
	borrower = game.PlayerID("bbbbbbbb-0000-0000-0000-000000000002")
)

type fixture struct {
	store   *Store
	svc     *Service
	world   *game.MemoryWorld
	bank    *bank.InMemory
	applier *Applier
	queue   *MemoryQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	world := game.NewMemoryWorld(0)
	world.AddPlayer("Lender", lender)
	world.AddPlayer("Borrower", borrower)

	store := NewStore()
	b := bank.NewInMemory()
	queue := NewMemoryQueue()
	return &fixture{
		store:   store,
		svc:     NewService(store, b, world),
		world:   world,
		bank:    b,
		applier: NewApplier(world, sched.Sync{}, nil, queue, logging.Discard()),
		queue:   queue,
	}
}

func (f *fixture) propose(t *testing.T) Proposal {
	t.Helper()
	p, effects, err := f.svc.Propose(ProposeInput{
		Lender:       lender,
		BorrowerName: "Borrower",
		Principal:    money.FromInt(500),
		RepayAmount:  money.FromInt(550),
		TermDays:     7,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	f.applier.Apply(context.Background(), effects)
	return p
}

func TestProposeValidatesTerms(t *testing.T) {
	f := newFixture(t)

	cases := []ProposeInput{
		{Lender: lender, BorrowerName: "Borrower", Principal: money.Zero(), RepayAmount: money.FromInt(10), TermDays: 7},
		{Lender: lender, BorrowerName: "Borrower", Principal: money.FromInt(10), RepayAmount: money.FromInt(-1), TermDays: 7},
		{Lender: lender, BorrowerName: "Borrower", Principal: money.FromInt(10), RepayAmount: money.FromInt(10), TermDays: 0},
	}
	for _, in := range cases {
		if _, _, err := f.svc.Propose(in); !errors.Is(err, ErrInvalidTerms) {
			t.Fatalf("expected ErrInvalidTerms for %+v, got %v", in, err)
		}
	}

	if _, _, err := f.svc.Propose(ProposeInput{
		Lender: lender, BorrowerName: "Nobody",
		Principal: money.FromInt(10), RepayAmount: money.FromInt(10), TermDays: 7,
	}); !errors.Is(err, ErrUnknownBorrower) {
		t.Fatalf("expected ErrUnknownBorrower, got %v", err)
	}

	if _, _, err := f.svc.Propose(ProposeInput{
		Lender: lender, BorrowerName: "Lender",
		Principal: money.FromInt(10), RepayAmount: money.FromInt(10), TermDays: 7,
	}); !errors.Is(err, ErrSelfLoan) {
		t.Fatalf("expected ErrSelfLoan, got %v", err)
	}
}

func TestProposePrivilegedSelfLoan(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.Propose(ProposeInput{
		Lender: lender, BorrowerName: "Lender",
		Principal: money.FromInt(10), RepayAmount: money.FromInt(10), TermDays: 7,
		Privileged: true,
	}); err != nil {
		t.Fatalf("privileged self-loan rejected: %v", err)
	}
}

func TestSecondProposalForBorrowerRejected(t *testing.T) {
	f := newFixture(t)
	first := f.propose(t)

	_, _, err := f.svc.Propose(ProposeInput{
		Lender: lender, BorrowerName: "Borrower",
		Principal: money.FromInt(1), RepayAmount: money.FromInt(1), TermDays: 1,
	})
	if !errors.Is(err, ErrBorrowerBusy) {
		t.Fatalf("expected ErrBorrowerBusy, got %v", err)
	}

	got, ok := f.store.Get(first.ID)
	if !ok || !got.Principal.Equal(money.FromInt(500)) {
		t.Fatalf("original proposal disturbed: %+v", got)
	}
}

func TestRejectAfterAcceptReturnsCollateral(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	collateral := []item.Stack{
		{Type: "diamond", Count: 3},
		{Type: "netherite_ingot", Meta: "enchanted", Count: 1},
	}
	if _, err := f.svc.SetCollateral(p.ID, borrower, collateral); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if _, effects, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	} else {
		f.applier.Apply(context.Background(), effects)
	}

	got, effects, err := f.svc.LenderReject(p.ID, lender)
	if err != nil {
		t.Fatalf("lender reject: %v", err)
	}
	if got.State != RejectedByLender {
		t.Fatalf("expected RejectedByLender, got %s", got.State)
	}
	f.applier.Apply(context.Background(), effects)

	held := f.world.Held(borrower)
	if len(held) != 2 || held[0].Type != "diamond" || held[0].Count != 3 || held[1].Type != "netherite_ingot" {
		t.Fatalf("borrower does not hold collateral again: %+v", held)
	}
	if f.store.Len() != 0 {
		t.Fatalf("store still holds the proposal")
	}
}

func TestSetCollateralReplacesWholesale(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, err := f.svc.SetCollateral(p.ID, borrower, []item.Stack{{Type: "diamond", Count: 3}}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	replacement := []item.Stack{
		{Type: "emerald", Count: 5},
		{Type: "gold_block", Count: 2},
	}
	got, err := f.svc.SetCollateral(p.ID, borrower, replacement)
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if len(got.Collateral) != 2 || got.Collateral[0].Type != "emerald" || got.Collateral[1].Type != "gold_block" {
		t.Fatalf("second list did not replace the first: %+v", got.Collateral)
	}

	// An abort returns only the replacement list, never the earlier one.
	_, effects, err := f.svc.BorrowerReject(p.ID, borrower)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	f.applier.Apply(context.Background(), effects)

	held := f.world.Held(borrower)
	if len(held) != 2 || held[0].Type != "emerald" || held[0].Count != 5 || held[1].Type != "gold_block" || held[1].Count != 2 {
		t.Fatalf("borrower holds the wrong collateral after abort: %+v", held)
	}
	for _, s := range held {
		if s.Type == "diamond" {
			t.Fatalf("replaced collateral resurfaced: %+v", held)
		}
	}
}

func TestSetCollateralLockedAfterAccept(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.SetCollateral(p.ID, borrower, []item.Stack{{Type: "dirt", Count: 1}}); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestBorrowerCannotRejectAfterAccept(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, _, err := f.svc.BorrowerReject(p.ID, borrower); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestBorrowerAcceptIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState on re-accept, got %v", err)
	}
}

func TestWrongActorChecks(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, err := f.svc.SetCollateral(p.ID, lender, nil); !errors.Is(err, ErrWrongActor) {
		t.Fatalf("expected ErrWrongActor, got %v", err)
	}
	if _, _, err := f.svc.BorrowerAccept(p.ID, lender); !errors.Is(err, ErrWrongActor) {
		t.Fatalf("expected ErrWrongActor, got %v", err)
	}
	if _, _, err := f.svc.LenderConfirm(context.Background(), p.ID, borrower); !errors.Is(err, ErrWrongActor) {
		t.Fatalf("expected ErrWrongActor, got %v", err)
	}
	if _, err := f.svc.LenderView(p.ID, borrower); !errors.Is(err, ErrWrongActor) {
		t.Fatalf("expected ErrWrongActor, got %v", err)
	}
}

func TestLenderConfirmFinalizes(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	collateral := []item.Stack{{Type: "diamond", Count: 5}}
	if _, err := f.svc.SetCollateral(p.ID, borrower, collateral); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got, effects, err := f.svc.LenderConfirm(context.Background(), p.ID, lender)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.applier.Apply(context.Background(), effects)

	if got.State != Finalized {
		t.Fatalf("expected Finalized, got %s", got.State)
	}
	if f.bank.LoanCount() != 1 {
		t.Fatalf("expected one loan record, got %d", f.bank.LoanCount())
	}
	contract, _ := f.bank.LastLoan()
	if !contract.RepayAmount.Equal(money.FromInt(550)) {
		t.Fatalf("wrong repay amount: %s", contract.RepayAmount)
	}
	stacks, err := item.DecodeStacks(contract.Collateral)
	if err != nil || len(stacks) != 1 || stacks[0].Type != "diamond" {
		t.Fatalf("collateral not encoded into contract: %v %+v", err, stacks)
	}

	// Finalization keeps the collateral with the loan record.
	if held := f.world.Held(borrower); len(held) != 0 {
		t.Fatalf("collateral returned despite finalization: %+v", held)
	}
	if f.store.Len() != 0 {
		t.Fatalf("store still holds the proposal")
	}
}

func TestLenderConfirmFailureReturnsCollateral(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, err := f.svc.SetCollateral(p.ID, borrower, []item.Stack{{Type: "diamond", Count: 5}}); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}

	f.bank.FailNextLoan(bank.Transportf("bank down"))
	_, effects, err := f.svc.LenderConfirm(context.Background(), p.ID, lender)
	if !errors.Is(err, ErrFinalizeFailed) {
		t.Fatalf("expected ErrFinalizeFailed, got %v", err)
	}
	f.applier.Apply(context.Background(), effects)

	if held := f.world.Held(borrower); len(held) != 1 || held[0].Type != "diamond" {
		t.Fatalf("collateral not returned after failed finalization: %+v", held)
	}
	if f.bank.LoanCount() != 0 {
		t.Fatalf("loan recorded despite failure")
	}
}

func TestConcurrentConfirmSingleWinner(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)
	if _, _, err := f.svc.BorrowerAccept(p.ID, borrower); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.LenderConfirm(context.Background(), p.ID, lender)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, notFound int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || notFound != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d notFound=%d", ok, notFound)
	}
	if f.bank.LoanCount() != 1 {
		t.Fatalf("expected exactly one loan record, got %d", f.bank.LoanCount())
	}
}

func TestLenderRejectOfflineBorrowerDefersReturn(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, err := f.svc.SetCollateral(p.ID, borrower, []item.Stack{{Type: "emerald", Count: 9}}); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	f.world.SetOnline(borrower, false)

	got, effects, err := f.svc.LenderReject(p.ID, lender)
	if err != nil {
		t.Fatalf("lender reject: %v", err)
	}
	if got.State != CancelledBorrowerOffline {
		t.Fatalf("expected CancelledBorrowerOffline, got %s", got.State)
	}
	f.applier.Apply(context.Background(), effects)

	if held := f.world.Held(borrower); len(held) != 0 {
		t.Fatalf("offline borrower received items directly: %+v", held)
	}

	// Collateral arrives when the borrower comes back.
	f.world.SetOnline(borrower, true)
	if err := f.applier.FlushReturns(context.Background(), borrower); err != nil {
		t.Fatalf("flush returns: %v", err)
	}
	if held := f.world.Held(borrower); len(held) != 1 || held[0].Type != "emerald" || held[0].Count != 9 {
		t.Fatalf("pending return not delivered: %+v", held)
	}
}

func TestCollateralOverflowDropsInstead(t *testing.T) {
	world := game.NewMemoryWorld(1)
	world.AddPlayer("Lender", lender)
	world.AddPlayer("Borrower", borrower)
	store := NewStore()
	b := bank.NewInMemory()
	svc := NewService(store, b, world)
	applier := NewApplier(world, sched.Sync{}, nil, NewMemoryQueue(), logging.Discard())

	p, _, err := svc.Propose(ProposeInput{
		Lender: lender, BorrowerName: "Borrower",
		Principal: money.FromInt(10), RepayAmount: money.FromInt(11), TermDays: 3,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := svc.SetCollateral(p.ID, borrower, []item.Stack{
		{Type: "diamond", Count: 1},
		{Type: "emerald", Count: 2},
	}); err != nil {
		t.Fatalf("set collateral: %v", err)
	}

	_, effects, err := svc.BorrowerReject(p.ID, borrower)
	if err != nil {
		t.Fatalf("borrower reject: %v", err)
	}
	applier.Apply(context.Background(), effects)

	if held := world.Held(borrower); len(held) != 1 {
		t.Fatalf("expected one stack to fit, got %+v", held)
	}
	if dropped := world.Dropped(borrower); len(dropped) != 1 || dropped[0].Type != "emerald" {
		t.Fatalf("overflow not dropped at borrower: %+v", dropped)
	}
}

func TestLenderViewReadsCollateralWithoutMutation(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t)

	if _, err := f.svc.SetCollateral(p.ID, borrower, []item.Stack{{Type: "gold_block", Count: 4}}); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	items, err := f.svc.LenderView(p.ID, lender)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(items) != 1 || items[0].Count != 4 {
		t.Fatalf("unexpected view: %+v", items)
	}
	if got, _ := f.store.Get(p.ID); got.State != Open {
		t.Fatalf("view mutated state: %s", got.State)
	}
}
