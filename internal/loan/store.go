package loan

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/game"
)

var (
	// ErrNotFound means no active proposal carries the id. A concurrent
	// transition that already removed the proposal surfaces the same way.
	ErrNotFound = errors.New("proposal not found")

	// ErrBorrowerBusy enforces the one-active-proposal-per-borrower rule.
	ErrBorrowerBusy = errors.New("borrower already has an active proposal")
)

// Store is the in-memory negotiation table. All access is serialized per
// operation under one mutex; Take and Update are atomic check-then-act, so
// two near-simultaneous confirmations can never both succeed. The table is
// not persisted: a server restart loses open proposals.
type Store struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*Proposal
	byBorrower map[game.PlayerID]uuid.UUID
}

// NewStore creates an empty negotiation table.
func NewStore() *Store {
	return &Store{
		byID:       make(map[uuid.UUID]*Proposal),
		byBorrower: make(map[game.PlayerID]uuid.UUID),
	}
}

// Insert adds a proposal, rejecting a borrower that already has one active.
func (s *Store) Insert(p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.byBorrower[p.Borrower]; busy {
		return ErrBorrowerBusy
	}
	stored := p.snapshot()
	s.byID[p.ID] = &stored
	s.byBorrower[p.Borrower] = p.ID
	return nil
}

// Get returns a snapshot of the proposal.
func (s *Store) Get(id uuid.UUID) (Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Proposal{}, false
	}
	return p.snapshot(), true
}

// Take removes the proposal and returns it, but only if pred accepts it; a
// pred error leaves the proposal in place. Removal and check are atomic.
func (s *Store) Take(id uuid.UUID, pred func(*Proposal) error) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	if err := pred(p); err != nil {
		return Proposal{}, err
	}
	delete(s.byID, id)
	delete(s.byBorrower, p.Borrower)
	return p.snapshot(), nil
}

// Update mutates the proposal in place under the lock and returns the
// post-mutation snapshot. An fn error rolls nothing back; fn must validate
// before mutating.
func (s *Store) Update(id uuid.UUID, fn func(*Proposal) error) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	if err := fn(p); err != nil {
		return Proposal{}, err
	}
	return p.snapshot(), nil
}

// Active returns the id of the borrower's active proposal, if any.
func (s *Store) Active(borrower game.PlayerID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byBorrower[borrower]
	return id, ok
}

// Len reports how many proposals are active.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
