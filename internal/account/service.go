package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages game-server account lifecycle.
type Service struct {
	repo Repository
}

// NewService creates an account service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a server account and returns it together with the
// plaintext API key, which is never stored.
func (s *Service) Register(ctx context.Context, name string) (ServerAccount, string, error) {
	if name == "" {
		return ServerAccount{}, "", errors.New("server name is required")
	}

	apiKey := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return ServerAccount{}, "", err
	}

	now := time.Now().UTC()
	acc := ServerAccount{
		ID:         uuid.NewString(),
		Name:       name,
		APIKeyHash: hash,
		CreatedAt:  now,
		LastSeen:   now,
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		return ServerAccount{}, "", err
	}
	return acc, apiKey, nil
}

// Verify checks a server's API key and records the authentication.
func (s *Service) Verify(ctx context.Context, id, apiKey string) (ServerAccount, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ServerAccount{}, err
	}
	if err := bcrypt.CompareHashAndPassword(acc.APIKeyHash, []byte(apiKey)); err != nil {
		return ServerAccount{}, errors.New("invalid api key")
	}
	if err := s.repo.TouchLastSeen(ctx, acc.ID); err != nil {
		return ServerAccount{}, err
	}
	return acc, nil
}
