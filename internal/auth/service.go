package auth

import (
	"context"
	"time"

	"github.com/vaultlink/vaultlink/internal/account"
)

// tokenTTL bounds how long an issued bearer token stays valid.
const tokenTTL = time.Hour

// Service issues bearer tokens to registered game servers.
type Service struct {
	secret   []byte
	accounts *account.Service
	now      func() time.Time
}

// NewService creates a token service signing with the given secret.
func NewService(secret []byte, accounts *account.Service) *Service {
	return &Service{secret: secret, accounts: accounts, now: time.Now}
}

// Token verifies the server's API key and mints a signed bearer token.
func (s *Service) Token(ctx context.Context, serverID, apiKey string) (string, error) {
	acc, err := s.accounts.Verify(ctx, serverID, apiKey)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	claims := map[string]any{
		"sub": acc.ID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	return SignHS256(claims, s.secret)
}

// Verify validates a bearer token and returns the server account id.
func (s *Service) Verify(token string) (string, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return "", err
	}
	exp, _ := claims["exp"].(float64)
	if int64(exp) < s.now().UTC().Unix() {
		return "", ErrExpiredToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
