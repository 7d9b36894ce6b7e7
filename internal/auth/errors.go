package auth

import "errors"

var (
	// ErrExpiredToken means the bearer token's exp claim is in the past.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidToken covers structurally valid tokens with bad claims.
	ErrInvalidToken = errors.New("invalid token")
)
