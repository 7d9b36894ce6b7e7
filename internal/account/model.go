package account

import "time"

// ServerAccount is a game server registered with the bank. APIKeyHash stores
// the bcrypt hash of the server's API key; the plaintext key is shown once at
// registration.
type ServerAccount struct {
	ID         string
	Name       string
	APIKeyHash []byte
	CreatedAt  time.Time
	LastSeen   time.Time
}
