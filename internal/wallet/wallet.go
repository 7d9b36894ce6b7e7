package wallet

import (
	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// Store is the local wallet plugin embedded in the game server. It is
// synchronous and never fails on network grounds; a false return means a
// business rejection (typically insufficient funds). All calls must run on the
// main-loop scheduler.
type Store interface {
	// Available reports whether the wallet plugin is hooked up. When false,
	// every wallet-side operation is disabled immediately.
	Available() bool

	// Balance returns the player's current wallet balance.
	Balance(player game.PlayerID) money.Amount

	// Deposit credits the player's wallet. Returns false on rejection.
	Deposit(player game.PlayerID, amount money.Amount) bool

	// Withdraw debits the player's wallet. Returns false when the balance
	// does not cover the amount.
	Withdraw(player game.PlayerID, amount money.Amount) bool
}
