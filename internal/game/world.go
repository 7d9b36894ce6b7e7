package game

import "github.com/vaultlink/vaultlink/internal/item"

// PlayerID identifies a player across the wallet, the bank and the loan table.
// The hosting server supplies stable UUID strings.
type PlayerID string

// World is the slice of the game server the economy layer needs: name
// resolution, presence, and inventory hand-off. Give and Drop mutate inventory
// state and must only be called from the main-loop scheduler.
type World interface {
	// Resolve maps a player name to an identity. Works for offline players
	// the server has seen before.
	Resolve(name string) (PlayerID, bool)

	// Online reports whether the player is currently connected.
	Online(id PlayerID) bool

	// Give places a stack into the player's inventory and returns the
	// remainder that did not fit. A zero-count remainder means it all fit.
	Give(id PlayerID, s item.Stack) item.Stack

	// Drop spills a stack at the player's location instead of losing it.
	Drop(id PlayerID, s item.Stack)
}
