package game

import (
	"sync"

	"github.com/vaultlink/vaultlink/internal/item"
)

// MemoryWorld is an in-process World with bounded per-player inventories,
// useful for tests and local runs without a game server attached.
type MemoryWorld struct {
	mu       sync.Mutex
	names    map[string]PlayerID
	online   map[PlayerID]bool
	slots    map[PlayerID]int
	held     map[PlayerID][]item.Stack
	dropped  map[PlayerID][]item.Stack
	capacity int
}

// NewMemoryWorld constructs a MemoryWorld where each inventory holds up to
// capacity stacks. A capacity of 0 means unbounded.
func NewMemoryWorld(capacity int) *MemoryWorld {
	return &MemoryWorld{
		names:    make(map[string]PlayerID),
		online:   make(map[PlayerID]bool),
		slots:    make(map[PlayerID]int),
		held:     make(map[PlayerID][]item.Stack),
		dropped:  make(map[PlayerID][]item.Stack),
		capacity: capacity,
	}
}

// AddPlayer registers a player under the given name and marks it online.
func (w *MemoryWorld) AddPlayer(name string, id PlayerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.names[name] = id
	w.online[id] = true
}

// SetOnline toggles a player's presence.
func (w *MemoryWorld) SetOnline(id PlayerID, online bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.online[id] = online
}

func (w *MemoryWorld) Resolve(name string) (PlayerID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.names[name]
	return id, ok
}

func (w *MemoryWorld) Online(id PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online[id]
}

func (w *MemoryWorld) Give(id PlayerID, s item.Stack) item.Stack {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Empty() {
		return s.WithCount(0)
	}
	if w.capacity > 0 && len(w.held[id]) >= w.capacity {
		return s
	}
	w.held[id] = append(w.held[id], s)
	return s.WithCount(0)
}

func (w *MemoryWorld) Drop(id PlayerID, s item.Stack) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Empty() {
		return
	}
	w.dropped[id] = append(w.dropped[id], s)
}

// Held returns a copy of the stacks currently in the player's inventory.
func (w *MemoryWorld) Held(id PlayerID) []item.Stack {
	w.mu.Lock()
	defer w.mu.Unlock()
	return item.Clone(w.held[id])
}

// Dropped returns a copy of the stacks spilled at the player's location.
func (w *MemoryWorld) Dropped(id PlayerID) []item.Stack {
	w.mu.Lock()
	defer w.mu.Unlock()
	return item.Clone(w.dropped[id])
}

// TakeAll empties the player's inventory and returns what it held.
func (w *MemoryWorld) TakeAll(id PlayerID) []item.Stack {
	w.mu.Lock()
	defer w.mu.Unlock()
	held := w.held[id]
	w.held[id] = nil
	return held
}
