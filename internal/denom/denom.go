package denom

import (
	"sort"
	"sync"

	"github.com/vaultlink/vaultlink/internal/item"
	"github.com/vaultlink/vaultlink/internal/money"
)

// Denomination maps a face value to the physical item representing it. Item
// is the canonical count-one template.
type Denomination struct {
	Value money.Amount
	Item  item.Stack
}

// Registry is the read-only view the exchange engine consumes. Item lookup
// matches type plus metadata and ignores the stack count.
type Registry interface {
	ByItem(s item.Stack) (money.Amount, bool)
	ByValue(v money.Amount) (item.Stack, bool)
	Descending() []Denomination
}

// Memory is the runtime denomination table. Registration is an administrative
// action keyed by face value; registering an existing value overwrites it.
type Memory struct {
	mu      sync.RWMutex
	byValue map[string]Denomination
	byItem  map[string]string // item key -> value key
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		byValue: make(map[string]Denomination),
		byItem:  make(map[string]string),
	}
}

// Register creates or overwrites the denomination for d.Value. The item
// template is normalized to count one.
func (m *Memory) Register(d Denomination) {
	if !money.Positive(d.Value) {
		return
	}
	d.Item = d.Item.WithCount(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	valueKey := d.Value.String()
	if prev, ok := m.byValue[valueKey]; ok {
		delete(m.byItem, prev.Item.Key())
	}
	m.byValue[valueKey] = d
	m.byItem[d.Item.Key()] = valueKey
}

func (m *Memory) ByItem(s item.Stack) (money.Amount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	valueKey, ok := m.byItem[s.Key()]
	if !ok {
		return money.Zero(), false
	}
	return m.byValue[valueKey].Value, true
}

func (m *Memory) ByValue(v money.Amount) (item.Stack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byValue[v.String()]
	if !ok {
		return item.Stack{}, false
	}
	return d.Item, true
}

func (m *Memory) Descending() []Denomination {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Denomination, 0, len(m.byValue))
	for _, d := range m.byValue {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value.GreaterThan(out[j].Value)
	})
	return out
}
