package item

import (
	"encoding/json"
	"fmt"
)

// Stack is a stack of identical physical items. Type is the item's registry
// name, Meta a fingerprint of any additional item data (display name,
// enchantments), and Count how many items the stack holds.
type Stack struct {
	Type  string `json:"type"`
	Meta  string `json:"meta,omitempty"`
	Count int    `json:"count"`
}

// Key returns the identity fingerprint of the stack: type plus metadata,
// ignoring the stack count. Two stacks with equal keys hold the same item.
func (s Stack) Key() string {
	if s.Meta == "" {
		return s.Type
	}
	return s.Type + "|" + s.Meta
}

// Empty reports whether the stack holds no items.
func (s Stack) Empty() bool {
	return s.Count <= 0
}

// WithCount returns a copy of the stack carrying the given count.
func (s Stack) WithCount(n int) Stack {
	s.Count = n
	return s
}

// Clone copies a slice of stacks so callers can mutate the copy freely.
func Clone(stacks []Stack) []Stack {
	if stacks == nil {
		return nil
	}
	out := make([]Stack, len(stacks))
	copy(out, stacks)
	return out
}

// EncodeStacks serializes stacks for hand-off to the loan registry. Empty
// stacks are skipped.
func EncodeStacks(stacks []Stack) (string, error) {
	kept := make([]Stack, 0, len(stacks))
	for _, s := range stacks {
		if s.Empty() {
			continue
		}
		kept = append(kept, s)
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return "", fmt.Errorf("encode stacks: %w", err)
	}
	return string(raw), nil
}

// DecodeStacks reverses EncodeStacks.
func DecodeStacks(encoded string) ([]Stack, error) {
	var stacks []Stack
	if err := json.Unmarshal([]byte(encoded), &stacks); err != nil {
		return nil, fmt.Errorf("decode stacks: %w", err)
	}
	return stacks, nil
}
