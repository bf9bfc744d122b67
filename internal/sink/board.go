package sink

import (
	"context"
	"sort"
	"sync"
)

// Board keeps the latest display per element in memory.
type Board struct {
	mu       sync.RWMutex
	elements map[string]Display
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{elements: make(map[string]Display)}
}

// Present replaces the element's display.
func (b *Board) Present(_ context.Context, d Display) error {
	b.mu.Lock()
	b.elements[d.ElementID] = d
	b.mu.Unlock()
	return nil
}

// Get returns the latest display for id.
func (b *Board) Get(id string) (Display, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.elements[id]
	return d, ok
}

// Snapshot returns all displays ordered by element id.
func (b *Board) Snapshot() []Display {
	b.mu.RLock()
	out := make([]Display, 0, len(b.elements))
	for _, d := range b.elements {
		out = append(out, d)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ElementID < out[j].ElementID })
	return out
}

var _ Sink = (*Board)(nil)
