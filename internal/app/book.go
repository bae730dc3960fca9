package app

import (
	"sort"
	"sync"

	"smcbot/internal/domain"
)

// Book is the in-memory set of OPEN positions, at most one per symbol.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*domain.Position)}
}

// Add inserts pos. It reports false when the symbol is already held.
func (b *Book) Add(pos *domain.Position) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[pos.Symbol]; ok {
		return false
	}
	b.positions[pos.Symbol] = pos
	return true
}

// Remove drops the position held for symbol.
func (b *Book) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// Get returns the position held for symbol, or nil.
func (b *Book) Get(symbol string) *domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Snapshot returns the open positions ordered by symbol.
func (b *Book) Snapshot() []*domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
