// Package cart provides the in-memory cart collaborator consumed by the
// checkout orchestrator and the HTTP API. One Store holds one shopper's cart.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gaaka/commerce/internal/domain"
)

// ErrInvalidLine signals a line the store refuses to hold.
var ErrInvalidLine = errors.New("cart: invalid line")

// ErrLineNotFound signals an update against an id the cart does not hold.
var ErrLineNotFound = errors.New("cart: line not found")

// Store is a mutex guarded cart. Reads return copies; callers never observe
// internal state.
type Store struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{}
}

// Add inserts a line, merging quantities with an existing line of the same id
// and variant. Lines without an id get one assigned; the assigned or existing
// id is returned.
func (s *Store) Add(line domain.CartLine) (string, error) {
	if line.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	}
	if line.UnitPrice < 0 {
		return "", fmt.Errorf("%w: price must be non-negative", ErrInvalidLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if line.ID != "" {
		for i, existing := range s.lines {
			if existing.ID == line.ID && existing.Variant == line.Variant {
				s.lines[i].Quantity += line.Quantity
				return existing.ID, nil
			}
		}
	} else {
		line.ID = uuid.NewString()
	}
	s.lines = append(s.lines, line)
	return line.ID, nil
}

// UpdateQuantity sets the quantity of a line. Zero removes the line.
func (s *Store) UpdateQuantity(id string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, line := range s.lines {
		if line.ID != id {
			continue
		}
		if quantity == 0 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
		} else {
			s.lines[i].Quantity = quantity
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrLineNotFound, id)
}

// Remove deletes a line by id. Removing an absent line is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, line := range s.lines {
		if line.ID == id {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return
		}
	}
}

// Items returns a copy of the current lines.
func (s *Store) Items() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.lines...)
}

// Summary aggregates item count and total value.
func (s *Store) Summary() domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summary domain.CartSummary
	for _, line := range s.lines {
		summary.ItemCount += line.Quantity
		summary.Total += line.UnitPrice * int64(line.Quantity)
	}
	return summary
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
}
