// Package cart holds the session-scoped shopping cart. Lines are keyed by
// product and variant; every mutation goes through Store so the merge and
// quantity-floor rules hold no matter which screen triggers it.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

type Direction int

const (
	Increase Direction = iota
	Decrease
)

func (d Direction) String() string {
	if d == Increase {
		return "increase"
	}
	return "decrease"
}

// Line is one purchasable configuration: a product in a given variant.
type Line struct {
	ProductID   string          `json:"id"`
	DisplayName string          `json:"nombre"`
	UnitPrice   decimal.Decimal `json:"precio"`
	Variant     string          `json:"talla"`
	Quantity    int             `json:"cantidad"`
	ImageRef    string          `json:"imagen"`
}

// LineID derives the identity used by UpdateQuantity and RemoveFromCart.
func LineID(productID, variant string) string {
	return productID + "|" + variant
}

func (l Line) ID() string {
	return LineID(l.ProductID, l.Variant)
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Snapshot struct {
	Lines []Line
	Total decimal.Decimal
}

func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

type Store struct {
	mu        sync.Mutex
	lines     []Line
	observers []func(Snapshot)
}

func NewStore() *Store {
	return &Store{}
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (s *Store) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Store) AddToCart(item Line) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if item.UnitPrice.IsNegative() {
		item.UnitPrice = decimal.Zero
	}

	s.mutate(func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ProductID == item.ProductID && lines[i].Variant == item.Variant {
				lines[i].Quantity += item.Quantity
				return lines
			}
		}
		return append(lines, item)
	})
}

func (s *Store) UpdateQuantity(lineID string, direction Direction) {
	s.mutate(func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ID() != lineID {
				continue
			}
			if direction == Increase {
				lines[i].Quantity++
				return lines
			}
			lines[i].Quantity--
			if lines[i].Quantity <= 0 {
				return append(lines[:i], lines[i+1:]...)
			}
			return lines
		}
		return lines
	})
}

func (s *Store) RemoveFromCart(lineID string) {
	s.mutate(func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ID() == lineID {
				return append(lines[:i], lines[i+1:]...)
			}
		}
		return lines
	})
}

func (s *Store) ClearCart() {
	s.mutate(func([]Line) []Line { return nil })
}

func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total(s.lines)
}

func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLines(s.lines)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Snapshot copies the lines and their total under a single lock, so the
// result stays consistent even if the cart changes right after.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotOf(s.lines)
}

func (s *Store) mutate(fn func([]Line) []Line) {
	s.mu.Lock()
	s.lines = fn(s.lines)
	snap := snapshotOf(s.lines)
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	for _, notify := range observers {
		notify(snap)
	}
}

func snapshotOf(lines []Line) Snapshot {
	return Snapshot{Lines: copyLines(lines), Total: total(lines)}
}

func copyLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Subtotal())
	}
	return sum
}
