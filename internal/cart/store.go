package cart

import (
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/shopspring/decimal"
)

// Listener receives a deep copy of the cart after every mutation.
// Listeners may read the store but must not mutate it.
type Listener func(domain.CartSnapshot)

type subscription struct {
	id int
	fn Listener
}

// Store holds the unique-by-identity set of line items for one session.
// Every operation is total: none of them fail.
type Store struct {
	mu        sync.Mutex
	sessionID string
	entries   map[string]*domain.LineItem
	order     []string // first-insertion order of identities
	version   uint64
	updatedAt time.Time

	notifyMu  sync.Mutex // keeps listener delivery in mutation order
	listeners []subscription
	nextID    int
}

func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		entries:   make(map[string]*domain.LineItem),
		updatedAt: time.Now(),
	}
}

// restore seeds the store from a persisted snapshot without notifying listeners.
func (s *Store) restore(snap domain.CartSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range snap.Items {
		if item.Quantity < 1 {
			continue
		}
		cp := item.Clone()
		if cp.Identity == "" {
			cp.Rekey()
		}
		if existing, ok := s.entries[cp.Identity]; ok {
			existing.Quantity += cp.Quantity
			continue
		}
		s.entries[cp.Identity] = &cp
		s.order = append(s.order, cp.Identity)
	}
	s.version = snap.Version
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
}

// Subscribe registers l and returns a function that removes it. Listeners
// are called in subscription order.
func (s *Store) Subscribe(l Listener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(sub subscription) bool { return sub.id == id })
	}
}

// Add increments the quantity of an existing entry with the same identity,
// or inserts the item with quantity 1.
func (s *Store) Add(item domain.LineItem) {
	s.mutate(func() {
		cp := item.Clone()
		if cp.Identity == "" {
			cp.Rekey()
		}
		if existing, ok := s.entries[cp.Identity]; ok {
			existing.Quantity++
			return
		}
		cp.Quantity = 1
		s.insert(&cp)
	})
}

// DecrementOrRemove lowers the quantity by one, removing the entry when it would reach zero.
func (s *Store) DecrementOrRemove(identity string) {
	s.mutate(func() {
		existing, ok := s.entries[identity]
		if !ok {
			return
		}
		if existing.Quantity > 1 {
			existing.Quantity--
			return
		}
		s.delete(identity)
	})
}

// Remove deletes the entry regardless of its quantity.
func (s *Store) Remove(identity string) {
	s.mutate(func() {
		s.delete(identity)
	})
}

// Replace applies a customization edit that may have changed the item's identity.
//
//   - same identity: the entry is replaced wholesale
//   - an entry already exists at the new identity: the old entry is deleted and
//     newItem.Quantity is added to the target; the target keeps its price and metadata
//   - otherwise: the old entry is deleted and newItem is inserted at its new identity
func (s *Store) Replace(oldIdentity string, newItem domain.LineItem) {
	s.mutate(func() {
		cp := newItem.Clone()
		if cp.Identity == "" {
			cp.Rekey()
		}
		if cp.Quantity < 1 {
			cp.Quantity = 1
		}

		if oldIdentity == cp.Identity {
			if _, ok := s.entries[oldIdentity]; ok {
				s.entries[oldIdentity] = &cp
				return
			}
			s.insert(&cp)
			return
		}

		if target, ok := s.entries[cp.Identity]; ok {
			s.delete(oldIdentity)
			target.Quantity += cp.Quantity
			return
		}

		if pos := s.position(oldIdentity); pos >= 0 {
			delete(s.entries, oldIdentity)
			s.entries[cp.Identity] = &cp
			s.order[pos] = cp.Identity
			return
		}
		s.insert(&cp)
	})
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mutate(func() {
		s.entries = make(map[string]*domain.LineItem)
		s.order = nil
	})
}

func (s *Store) Get(identity string) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.entries[identity]
	if !ok {
		return domain.LineItem{}, false
	}
	return item.Clone(), true
}

func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.entries {
		total += item.Quantity
	}
	return total
}

func (s *Store) TotalAmount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, item := range s.entries {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range s.listeners {
		sub.fn(snap)
	}
}

func (s *Store) insert(item *domain.LineItem) {
	s.entries[item.Identity] = item
	s.order = append(s.order, item.Identity)
}

func (s *Store) delete(identity string) {
	if _, ok := s.entries[identity]; !ok {
		return
	}
	delete(s.entries, identity)
	if pos := s.position(identity); pos >= 0 {
		s.order = append(s.order[:pos], s.order[pos+1:]...)
	}
}

func (s *Store) position(identity string) int {
	for i, id := range s.order {
		if id == identity {
			return i
		}
	}
	return -1
}

func (s *Store) itemsLocked() []domain.LineItem {
	items := make([]domain.LineItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.entries[id].Clone())
	}
	return items
}

func (s *Store) snapshotLocked() domain.CartSnapshot {
	return domain.CartSnapshot{
		SessionID: s.sessionID,
		Items:     s.itemsLocked(),
		Version:   s.version,
		UpdatedAt: s.updatedAt,
	}
}
