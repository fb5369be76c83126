package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps slots in process memory. Listeners are notified synchronously
// from Set, in registration order.
type MemoryStore struct {
	mu        sync.Mutex
	slots     map[string][]byte
	listeners map[string]map[int]Listener
	nextID    int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:     make(map[string][]byte),
		listeners: make(map[string]map[int]Listener),
	}
}

func (m *MemoryStore) Set(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value := append([]byte(nil), data...)

	m.mu.Lock()
	m.slots[slot] = value
	listeners := m.snapshotListeners(slot)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnDataChange(Snapshot{Slot: slot, Exists: true, Value: value})
	}
	return nil
}

// Get returns the current value of the slot.
func (m *MemoryStore) Get(slot string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[slot]
	return v, ok
}

func (m *MemoryStore) Watch(ctx context.Context, slot string, l Listener) (Subscription, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.listeners[slot] == nil {
		m.listeners[slot] = make(map[int]Listener)
	}
	m.listeners[slot][id] = l
	value, exists := m.slots[slot]
	m.mu.Unlock()

	l.OnDataChange(Snapshot{Slot: slot, Exists: exists, Value: value})

	return SubscriptionFunc(func() {
		m.mu.Lock()
		delete(m.listeners[slot], id)
		m.mu.Unlock()
	}), nil
}

func (m *MemoryStore) snapshotListeners(slot string) []Listener {
	ids := make([]int, 0, len(m.listeners[slot]))
	for id := range m.listeners[slot] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[slot][id])
	}
	return out
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.listeners = make(map[string]map[int]Listener)
	m.mu.Unlock()
	return nil
}
