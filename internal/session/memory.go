package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	items     []Item
	discount  *Discount
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Entries expire ttl after their last write.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// entry returns the live entry for key, creating it when create is set.
func (m *MemoryStore) entry(key string, create bool) *memoryEntry {
	e, ok := m.entries[key]
	if ok && m.ttl > 0 && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memoryEntry{}
		m.entries[key] = e
	}
	return e
}

func (m *MemoryStore) touch(e *memoryEntry) {
	e.expiresAt = m.now().Add(m.ttl)
}

func (m *MemoryStore) Items(ctx context.Context, key string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key, false); e != nil {
		return cloneItems(e.items), nil
	}
	return nil, nil
}

func (m *MemoryStore) UpdateItems(ctx context.Context, key string, fn func(items []Item) ([]Item, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	items, err := fn(cloneItems(e.items))
	if err != nil {
		return err
	}
	e.items = cloneItems(items)
	m.touch(e)
	return nil
}

func (m *MemoryStore) ClearItems(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key, false); e != nil {
		e.items = nil
	}
	return nil
}

func (m *MemoryStore) Discount(ctx context.Context, key string) (*Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key, false); e != nil && e.discount != nil {
		d := *e.discount
		return &d, nil
	}
	return nil, nil
}

func (m *MemoryStore) SetDiscount(ctx context.Context, key string, d Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	e.discount = &d
	m.touch(e)
	return nil
}

func (m *MemoryStore) ClearDiscount(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key, false); e != nil {
		e.discount = nil
	}
	return nil
}
