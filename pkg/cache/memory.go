package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds a MemoryBackend created with a non-positive capacity.
const DefaultMemoryCapacity = 10000

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend is a thread-safe, TTL-aware LRU store.
// When the backend reaches its capacity, the least recently used entry is evicted.
type MemoryBackend struct {
	name     string
	capacity int
	items    map[string]*list.Element
	eviction *list.List
	mu       sync.Mutex
	now      func() time.Time
	onEvict  func(key string, value []byte)
}

// NewMemoryBackend creates an in-memory backend holding at most capacity entries.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryBackend{
		name:     "memory",
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		now:      time.Now,
	}
}

// SetEvictCallback sets a function called whenever an entry is evicted by capacity.
func (m *MemoryBackend) SetEvictCallback(fn func(key string, value []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

func (m *MemoryBackend) Name() string { return m.name }

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(entry.value), true, nil
}

func (m *MemoryBackend) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if entry, ok := m.lookup(key); ok {
			out[key] = cloneBytes(entry.value)
		}
	}
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(key, value, ttl)
	return nil
}

func (m *MemoryBackend) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem, false)
	}
	return nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}

func (m *MemoryBackend) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok {
		return 0, false, nil
	}
	if entry.expiresAt.IsZero() {
		return 0, true, nil
	}
	return entry.expiresAt.Sub(m.now()), true, nil
}

func (m *MemoryBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	keys := make([]string, 0)
	for key, elem := range m.items {
		entry := elem.Value.(*memoryEntry)
		if entry.expired(now) {
			continue
		}
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Flush removes every entry without invoking the evict callback.
func (m *MemoryBackend) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.eviction.Init()
	return nil
}

func (m *MemoryBackend) PurgeExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for _, elem := range m.items {
		if elem.Value.(*memoryEntry).expired(now) {
			m.removeElement(elem, false)
			purged++
		}
	}
	return purged, nil
}

func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eviction.Len()
}

// Must be called with lock held. Expired entries are dropped lazily here.
func (m *MemoryBackend) lookup(key string) (*memoryEntry, bool) {
	elem, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if entry.expired(m.now()) {
		m.removeElement(elem, false)
		return nil, false
	}
	m.eviction.MoveToFront(elem)
	return entry, true
}

// Must be called with lock held.
func (m *MemoryBackend) put(key string, value []byte, ttl time.Duration) {
	deadline := expiresAt(m.now(), ttl)

	if elem, ok := m.items[key]; ok {
		m.eviction.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.value = cloneBytes(value)
		entry.expiresAt = deadline
		return
	}

	entry := &memoryEntry{key: key, value: cloneBytes(value), expiresAt: deadline}
	m.items[key] = m.eviction.PushFront(entry)

	if m.eviction.Len() > m.capacity {
		if oldest := m.eviction.Back(); oldest != nil {
			m.removeElement(oldest, true)
		}
	}
}

// Must be called with lock held.
func (m *MemoryBackend) removeElement(elem *list.Element, evicted bool) {
	m.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)

	if evicted && m.onEvict != nil {
		m.onEvict(entry.key, entry.value)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
