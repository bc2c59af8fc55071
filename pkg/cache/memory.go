package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// memoryEntry is one cached value plus its LRU bookkeeping.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	createdAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryBackend is an in-process LRU cache with lazy TTL expiry. All
// operations share one mutex; reads move entries to the most-recently-used
// end, and Set evicts from the least-recently-used end when at capacity.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	// now is replaceable for deterministic tests.
	now func() time.Time
}

// DefaultMemoryCapacity bounds the in-process cache when no explicit size
// is configured.
const DefaultMemoryCapacity = 1000

// NewMemoryBackend creates an empty cache holding at most capacity entries.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryBackend{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the value for key, promoting it to most recently used.
// An expired entry is deleted and reported as a miss.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		m.misses++
		guardCacheMissesTotal.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(m.now()) {
		m.removeLocked(elem)
		m.misses++
		guardCacheMissesTotal.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	m.order.MoveToFront(elem)
	m.hits++
	guardCacheHitsTotal.WithLabelValues("memory").Inc()
	return entry.value, nil
}

// Set stores value for ttl. A non-positive ttl stores nothing. Inserting a
// new key into a full cache evicts the least recently used entry.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		entry.createdAt = now
		m.order.MoveToFront(elem)
		return nil
	}

	if m.order.Len() >= m.capacity {
		if oldest := m.order.Back(); oldest != nil {
			m.removeLocked(oldest)
			m.evictions++
			guardCacheEvictionsTotal.Inc()
		}
	}

	elem := m.order.PushFront(&memoryEntry{
		key:       key,
		value:     value,
		expiresAt: now.Add(ttl),
		createdAt: now,
	})
	m.entries[key] = elem
	return nil
}

// Delete removes key if present.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.removeLocked(elem)
	}
	return nil
}

// Clear removes every key matching the glob pattern and returns the count.
// "*" clears the whole cache.
func (m *MemoryBackend) Clear(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pattern == "*" {
		removed := len(m.entries)
		m.entries = make(map[string]*list.Element)
		m.order.Init()
		return removed, nil
	}

	removed := 0
	for key, elem := range m.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return removed, err
		}
		if matched {
			m.removeLocked(elem)
			removed++
		}
	}
	return removed, nil
}

// Exists reports whether key holds an unexpired entry without promoting it.
func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if elem.Value.(*memoryEntry).expired(m.now()) {
		m.removeLocked(elem)
		return false, nil
	}
	return true, nil
}

// Stats returns the current counters.
func (m *MemoryBackend) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Backend:   "memory",
		Size:      int64(len(m.entries)),
		Hits:      m.hits,
		Misses:    m.misses,
		HitRate:   hitRate(m.hits, m.misses),
		Evictions: m.evictions,
	}, nil
}

// removeLocked drops an element from both the map and the LRU list.
// Callers must hold mu.
func (m *MemoryBackend) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(elem)
}

var _ Backend = (*MemoryBackend)(nil)
