package cache

import (
	"sync"
	"time"
)

// TTLEntry represents an entry in TTLMap
type TTLEntry struct {
	Value     interface{}
	ExpiresAt time.Time
}

// TTLMap is a thread-safe map with TTL for each entry. Expired
// entries are evicted lazily on access or eagerly via Sweep.
type TTLMap struct {
	mu   sync.RWMutex
	data map[string]*TTLEntry
	ttl  time.Duration
}

// NewTTLMap creates a new TTLMap with the specified default TTL
func NewTTLMap(ttl time.Duration) *TTLMap {
	return &TTLMap{
		data: make(map[string]*TTLEntry),
		ttl:  ttl,
	}
}

// Get retrieves a value from the TTLMap if it hasn't expired
func (m *TTLMap) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		return nil, false
	}
	isExpired := time.Now().After(entry.ExpiresAt)
	value := entry.Value
	m.mu.RUnlock()

	if isExpired {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && time.Now().After(current.ExpiresAt) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return nil, false
	}

	return value, true
}

// Set adds or updates a value using the map's default TTL
func (m *TTLMap) Set(key string, value interface{}) {
	m.SetWithTTL(key, value, m.ttl)
}

// SetWithTTL adds or updates a value with an explicit TTL
func (m *TTLMap) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &TTLEntry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Pop atomically removes and returns a value. The entry is deleted
// whether or not it had expired; an expired entry reports absent.
func (m *TTLMap) Pop(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.data[key]
	if !exists {
		return nil, false
	}
	delete(m.data, key)
	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Value, true
}

// Delete removes a key from the TTLMap
func (m *TTLMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Len returns the number of entries, including not-yet-swept expired ones
func (m *TTLMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Sweep evicts every expired entry and returns how many were removed
func (m *TTLMap) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range m.data {
		if now.After(entry.ExpiresAt) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries from the TTLMap
func (m *TTLMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*TTLEntry)
}
