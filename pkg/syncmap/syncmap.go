package syncmap

import (
	"sync"
	"sync/atomic"
)

// Map is a type-safe wrapper around sync.Map that keeps an O(1) count.
type Map[K comparable, V any] struct {
	m     sync.Map
	count atomic.Int64

	createMu sync.Mutex
}

// Load loads the value for the key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	value, ok := m.m.Load(key)
	if !ok {
		var zero V

		return zero, false
	}

	return value.(V), true
}

// Store stores the value for the key.
func (m *Map[K, V]) Store(key K, value V) {
	if _, loaded := m.m.Swap(key, value); !loaded {
		m.count.Add(1)
	}
}

// LoadOrCreate returns the value for the key, calling create exactly once
// per key when it is missing.
func (m *Map[K, V]) LoadOrCreate(key K, create func() V) (V, bool) {
	if value, ok := m.Load(key); ok {
		return value, true
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if value, ok := m.Load(key); ok {
		return value, true
	}

	value := create()
	m.m.Store(key, value)
	m.count.Add(1)

	return value, false
}

// Delete deletes the value for the key.
func (m *Map[K, V]) Delete(key K) {
	if _, loaded := m.m.LoadAndDelete(key); loaded {
		m.count.Add(-1)
	}
}

// Range calls f for each key-value pair in the map until f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// Keys returns a snapshot of the keys in the map.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())

	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)

		return true
	})

	return keys
}

// Count returns the number of items in the map.
func (m *Map[K, V]) Count() int {
	return int(m.count.Load())
}
