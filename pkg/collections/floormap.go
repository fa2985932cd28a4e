// Package collections provides generic data structures used by the
// symbolication stages.
package collections

import (
	"cmp"
	"slices"
	"sort"
)

// FloorMap is an ordered index answering nearest-at-or-below queries: for a
// query key it returns the entry with the greatest key <= the query.
//
// Keys are kept unsorted while the map is being filled and sorted on the
// first lookup after a write. A later Put on an existing key replaces its
// value.
type FloorMap[K cmp.Ordered, V any] struct {
	keys   []K
	values map[K]V
	sorted bool
}

// NewFloorMap creates an empty FloorMap.
func NewFloorMap[K cmp.Ordered, V any]() *FloorMap[K, V] {
	return &FloorMap[K, V]{
		values: make(map[K]V),
		sorted: true,
	}
}

// Put stores v under key.
func (m *FloorMap[K, V]) Put(key K, v V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
		m.sorted = false
	}
	m.values[key] = v
}

// Get returns the value stored under exactly key.
func (m *FloorMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Floor returns the entry with the greatest key <= key.
func (m *FloorMap[K, V]) Floor(key K) (K, V, bool) {
	m.sort()

	// Index of the first key > query; the floor sits just before it.
	i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] > key })
	if i == 0 {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	k := m.keys[i-1]
	return k, m.values[k], true
}

// Len returns the number of keys.
func (m *FloorMap[K, V]) Len() int {
	return len(m.keys)
}

// Keys returns all keys in ascending order.
func (m *FloorMap[K, V]) Keys() []K {
	m.sort()
	return slices.Clone(m.keys)
}

func (m *FloorMap[K, V]) sort() {
	if m.sorted {
		return
	}
	slices.Sort(m.keys)
	m.sorted = true
}
