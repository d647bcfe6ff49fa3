package utils

import "fmt"

// BiMap is a bidirectional map that allows lookups in both directions.
// It maintains two internal maps to provide efficient lookups by either key or value.
// Both key and value types must be comparable.
// BiMap is supposed to be immutable, it does not provide methods to update its content.
type BiMap[K comparable, V comparable] struct {
	forward map[K]V // key -> value
	reverse map[V]K // value -> key
}

// NewBiMap creates a new bidirectional map from the provided input map.
// It builds the reverse mapping automatically.
// Note: the mapping must be one-to-one; NewBiMap panics if two keys share
// a value.
//
// Parameters:
//   - input: The initial key-value mapping
//
// Returns:
//   - A new BiMap with both forward and reverse mappings
func NewBiMap[K comparable, V comparable](input map[K]V) *BiMap[K, V] {
	m := &BiMap[K, V]{
		forward: make(map[K]V, len(input)),
		reverse: make(map[V]K, len(input)),
	}
	for k, v := range input {
		if prev, dup := m.reverse[v]; dup {
			panic(fmt.Sprintf("utils: BiMap value %v is shared by keys %v and %v", v, prev, k))
		}
		m.forward[k] = v
		m.reverse[v] = k
	}
	return m
}

// Lookup finds a value by its key in the forward mapping.
//
// Parameters:
//   - key: The key to look up
//
// Returns:
//   - The corresponding value
//   - A boolean indicating whether the key was found
func (m *BiMap[K, V]) Lookup(key K) (V, bool) {
	v, ok := m.forward[key]
	return v, ok
}

// RLookup finds a key by its value in the reverse mapping.
//
// Parameters:
//   - value: The value to look up
//
// Returns:
//   - The corresponding key
//   - A boolean indicating whether the value was found
func (m *BiMap[K, V]) RLookup(value V) (K, bool) {
	k, ok := m.reverse[value]
	return k, ok
}

// Len returns the number of key-value pairs in the map.
func (m *BiMap[K, V]) Len() int {
	return len(m.forward)
}
