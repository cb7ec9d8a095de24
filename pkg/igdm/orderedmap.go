package igdm

// OrderedMap is a key-unique mapping that preserves insertion order. Setting
// an existing key replaces the value in place without changing its position.
// It is not safe for concurrent use; callers guard it with their own lock.
type OrderedMap[K comparable, V any] struct {
	items map[K]V
	keys  []K
}

func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{items: make(map[K]V)}
}

func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *OrderedMap[K, V]) Has(key K) bool {
	_, ok := m.items[key]
	return ok
}

func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

func (m *OrderedMap[K, V]) Delete(key K) bool {
	if _, ok := m.items[key]; !ok {
		return false
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

func (m *OrderedMap[K, V]) Len() int {
	return len(m.items)
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (m *OrderedMap[K, V]) Keys() []K {
	keys := make([]K, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Values returns the values in insertion order.
func (m *OrderedMap[K, V]) Values() []V {
	values := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		values = append(values, m.items[k])
	}
	return values
}

// Find returns the first value (in insertion order) for which fn returns true.
func (m *OrderedMap[K, V]) Find(fn func(K, V) bool) (V, bool) {
	for _, k := range m.keys {
		if fn(k, m.items[k]) {
			return m.items[k], true
		}
	}
	var zero V
	return zero, false
}

// Filter returns all values (in insertion order) for which fn returns true.
func (m *OrderedMap[K, V]) Filter(fn func(K, V) bool) []V {
	var values []V
	for _, k := range m.keys {
		if fn(k, m.items[k]) {
			values = append(values, m.items[k])
		}
	}
	return values
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *OrderedMap[K, V]) Range(fn func(K, V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.items[k]) {
			return
		}
	}
}
