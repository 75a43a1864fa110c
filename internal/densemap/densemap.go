package densemap

import "iter"

// ID addresses a slot in a DenseMap.
type ID int

type slot[T any] struct {
	value    T
	occupied bool
}

// DenseMap stores values in a slice of slots, recycling vacant slots through
// a free list.
type DenseMap[T any] struct {
	slots []slot[T]
	free  []ID
	len   int
}

// New creates an empty DenseMap.
func New[T any]() *DenseMap[T] {
	return &DenseMap[T]{}
}

// Add stores v and returns the ID of its slot. A vacant slot is reused before
// the backing slice grows.
func (m *DenseMap[T]) Add(v T) ID {
	m.len++
	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[id] = slot[T]{value: v, occupied: true}
		return id
	}
	m.slots = append(m.slots, slot[T]{value: v, occupied: true})
	return ID(len(m.slots) - 1)
}

// Get returns the value stored at id.
func (m *DenseMap[T]) Get(id ID) (T, bool) {
	if !m.valid(id) {
		var zero T
		return zero, false
	}
	return m.slots[id].value, true
}

// Set replaces the value at an occupied slot. It reports false if id is vacant.
func (m *DenseMap[T]) Set(id ID, v T) bool {
	if !m.valid(id) {
		return false
	}
	m.slots[id].value = v
	return true
}

// Remove vacates the slot at id and returns the value it held. Removing a
// vacant or unknown id is a no-op.
func (m *DenseMap[T]) Remove(id ID) (T, bool) {
	var zero T
	if !m.valid(id) {
		return zero, false
	}
	v := m.slots[id].value
	// Clear the value so the slot does not pin the old handle.
	m.slots[id] = slot[T]{}
	m.free = append(m.free, id)
	m.len--
	return v, true
}

// Len returns the number of occupied slots.
func (m *DenseMap[T]) Len() int {
	return m.len
}

// All yields every occupied slot in index order.
func (m *DenseMap[T]) All() iter.Seq2[ID, T] {
	return func(yield func(ID, T) bool) {
		for i := range m.slots {
			if !m.slots[i].occupied {
				continue
			}
			if !yield(ID(i), m.slots[i].value) {
				return
			}
		}
	}
}

// Values yields every stored value in index order.
func (m *DenseMap[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

func (m *DenseMap[T]) valid(id ID) bool {
	return id >= 0 && int(id) < len(m.slots) && m.slots[id].occupied
}
