package ringbuf

// DefaultCapacity is used when a buffer is created with a non-positive
// capacity.
const DefaultCapacity = 1000

// Buffer is a fixed-capacity FIFO ring. Push beyond capacity evicts the
// oldest element without any signal to the caller; dropping old history is
// the buffer's contract, not an error. The zero value is not usable; use
// New. Buffer is not safe for concurrent use, callers hold their own lock.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New creates a buffer holding at most capacity elements. Non-positive
// capacities fall back to DefaultCapacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v as the newest element, evicting the oldest when full.
func (b *Buffer[T]) Push(v T) {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
}

// Snapshot returns the buffered elements oldest-first in a freshly
// allocated slice. The buffer is left untouched.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Clear drops every buffered element and releases their values.
func (b *Buffer[T]) Clear() {
	clear(b.items)
	b.head = 0
	b.size = 0
}
