// Package reorder turns out-of-order completions back into index order.
package reorder

import (
	"errors"
	"fmt"
)

// ErrDuplicateIndex is returned when an index is inserted twice.
var ErrDuplicateIndex = errors.New("index already inserted")

// ErrStaleIndex is returned for an index that was already drained.
var ErrStaleIndex = errors.New("index already drained")

// Buffer holds values keyed by a dense index and releases them strictly in
// ascending index order. It is not safe for concurrent use; callers guard it
// with their own lock.
type Buffer[T any] struct {
	pending map[int]T
	next    int
}

// New returns an empty buffer whose first expected index is 0.
func New[T any]() *Buffer[T] {
	return &Buffer[T]{pending: make(map[int]T)}
}

// Insert records the value for index. Each index may be inserted once.
func (b *Buffer[T]) Insert(index int, value T) error {
	if index < b.next {
		return fmt.Errorf("insert %d (next %d): %w", index, b.next, ErrStaleIndex)
	}
	if _, ok := b.pending[index]; ok {
		return fmt.Errorf("insert %d: %w", index, ErrDuplicateIndex)
	}
	b.pending[index] = value
	return nil
}

// Drain removes and returns the contiguous run of values starting at the
// next expected index. It returns nil when that index is still missing.
func (b *Buffer[T]) Drain() []T {
	var out []T
	for {
		v, ok := b.pending[b.next]
		if !ok {
			return out
		}
		delete(b.pending, b.next)
		out = append(out, v)
		b.next++
	}
}

// Next returns the lowest index not yet drained.
func (b *Buffer[T]) Next() int {
	return b.next
}

// Pending returns how many values wait for a gap to fill.
func (b *Buffer[T]) Pending() int {
	return len(b.pending)
}
