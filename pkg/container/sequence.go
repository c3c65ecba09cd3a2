// Package container provides the semantic containers named by the
// specification's utility primitives: an ordered sequence, a mapping with
// optional stable iteration order, and a set (backed by
// k8s.io/apimachinery/pkg/util/sets, the container library already pulled in
// by the rest of this module's Kubernetes-shaped tooling).
package container

// Sequence is an ordered collection with O(1) append and O(n) IndexOf and
// Remove, matching the "ordered sequence of T" primitive from the
// specification.
type Sequence[T comparable] struct {
	items []T
}

// NewSequence creates a Sequence, optionally pre-populated.
func NewSequence[T comparable](items ...T) *Sequence[T] {
	s := &Sequence[T]{items: make([]T, 0, len(items))}
	s.items = append(s.items, items...)
	return s
}

// Append adds an item to the end of the sequence.
func (s *Sequence[T]) Append(item T) {
	s.items = append(s.items, item)
}

// At returns the item at index i and whether i was in range.
func (s *Sequence[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s.items) {
		return zero, false
	}
	return s.items[i], true
}

// IndexOf returns the index of the first occurrence of item, or -1.
func (s *Sequence[T]) IndexOf(item T) int {
	for i, v := range s.items {
		if v == item {
			return i
		}
	}
	return -1
}

// Remove deletes the first occurrence of item, if present.
func (s *Sequence[T]) Remove(item T) bool {
	idx := s.IndexOf(item)
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return true
}

// Len returns the number of items.
func (s *Sequence[T]) Len() int {
	return len(s.items)
}

// Slice returns a defensive copy of the underlying items.
func (s *Sequence[T]) Slice() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
