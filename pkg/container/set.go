package container

import "k8s.io/apimachinery/pkg/util/sets"

// Set is the specification's "semantic set" primitive. It re-exports
// k8s.io/apimachinery/pkg/util/sets.Set under Celix-native constructor names
// so call sites never need to import apimachinery directly.
type Set[T comparable] = sets.Set[T]

// NewSet creates a Set containing the given items.
func NewSet[T comparable](items ...T) Set[T] {
	return sets.New[T](items...)
}
