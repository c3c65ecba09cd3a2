package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedMappingPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMapping[int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)

	assert.Equal(t, []string{"c", "a", "b"}, m.Keys())
}

func TestMappingDeleteRemovesFromOrder(t *testing.T) {
	m := NewOrderedMapping[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Delete("a")

	assert.Equal(t, []string{"b"}, m.Keys())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMappingSetReplacesWithoutDuplicatingOrder(t *testing.T) {
	m := NewOrderedMapping[int]()
	m.Set("a", 1)
	m.Set("a", 2)

	assert.Equal(t, []string{"a"}, m.Keys())
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMappingCloneIsIndependent(t *testing.T) {
	m := NewOrderedMapping[int]()
	m.Set("a", 1)
	clone := m.Clone()
	clone.Set("b", 2)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestMappingAsMapIsDefensiveCopy(t *testing.T) {
	m := NewMapping[int]()
	m.Set("a", 1)
	snapshot := m.AsMap()
	snapshot["a"] = 99

	v, _ := m.Get("a")
	assert.Equal(t, 1, v)
}
