package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceAppendAndAt(t *testing.T) {
	s := NewSequence[string]()
	s.Append("a")
	s.Append("b")

	v, ok := s.At(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = s.At(5)
	assert.False(t, ok)
}

func TestSequenceIndexOfAndRemove(t *testing.T) {
	s := NewSequence("a", "b", "c")
	assert.Equal(t, 1, s.IndexOf("b"))
	assert.Equal(t, -1, s.IndexOf("z"))

	assert.True(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Slice())
	assert.False(t, s.Remove("b"))
}

func TestSequenceSliceIsDefensiveCopy(t *testing.T) {
	s := NewSequence(1, 2, 3)
	snapshot := s.Slice()
	snapshot[0] = 99

	v, _ := s.At(0)
	assert.Equal(t, 1, v)
}
