package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetMembership(t *testing.T) {
	s := NewSet("a", "b")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
	assert.Equal(t, 2, s.Len())
}
