package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/tensor"
)

func TestStore(t *testing.T) {
	s := NewStore()
	_, err := s.Alloc("b", tensor.Shape{2, 3}, tensor.BFloat16)
	require.NoError(t, err)
	_, err = s.Alloc("a", tensor.Shape{4}, tensor.Float32)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, s.Names())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(2*3*2+4*4), s.ByteSize())

	_, err = s.Alloc("a", tensor.Shape{4}, tensor.Float32)
	require.Error(t, err)

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestCoverage(t *testing.T) {
	c := newCoverage()

	require.NoError(t, c.mark("w", "a", 8, 16))
	require.NoError(t, c.mark("w", "b", 0, 4))
	require.NoError(t, c.mark("w", "c", 24, 32))
	require.NoError(t, c.mark("w", "empty", 5, 5))

	err := c.mark("w", "d", 12, 20)
	var dup *DuplicateWriteError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 12, dup.Start)
	assert.Equal(t, 16, dup.End)
	assert.Equal(t, "d", dup.Source)

	assert.Equal(t, [][2]int{{4, 8}, {16, 24}, {32, 40}}, c.gaps("w", 40))
	assert.Equal(t, [][2]int{{0, 3}}, c.gaps("other", 3))
}
