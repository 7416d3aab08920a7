package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSizeIndexRoundTrip verifies Index and Coord are inverses over every voxel
func TestSizeIndexRoundTrip(t *testing.T) {
	size := Size{4, 3, 5}
	seen := make(map[int]bool)
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				c := Coord{x, y, z}
				idx := size.Index(c)
				assert.False(t, seen[idx], "index %d produced twice", idx)
				seen[idx] = true
				assert.Equal(t, c, size.Coord(idx))
			}
		}
	}
	assert.Len(t, seen, size.Len())
}

func TestSizeContainsAndClamp(t *testing.T) {
	size := Size{10, 10, 10}

	assert.True(t, size.Contains(Coord{0, 0, 0}))
	assert.True(t, size.Contains(Coord{9, 9, 9}))
	assert.False(t, size.Contains(Coord{10, 0, 0}))
	assert.False(t, size.Contains(Coord{0, -1, 0}))

	assert.Equal(t, Coord{0, 9, 5}, size.Clamp(Coord{-3, 12, 5}))
	assert.False(t, Size{0, 1, 1}.Valid())
}

func TestCoordAxisHelpers(t *testing.T) {
	c := Coord{1, 2, 3}
	assert.Equal(t, 2, c.Axis(1))
	assert.Equal(t, Coord{1, 2, 7}, c.WithAxis(2, 7))
	assert.Equal(t, Coord{2, 4, 6}, c.Add(c))
	assert.Equal(t, Coord{}, c.Sub(c))
	assert.Equal(t, "(1,2,3)", c.String())
}
