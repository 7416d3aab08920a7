package labelvolume

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"segedit/internal/models"
)

func newTestVolume(t *testing.T, size models.Size) *Volume {
	t.Helper()
	v, err := New(size)
	require.NoError(t, err)
	return v
}

func TestNewVolume(t *testing.T) {
	v := newTestVolume(t, models.Size{10, 10, 5})
	assert.Equal(t, 500, v.Len())
	assert.Equal(t, models.Size{10, 10, 5}, v.Size())

	_, err := New(models.Size{0, 10, 10})
	assert.True(t, Error.Has(err))
}

func TestFromDataLengthChecked(t *testing.T) {
	_, err := FromData(models.Size{2, 2, 2}, make([]models.Label, 7))
	require.Error(t, err)

	data := []models.Label{1, 2, 3, 4, 5, 6, 7, 8}
	v, err := FromData(models.Size{2, 2, 2}, data)
	require.NoError(t, err)

	// the input is copied
	data[0] = 99
	l, err := v.Get(models.Coord{})
	require.NoError(t, err)
	assert.Equal(t, models.Label(1), l)

	l, err = v.Get(models.Coord{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, models.Label(8), l)
}

func TestGetSetBoundsChecked(t *testing.T) {
	v := newTestVolume(t, models.Size{4, 4, 4})

	require.NoError(t, v.Set(models.Coord{X: 3, Y: 2, Z: 1}, 9))
	l, err := v.Get(models.Coord{X: 3, Y: 2, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, models.Label(9), l)

	for _, c := range []models.Coord{{X: 4}, {Y: -1}, {Z: 100}} {
		_, err := v.Get(c)
		assert.True(t, ErrOutOfRange.Has(err), "Get(%v)", c)
		assert.True(t, ErrOutOfRange.Has(v.Set(c, 1)), "Set(%v)", c)
	}
}

func TestCloneEqualCrop(t *testing.T) {
	v := newTestVolume(t, models.Size{5, 4, 3})
	for i := 0; i < v.Len(); i++ {
		v.SetAt(i, models.Label(i%7))
	}

	c := v.Clone()
	assert.True(t, v.Equal(c))
	c.SetAt(0, 100)
	assert.False(t, v.Equal(c))

	crop, err := v.Crop(models.Coord{X: 1, Y: 1, Z: 1}, models.Size{3, 2, 2})
	require.NoError(t, err)
	for i := 0; i < crop.Len(); i++ {
		cc := crop.Size().Coord(i)
		want, err := v.Get(cc.Add(models.Coord{X: 1, Y: 1, Z: 1}))
		require.NoError(t, err)
		assert.Equal(t, want, crop.At(i), "crop voxel %v", cc)
	}

	_, err = v.Crop(models.Coord{X: 3}, models.Size{3, 1, 1})
	assert.True(t, ErrOutOfRange.Has(err))
}

func TestCountVoxelsWithLabel(t *testing.T) {
	v := newTestVolume(t, models.Size{10, 10, 10})
	for i := 0; i < 12; i++ {
		v.SetAt(i*37, 5)
	}

	for _, workers := range []int{0, 1, 3, 16} {
		n, err := v.CountVoxelsWithLabel(context.Background(), 5, workers)
		require.NoError(t, err)
		assert.Equal(t, 12, n, "workers=%d", workers)
	}

	hist, err := v.Histogram(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, map[models.Label]int{0: 988, 5: 12}, hist)
}

func TestScanCancelled(t *testing.T) {
	v := newTestVolume(t, models.Size{8, 8, 8})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.CountVoxelsWithLabel(ctx, 0, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRayIntersection(t *testing.T) {
	v := newTestVolume(t, models.Size{10, 10, 10})
	require.NoError(t, v.Set(models.Coord{X: 5, Y: 5, Z: 5}, 3))
	require.NoError(t, v.Set(models.Coord{X: 8, Y: 5, Z: 5}, 4))

	tests := []struct {
		name      string
		origin    r3.Vec
		direction r3.Vec
		want      models.Coord
		hit       bool
	}{
		{"along x from inside", r3.Vec{X: 0, Y: 5, Z: 5}, r3.Vec{X: 1}, models.Coord{X: 5, Y: 5, Z: 5}, true},
		{"from outside", r3.Vec{X: -20, Y: 5, Z: 5}, r3.Vec{X: 2}, models.Coord{X: 5, Y: 5, Z: 5}, true},
		{"reverse hits far voxel first", r3.Vec{X: 30, Y: 5, Z: 5}, r3.Vec{X: -1}, models.Coord{X: 8, Y: 5, Z: 5}, true},
		{"diagonal", r3.Vec{X: 0, Y: 0, Z: 0}, r3.Vec{X: 1, Y: 1, Z: 1}, models.Coord{X: 5, Y: 5, Z: 5}, true},
		{"miss", r3.Vec{X: 0, Y: 0, Z: 5}, r3.Vec{X: 1}, models.Coord{}, false},
		{"pointing away", r3.Vec{X: 0, Y: 5, Z: 5}, r3.Vec{X: -1}, models.Coord{}, false},
		{"outside and parallel", r3.Vec{X: 0, Y: 20, Z: 5}, r3.Vec{X: 1}, models.Coord{}, false},
		{"zero direction", r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{}, models.Coord{}, false},
		{"NaN direction", r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: math.NaN()}, models.Coord{}, false},
		{"NaN origin", r3.Vec{X: math.NaN(), Y: 5, Z: 5}, r3.Vec{X: 1}, models.Coord{}, false},
		{"infinite direction", r3.Vec{X: 0, Y: 5, Z: 5}, r3.Vec{X: math.Inf(1)}, models.Coord{}, false},
		{"infinite origin", r3.Vec{X: math.Inf(-1), Y: 5, Z: 5}, r3.Vec{X: 1}, models.Coord{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := v.RayIntersection(tt.origin, tt.direction)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.want, got)
		})
	}
}
