package visualization

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"segedit/internal/models"
	"segedit/pkg/labelvolume"
	"segedit/pkg/orientation"
)

// newTestVolume labels every voxel with its z index plus one
func newTestVolume(t *testing.T, size models.Size) *labelvolume.Volume {
	t.Helper()
	vol, err := labelvolume.New(size)
	require.NoError(t, err)
	for i := 0; i < vol.Len(); i++ {
		vol.SetAt(i, models.Label(size.Coord(i).Z+1))
	}
	return vol
}

func raiTransform(t *testing.T) *orientation.Transform {
	t.Helper()
	xf, err := orientation.New(orientation.MustParseCode("RAI"), orientation.DefaultDisplay)
	require.NoError(t, err)
	return xf
}

// TestExtractSlice verifies that every pixel of every window slice shows the
// label of the voxel the transform maps it to
func TestExtractSlice(t *testing.T) {
	size := models.Size{6, 5, 4}
	vol := newTestVolume(t, size)
	xf := raiTransform(t)
	viewer := NewViewer(vol, xf)

	for w := 0; w < orientation.NumWindows; w++ {
		ds, err := xf.DisplaySize(w, size)
		require.NoError(t, err)

		for pos := 0; pos < ds[2]; pos++ {
			img, err := viewer.ExtractSlice(w, pos)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, ds[0], ds[1]), img.Bounds())

			for y := 0; y < ds[1]; y++ {
				for x := 0; x < ds[0]; x++ {
					c, err := xf.DisplayToImage(w, models.Coord{X: x, Y: y, Z: pos}, size)
					require.NoError(t, err)
					want := uint16(c.Z + 1)
					require.Equal(t, want, img.Gray16At(x, y).Y, "window %d slice %d pixel (%d,%d)", w, pos, x, y)
				}
			}
		}
	}

	_, err := viewer.ExtractSlice(0, -1)
	assert.True(t, Error.Has(err))
	_, err = viewer.ExtractSlice(5, 0)
	assert.True(t, orientation.ErrOutOfRange.Has(err))
}

// TestAxialSliceIsConstant checks that the axial window looks along the I/S axis
func TestAxialSliceIsConstant(t *testing.T) {
	size := models.Size{3, 3, 4}
	vol := newTestVolume(t, size)
	xf := raiTransform(t)

	slice, err := xf.SliceIndex(0, models.Coord{X: 1, Y: 1, Z: 2}, size)
	require.NoError(t, err)

	img, err := ExtractLabelSlice(vol, xf, 0, slice)
	require.NoError(t, err)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, uint16(3), img.Gray16At(x, y).Y)
		}
	}
}

func TestExtractSliceOblique(t *testing.T) {
	size := models.Size{4, 4, 4}
	vol := newTestVolume(t, size)

	const s = 0.5
	c := 0.8660254037844386
	m := mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
	xf, err := orientation.FromDirectionMatrix(m, orientation.DefaultDisplay)
	require.NoError(t, err)
	require.True(t, xf.IsOblique())

	_, err = ExtractLabelSlice(vol, xf, 0, 0)
	assert.True(t, ErrOblique.Has(err))
}

// TestSaveSliceSequence verifies that every slice is written and decodes back
// to the same labels
func TestSaveSliceSequence(t *testing.T) {
	size := models.Size{5, 4, 3}
	vol := newTestVolume(t, size)
	xf := raiTransform(t)
	viewer := NewViewer(vol, xf)

	dir := filepath.Join(t.TempDir(), "slices")
	n, err := viewer.SaveSliceSequence(0, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	f, err := os.Open(filepath.Join(dir, "slice_w0_001.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	want, err := viewer.ExtractSlice(0, 1)
	require.NoError(t, err)
	for y := 0; y < want.Bounds().Dy(); y++ {
		for x := 0; x < want.Bounds().Dx(); x++ {
			assert.Equal(t, color.Gray16Model.Convert(img.At(x, y)), want.At(x, y))
		}
	}
}

func TestMask(t *testing.T) {
	m, err := NewMask(4, 3)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), m.Bounds())

	m.Set(1, 2, true)
	m.Set(9, 9, true)
	assert.True(t, m.At(1, 2))
	assert.False(t, m.At(9, 9))
	assert.Equal(t, 1, m.Count())

	m.FillRect(image.Rect(2, 0, 10, 2))
	assert.Equal(t, 5, m.Count())

	_, err = NewMask(0, 3)
	assert.True(t, Error.Has(err))
}

func TestMaskFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(10, 10, 13, 12))
	img.SetGray(10, 10, color.Gray{Y: 255})
	img.SetGray(12, 11, color.Gray{Y: 1})

	m, err := MaskFromImage(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), m.Bounds())
	assert.True(t, m.At(0, 0))
	assert.True(t, m.At(2, 1))
	assert.Equal(t, 2, m.Count())
}
