package orientation

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"segedit/internal/models"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"RAI", false},
		{"lps", false},
		{"ASR", false},
		{"RRI", true},  // repeated letter
		{"RLI", true},  // R and L share an axis
		{"RA", true},   // too short
		{"RAIS", true}, // too long
		{"RAX", true},  // unknown letter
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := ParseCode(tt.code)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ErrInvalidOrientationCode.Has(err), "unexpected error class: %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDirectionAlgebra(t *testing.T) {
	for _, d := range Directions {
		assert.Equal(t, d, d.Opposite().Opposite())
		assert.Equal(t, d.Axis(), d.Opposite().Axis())
		assert.Equal(t, -d.Sign(), d.Opposite().Sign())

		parsed, err := ParseDirection(d.String()[0])
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
}

func TestImageAxisForAnatomicalDirection(t *testing.T) {
	tr, err := NewFromStrings("ASR", [3]string{"RPS", "AIR", "RIP"})
	require.NoError(t, err)

	// A on axis 0, S on axis 1, R on axis 2
	axis, sign, err := tr.ImageDirectionForAnatomicalDirection(Anterior)
	require.NoError(t, err)
	assert.Equal(t, 0, axis)
	assert.Equal(t, 1, sign)

	axis, sign, err = tr.ImageDirectionForAnatomicalDirection(Inferior)
	require.NoError(t, err)
	assert.Equal(t, 1, axis)
	assert.Equal(t, -1, sign)

	axis, err = tr.ImageAxisForAnatomicalDirection(Left)
	require.NoError(t, err)
	assert.Equal(t, 2, axis)
}

func TestInvalidDirection(t *testing.T) {
	tr, err := New(MustParseCode("RAI"), DefaultDisplay)
	require.NoError(t, err)

	for _, d := range []Direction{Direction(6), Direction(-1), Direction(255)} {
		_, err := tr.ImageAxisForAnatomicalDirection(d)
		assert.True(t, ErrOutOfRange.Has(err), "axis for %d", int(d))

		_, _, err = tr.ImageDirectionForAnatomicalDirection(d)
		assert.True(t, ErrOutOfRange.Has(err), "direction for %d", int(d))

		_, err = tr.DisplayWindowForAnatomicalDirection(d)
		assert.True(t, ErrOutOfRange.Has(err), "window for %d", int(d))
	}
}

// TestDisplayWindowRoundTrip checks the window lookup is exactly invertible for all six directions
func TestDisplayWindowRoundTrip(t *testing.T) {
	for _, code := range []string{"RAI", "LPS", "ASR", "SIL"} {
		t.Run(code, func(t *testing.T) {
			// SIL is invalid: S and I share an axis
			tr, err := NewFromStrings(code, [3]string{"RPS", "AIR", "RIP"})
			if code == "SIL" {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, d := range Directions {
				ref, err := tr.DisplayWindowForAnatomicalDirection(d)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, ref.Window, 0)
				assert.Less(t, ref.Window, NumWindows)

				back, err := tr.AnatomicalDirectionForDisplayWindow(ref)
				require.NoError(t, err)
				assert.Equal(t, d, back, "direction %v via window %+v", d, ref)
			}
		})
	}
}

func TestDefaultWindows(t *testing.T) {
	tr, err := New(MustParseCode("RAI"), DefaultDisplay)
	require.NoError(t, err)

	// axial looks along S, sagittal along R, coronal along P
	for d, want := range map[Direction]WindowRef{
		Superior:  {Window: 0},
		Inferior:  {Window: 0, Flipped: true},
		Right:     {Window: 1},
		Posterior: {Window: 2},
	} {
		ref, err := tr.DisplayWindowForAnatomicalDirection(d)
		require.NoError(t, err)
		assert.Equal(t, want, ref, "direction %v", d)
	}
}

func TestWindowOutOfRange(t *testing.T) {
	tr, err := New(MustParseCode("RAI"), DefaultDisplay)
	require.NoError(t, err)

	for _, w := range []int{-1, 3, 42} {
		_, err := tr.AnatomicalDirectionForDisplayWindow(WindowRef{Window: w})
		require.Error(t, err)
		assert.True(t, ErrOutOfRange.Has(err))

		_, err = tr.DisplayCode(w)
		assert.True(t, ErrOutOfRange.Has(err))
	}
}

func TestDisplayCodesMustCoverAllAxes(t *testing.T) {
	// two windows looking along S/I
	_, err := NewFromStrings("RAI", [3]string{"RPS", "RAI", "RIP"})
	require.Error(t, err)
	assert.True(t, ErrInvalidOrientationCode.Has(err))
}

// TestImageDisplayRoundTrip maps every voxel of a small volume into each window and back
func TestImageDisplayRoundTrip(t *testing.T) {
	size := models.Size{4, 3, 2}
	for _, code := range []string{"RAI", "LPS", "ASR", "IPL"} {
		t.Run(code, func(t *testing.T) {
			tr, err := NewFromStrings(code, [3]string{"RPS", "AIR", "RIP"})
			require.NoError(t, err)

			for w := 0; w < NumWindows; w++ {
				ds, err := tr.DisplaySize(w, size)
				require.NoError(t, err)
				assert.Equal(t, size.Len(), ds.Len())

				seen := make(map[models.Coord]bool)
				for i := 0; i < size.Len(); i++ {
					c := size.Coord(i)
					d, err := tr.ImageToDisplay(w, c, size)
					require.NoError(t, err)
					require.True(t, ds.Contains(d), "display coordinate %v outside %v", d, ds)
					assert.False(t, seen[d], "display coordinate %v hit twice", d)
					seen[d] = true

					back, err := tr.DisplayToImage(w, d, size)
					require.NoError(t, err)
					assert.Equal(t, c, back)
				}
			}
		})
	}
}

func TestImageToDisplayFlips(t *testing.T) {
	size := models.Size{10, 20, 30}
	tr, err := NewFromStrings("RAI", [3]string{"RPS", "AIR", "RIP"})
	require.NoError(t, err)

	// axial window: x toward R (image x as is), y toward P (flip image y), slice toward S (flip image z)
	d, err := tr.ImageToDisplay(0, models.Coord{X: 1, Y: 2, Z: 3}, size)
	require.NoError(t, err)
	assert.Equal(t, models.Coord{X: 1, Y: 17, Z: 26}, d)

	slice, err := tr.SliceIndex(0, models.Coord{X: 1, Y: 2, Z: 3}, size)
	require.NoError(t, err)
	assert.Equal(t, 26, slice)

	_, err = tr.ImageToDisplay(0, models.Coord{X: 10}, size)
	assert.True(t, ErrOutOfRange.Has(err))
}

func TestImageAnatomyRoundTrip(t *testing.T) {
	size := models.Size{3, 4, 5}
	tr, err := NewFromStrings("PSL", [3]string{"RPS", "AIR", "RIP"})
	require.NoError(t, err)

	for i := 0; i < size.Len(); i++ {
		c := size.Coord(i)
		a, err := tr.ImageToAnatomy(c, size)
		require.NoError(t, err)
		back, err := tr.AnatomyToImage(a, size)
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}

	// image x points P, so anatomical A index = size.x-1-x
	a, err := tr.ImageToAnatomy(models.Coord{X: 0, Y: 0, Z: 0}, size)
	require.NoError(t, err)
	assert.Equal(t, models.Coord{X: 4, Y: 2, Z: 3}, a)
}

func TestFromDirectionMatrix(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		tr, err := FromDirectionMatrix(mat.NewDiagDense(3, []float64{1, 1, 1}), DefaultDisplay)
		require.NoError(t, err)
		assert.Equal(t, "LPS", tr.ImageCode().String())
		assert.False(t, tr.IsOblique())
	})

	t.Run("code round trip", func(t *testing.T) {
		for _, s := range []string{"RAI", "ASR", "PIL", "SLA"} {
			c := MustParseCode(s)
			tr, err := FromDirectionMatrix(c.Matrix(), DefaultDisplay)
			require.NoError(t, err)
			assert.Equal(t, c, tr.ImageCode(), fmt.Sprintf("code %s", s))
			assert.False(t, tr.IsOblique())
		}
	})

	t.Run("rotated", func(t *testing.T) {
		th := 30 * math.Pi / 180
		m := mat.NewDense(3, 3, []float64{
			math.Cos(th), -math.Sin(th), 0,
			math.Sin(th), math.Cos(th), 0,
			0, 0, 1,
		})
		tr, err := FromDirectionMatrix(m, DefaultDisplay)
		require.NoError(t, err)
		assert.True(t, tr.IsOblique())
		assert.Equal(t, "LPS", tr.ImageCode().String())

		// display changes keep obliquity
		tr2, err := tr.WithDisplay(DefaultDisplay)
		require.NoError(t, err)
		assert.True(t, tr2.IsOblique())
	})

	t.Run("bad shape", func(t *testing.T) {
		_, err := FromDirectionMatrix(mat.NewDense(2, 2, nil), DefaultDisplay)
		assert.True(t, ErrInvalidOrientationCode.Has(err))
	})
}
