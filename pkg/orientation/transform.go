package orientation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"segedit/internal/models"
)

// NumWindows is the number of canonical display windows
const NumWindows = 3

// obliqueTolerance is how far a direction cosine may deviate from a pure axis
// before the image is considered oblique.
const obliqueTolerance = 1e-3

// DefaultDisplay holds the display-to-anatomy codes of the axial, sagittal and
// coronal windows. The third letter of each is the through-plane direction.
var DefaultDisplay = [NumWindows]Code{
	MustParseCode("RPS"),
	MustParseCode("AIR"),
	MustParseCode("RIP"),
}

// WindowRef identifies the display window that shows an anatomical direction.
// Flipped is set when the direction is opposite to the window's through-plane direction.
type WindowRef struct {
	Window  int
	Flipped bool
}

// Transform is an immutable, exactly invertible mapping between image, anatomical
// and display spaces. It is safe for concurrent use.
type Transform struct {
	image   Code
	display [NumWindows]Code

	// windowOf maps an anatomical axis to the window looking along it
	windowOf [3]int

	oblique   bool
	direction *mat.Dense
}

// New builds a transform from an image-to-anatomy code and the three display codes.
func New(image Code, display [NumWindows]Code) (*Transform, error) {
	if err := image.Validate(); err != nil {
		return nil, err
	}

	t := &Transform{image: image, display: display}
	var covered [3]bool
	for w, dc := range display {
		if err := dc.Validate(); err != nil {
			return nil, err
		}
		axis := dc[2].Axis()
		if covered[axis] {
			return nil, ErrInvalidOrientationCode.New("display windows %v look along the same anatomical axis", display)
		}
		covered[axis] = true
		t.windowOf[axis] = w
	}
	t.direction = image.Matrix()
	return t, nil
}

// NewFromStrings parses the codes and calls New
func NewFromStrings(image string, display [NumWindows]string) (*Transform, error) {
	ic, err := ParseCode(image)
	if err != nil {
		return nil, err
	}
	var dc [NumWindows]Code
	for i, s := range display {
		if dc[i], err = ParseCode(s); err != nil {
			return nil, err
		}
	}
	return New(ic, dc)
}

// FromDirectionMatrix derives the closest orientation code from a 3x3 direction
// cosine matrix. Column i holds the unit vector of image axis i in the patient
// frame whose +x, +y and +z point Left, Posterior and Superior. The transform is
// marked oblique when any column is not aligned with a patient axis.
func FromDirectionMatrix(m mat.Matrix, display [NumWindows]Code) (*Transform, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, ErrInvalidOrientationCode.New("direction matrix must be 3x3, got %dx%d", r, c)
	}

	var code Code
	oblique := false
	for col := 0; col < 3; col++ {
		best, bestAbs := 0, -1.0
		for row := 0; row < 3; row++ {
			if v := math.Abs(m.At(row, col)); v > bestAbs {
				best, bestAbs = row, v
			}
		}
		// patient +x is Left (odd), +y Posterior, +z Superior
		d := Direction(2*best + 1)
		if m.At(best, col) < 0 {
			d = d.Opposite()
		}
		code[col] = d

		norm := mat.Norm(mat.NewVecDense(3, []float64{m.At(0, col), m.At(1, col), m.At(2, col)}), 2)
		if norm == 0 || 1-bestAbs/norm > obliqueTolerance {
			oblique = true
		}
	}

	t, err := New(code, display)
	if err != nil {
		return nil, err
	}
	t.oblique = oblique
	t.direction = mat.DenseCopyOf(m)
	return t, nil
}

// WithDisplay returns a copy of t with new display codes. Obliquity is preserved.
func (t *Transform) WithDisplay(display [NumWindows]Code) (*Transform, error) {
	n, err := New(t.image, display)
	if err != nil {
		return nil, err
	}
	n.oblique = t.oblique
	n.direction = mat.DenseCopyOf(t.direction)
	return n, nil
}

// Matrix returns the axis-aligned direction cosine matrix for the code, using the
// same Left/Posterior/Superior patient frame as FromDirectionMatrix.
func (c Code) Matrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for col, d := range c {
		// d.Sign() is +1 for R/A/I, which point along negative patient axes
		m.Set(d.Axis(), col, float64(-d.Sign()))
	}
	return m
}

// ImageCode returns the image-to-anatomy code
func (t *Transform) ImageCode() Code { return t.image }

// DirectionMatrix returns a copy of the direction cosines the transform was built from
func (t *Transform) DirectionMatrix() *mat.Dense { return mat.DenseCopyOf(t.direction) }

// DisplayCode returns the display-to-anatomy code for a window
func (t *Transform) DisplayCode(w int) (Code, error) {
	if w < 0 || w >= NumWindows {
		return Code{}, ErrOutOfRange.New("display window %d", w)
	}
	return t.display[w], nil
}

// IsOblique reports whether the image was built from a direction matrix that is
// not a pure axis permutation.
func (t *Transform) IsOblique() bool { return t.oblique }

// ImageAxisForAnatomicalDirection returns the image axis lying along d
func (t *Transform) ImageAxisForAnatomicalDirection(d Direction) (int, error) {
	axis, _, err := t.ImageDirectionForAnatomicalDirection(d)
	return axis, err
}

// ImageDirectionForAnatomicalDirection returns the image axis lying along d and
// +1 if the axis index increases toward d, -1 otherwise.
func (t *Transform) ImageDirectionForAnatomicalDirection(d Direction) (axis, sign int, err error) {
	if !d.Valid() {
		return 0, 0, ErrOutOfRange.New("anatomical direction %d", int(d))
	}
	axis, sign = t.image.AxisFor(d)
	return axis, sign, nil
}

// DisplayWindowForAnatomicalDirection returns the window looking along d
func (t *Transform) DisplayWindowForAnatomicalDirection(d Direction) (WindowRef, error) {
	if !d.Valid() {
		return WindowRef{}, ErrOutOfRange.New("anatomical direction %d", int(d))
	}
	w := t.windowOf[d.Axis()]
	return WindowRef{Window: w, Flipped: t.display[w][2] != d}, nil
}

// AnatomicalDirectionForDisplayWindow is the exact inverse of DisplayWindowForAnatomicalDirection.
func (t *Transform) AnatomicalDirectionForDisplayWindow(ref WindowRef) (Direction, error) {
	d, err := t.AnatomicalDirectionForWindow(ref.Window)
	if err != nil {
		return 0, err
	}
	if ref.Flipped {
		d = d.Opposite()
	}
	return d, nil
}

// AnatomicalDirectionForWindow returns the through-plane direction of window w
func (t *Transform) AnatomicalDirectionForWindow(w int) (Direction, error) {
	if w < 0 || w >= NumWindows {
		return 0, ErrOutOfRange.New("display window %d", w)
	}
	return t.display[w][2], nil
}

// DisplaySize returns the extent of window w's display axes (x, y, slice)
func (t *Transform) DisplaySize(w int, size models.Size) (models.Size, error) {
	if w < 0 || w >= NumWindows {
		return models.Size{}, ErrOutOfRange.New("display window %d", w)
	}
	var out models.Size
	for j, d := range t.display[w] {
		a, _ := t.image.AxisFor(d)
		out[j] = size[a]
	}
	return out, nil
}

// ImageToDisplay maps an image voxel to window w's (x, y, slice) coordinates
func (t *Transform) ImageToDisplay(w int, c models.Coord, size models.Size) (models.Coord, error) {
	if w < 0 || w >= NumWindows {
		return models.Coord{}, ErrOutOfRange.New("display window %d", w)
	}
	if !size.Contains(c) {
		return models.Coord{}, ErrOutOfRange.New("voxel %v outside %v", c, size)
	}
	return remap(t.image, t.display[w], c, size), nil
}

// DisplayToImage maps window w's (x, y, slice) coordinates back to an image voxel
func (t *Transform) DisplayToImage(w int, c models.Coord, size models.Size) (models.Coord, error) {
	ds, err := t.DisplaySize(w, size)
	if err != nil {
		return models.Coord{}, err
	}
	if !ds.Contains(c) {
		return models.Coord{}, ErrOutOfRange.New("display coordinate %v outside %v", c, ds)
	}
	return remap(t.display[w], t.image, c, ds), nil
}

// SliceIndex returns the slice of window w that contains the cursor
func (t *Transform) SliceIndex(w int, cursor models.Coord, size models.Size) (int, error) {
	d, err := t.ImageToDisplay(w, cursor, size)
	if err != nil {
		return 0, err
	}
	return d.Z, nil
}

// anatomyCode is the canonical R-A-I ordering used for anatomical indices
var anatomyCode = Code{Right, Anterior, Inferior}

// ImageToAnatomy reorders and flips a voxel index so that its axes increase toward R, A and I.
func (t *Transform) ImageToAnatomy(c models.Coord, size models.Size) (models.Coord, error) {
	if !size.Contains(c) {
		return models.Coord{}, ErrOutOfRange.New("voxel %v outside %v", c, size)
	}
	return remap(t.image, anatomyCode, c, size), nil
}

// AnatomyToImage is the inverse of ImageToAnatomy. size is the image size.
func (t *Transform) AnatomyToImage(c models.Coord, size models.Size) (models.Coord, error) {
	var as models.Size
	for k, d := range anatomyCode {
		a, _ := t.image.AxisFor(d)
		as[k] = size[a]
	}
	if !as.Contains(c) {
		return models.Coord{}, ErrOutOfRange.New("anatomical index %v outside %v", c, as)
	}
	return remap(anatomyCode, t.image, c, as), nil
}

// remap converts coordinates expressed along the axes of code src into the axes
// of code dst. srcSize is the extent along src's axes.
func remap(src, dst Code, c models.Coord, srcSize models.Size) models.Coord {
	var out models.Coord
	for j, d := range dst {
		a, sign := src.AxisFor(d)
		v := c.Axis(a)
		if sign < 0 {
			v = srcSize[a] - 1 - v
		}
		out = out.WithAxis(j, v)
	}
	return out
}
