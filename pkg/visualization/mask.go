package visualization

import (
	"image"
)

// Mask is a binary drawing on a display slice. Its origin is (0, 0).
type Mask struct {
	width, height int
	bits          []bool
}

// NewMask creates an empty w x h drawing
func NewMask(w, h int) (*Mask, error) {
	if w <= 0 || h <= 0 {
		return nil, Error.New("invalid mask size %dx%d", w, h)
	}
	return &Mask{width: w, height: h, bits: make([]bool, w*h)}, nil
}

// MaskFromImage sets every pixel of img that is not zero
func MaskFromImage(img image.Image) (*Mask, error) {
	r := img.Bounds()
	m, err := NewMask(r.Dx(), r.Dy())
	if err != nil {
		return nil, err
	}
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			cr, cg, cb, _ := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
			m.bits[y*m.width+x] = cr|cg|cb != 0
		}
	}
	return m, nil
}

// Bounds is the rectangle covered by the mask
func (m *Mask) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

// At reports whether (x, y) is set. Points outside the mask are unset.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.bits[y*m.width+x]
}

// Set marks or clears (x, y). Points outside the mask are ignored.
func (m *Mask) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	m.bits[y*m.width+x] = on
}

// FillRect sets every point of r that lies inside the mask
func (m *Mask) FillRect(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.bits[y*m.width+x] = true
		}
	}
}

// Count returns the number of set points
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}
