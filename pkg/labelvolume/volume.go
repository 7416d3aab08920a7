// Package labelvolume holds the dense 3D array of segmentation labels.
//
// A Volume is not safe for concurrent mutation. Read-only scans may run in
// parallel with each other; the segmentation editor serializes writes.
package labelvolume

import (
	"github.com/zeebo/errs"

	"segedit/internal/models"
)

var (
	// Error is the class for label volume errors
	Error = errs.Class("labelvolume")

	// ErrOutOfRange is returned for coordinates or indices outside the volume
	ErrOutOfRange = errs.Class("voxel out of range")
)

// Volume is a dense array of labels in row-major order (X fastest)
type Volume struct {
	size models.Size
	data []models.Label
}

// New allocates a volume of the given size filled with background
func New(size models.Size) (*Volume, error) {
	if !size.Valid() {
		return nil, Error.New("invalid size %v", size)
	}
	return &Volume{
		size: size,
		data: make([]models.Label, size.Len()),
	}, nil
}

// FromData wraps existing label data. The slice is copied.
func FromData(size models.Size, labels []models.Label) (*Volume, error) {
	v, err := New(size)
	if err != nil {
		return nil, err
	}
	if len(labels) != size.Len() {
		return nil, Error.New("have %d labels for size %v (%d voxels)", len(labels), size, size.Len())
	}
	copy(v.data, labels)
	return v, nil
}

// Size returns the dimensions
func (v *Volume) Size() models.Size { return v.size }

// Len returns the number of voxels
func (v *Volume) Len() int { return len(v.data) }

// Get returns the label at c
func (v *Volume) Get(c models.Coord) (models.Label, error) {
	if !v.size.Contains(c) {
		return 0, ErrOutOfRange.New("%v outside %v", c, v.size)
	}
	return v.data[v.size.Index(c)], nil
}

// Set writes a label at c without recording undo information.
// Editing operations go through segmentation.Editor instead.
func (v *Volume) Set(c models.Coord, l models.Label) error {
	if !v.size.Contains(c) {
		return ErrOutOfRange.New("%v outside %v", c, v.size)
	}
	v.data[v.size.Index(c)] = l
	return nil
}

// At returns the label at a linear index. The index must be in [0, Len()).
func (v *Volume) At(i int) models.Label { return v.data[i] }

// SetAt writes a label at a linear index. The index must be in [0, Len()).
func (v *Volume) SetAt(i int, l models.Label) { v.data[i] = l }

// Fill sets every voxel to l
func (v *Volume) Fill(l models.Label) {
	for i := range v.data {
		v.data[i] = l
	}
}

// Data exposes the underlying labels. Callers must not modify the slice.
func (v *Volume) Data() []models.Label { return v.data }

// Clone returns a deep copy
func (v *Volume) Clone() *Volume {
	data := make([]models.Label, len(v.data))
	copy(data, v.data)
	return &Volume{size: v.size, data: data}
}

// Equal reports whether both volumes have identical size and labels
func (v *Volume) Equal(o *Volume) bool {
	if v.size != o.size {
		return false
	}
	for i, l := range v.data {
		if o.data[i] != l {
			return false
		}
	}
	return true
}

// Crop copies the region [origin, origin+size) into a new volume
func (v *Volume) Crop(origin models.Coord, size models.Size) (*Volume, error) {
	last := origin.Add(models.Coord{X: size[0] - 1, Y: size[1] - 1, Z: size[2] - 1})
	if !v.size.Contains(origin) || !v.size.Contains(last) {
		return nil, ErrOutOfRange.New("region %v+%v outside %v", origin, size, v.size)
	}
	out, err := New(size)
	if err != nil {
		return nil, err
	}
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			src := v.size.Index(models.Coord{X: origin.X, Y: origin.Y + y, Z: origin.Z + z})
			dst := size.Index(models.Coord{Y: y, Z: z})
			copy(out.data[dst:dst+size[0]], v.data[src:src+size[0]])
		}
	}
	return out, nil
}
