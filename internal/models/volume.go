package models

import "fmt"

// Label identifies a segmentation class. Label 0 is reserved for background.
type Label uint16

// Background is the unlabeled value.
const Background Label = 0

// Coord is an integer voxel index (i, j, k) into a volume
type Coord struct {
	X, Y, Z int
}

// String formats the coordinate as (x,y,z)
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Axis returns the component along image axis 0, 1 or 2.
func (c Coord) Axis(a int) int {
	switch a {
	case 0:
		return c.X
	case 1:
		return c.Y
	default:
		return c.Z
	}
}

// WithAxis returns a copy of c with the component along axis a replaced.
func (c Coord) WithAxis(a, v int) Coord {
	switch a {
	case 0:
		c.X = v
	case 1:
		c.Y = v
	default:
		c.Z = v
	}
	return c
}

// Add returns the component-wise sum of c and o
func (c Coord) Add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

// Sub returns the component-wise difference c - o
func (c Coord) Sub(o Coord) Coord {
	return Coord{c.X - o.X, c.Y - o.Y, c.Z - o.Z}
}

// Size holds the dimensions of a volume in voxels along X, Y and Z.
// Data is stored in row-major order with X varying fastest.
type Size [3]int

// Len returns the number of voxels
func (s Size) Len() int {
	return s[0] * s[1] * s[2]
}

// Valid reports whether every dimension is positive
func (s Size) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// Contains reports whether c lies inside [0,X)x[0,Y)x[0,Z)
func (s Size) Contains(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.Z >= 0 &&
		c.X < s[0] && c.Y < s[1] && c.Z < s[2]
}

// Index converts a coordinate to a linear offset. The caller must check Contains first.
func (s Size) Index(c Coord) int {
	return c.Z*s[0]*s[1] + c.Y*s[0] + c.X
}

// Coord converts a linear offset back to a coordinate
func (s Size) Coord(index int) Coord {
	plane := s[0] * s[1]
	z := index / plane
	rem := index - z*plane
	y := rem / s[0]
	return Coord{X: rem - y*s[0], Y: y, Z: z}
}

// Clamp returns the coordinate nearest to c that lies inside the volume
func (s Size) Clamp(c Coord) Coord {
	for a := 0; a < 3; a++ {
		v := c.Axis(a)
		if v < 0 {
			v = 0
		}
		if v >= s[a] {
			v = s[a] - 1
		}
		c = c.WithAxis(a, v)
	}
	return c
}

// String formats the size as XxYxZ
func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2])
}

// Spacing is the physical size of a voxel in mm along each image axis
type Spacing [3]float64

// VoxelVolume returns the volume of one voxel in cubic mm
func (s Spacing) VoxelVolume() float64 {
	return s[0] * s[1] * s[2]
}

// UnitSpacing is 1mm isotropic spacing
var UnitSpacing = Spacing{1, 1, 1}

// ProgressCallback is invoked periodically during long scans.
// message may be empty; total is 0 for purely informational messages.
type ProgressCallback func(completed, total int, message string)
