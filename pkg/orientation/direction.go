// Package orientation maps between image voxel space, patient anatomical space and
// the three canonical display windows.
//
// Orientation is expressed as a 3-letter code drawn from R, L, A, P, I and S. Letter i
// names the anatomical direction that image axis i increases toward; "RAI" means x
// increases toward the patient's right, y toward anterior and z toward inferior.
// Because every mapping is a permutation of axes plus a per-axis flip, all lookups are
// table indexing and every inverse is exact.
package orientation

import (
	"strings"

	"github.com/zeebo/errs"
)

var (
	// ErrInvalidOrientationCode is returned when a code does not name each anatomical axis exactly once.
	ErrInvalidOrientationCode = errs.Class("invalid orientation code")

	// ErrOutOfRange is returned for display windows or coordinates outside their valid range.
	ErrOutOfRange = errs.Class("orientation out of range")
)

// Direction is one of the six anatomical directions
type Direction int

const (
	Right Direction = iota
	Left
	Anterior
	Posterior
	Inferior
	Superior
)

// Directions lists all six anatomical directions
var Directions = [6]Direction{Right, Left, Anterior, Posterior, Inferior, Superior}

const letters = "RLAPIS"

// Axis returns the anatomical axis: 0 for R-L, 1 for A-P, 2 for I-S
func (d Direction) Axis() int {
	return int(d) / 2
}

// Sign returns +1 for R, A and I and -1 for L, P and S
func (d Direction) Sign() int {
	if d%2 == 0 {
		return 1
	}
	return -1
}

// Opposite returns the direction pointing the other way along the same axis
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Valid reports whether d is one of the six directions
func (d Direction) Valid() bool {
	return d >= Right && d <= Superior
}

func (d Direction) String() string {
	if !d.Valid() {
		return "?"
	}
	return letters[d : d+1]
}

// ParseDirection converts a letter (case-insensitive) to a Direction
func ParseDirection(b byte) (Direction, error) {
	i := strings.IndexByte(letters, upper(b))
	if i < 0 {
		return 0, ErrInvalidOrientationCode.New("unknown direction letter %q", b)
	}
	return Direction(i), nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// Code assigns an anatomical direction to each of three axes
type Code [3]Direction

// ParseCode parses a 3-letter orientation code such as "RAI".
func ParseCode(s string) (Code, error) {
	var c Code
	if len(s) != 3 {
		return c, ErrInvalidOrientationCode.New("%q: want 3 letters", s)
	}
	for i := 0; i < 3; i++ {
		d, err := ParseDirection(s[i])
		if err != nil {
			return c, ErrInvalidOrientationCode.New("%q: %v", s, err)
		}
		c[i] = d
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// MustParseCode is like ParseCode but panics on error. Intended for constants.
func MustParseCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks that the code names each anatomical axis exactly once
func (c Code) Validate() error {
	var seen [3]bool
	for _, d := range c {
		if !d.Valid() {
			return ErrInvalidOrientationCode.New("%s: invalid direction %d", c, int(d))
		}
		if seen[d.Axis()] {
			return ErrInvalidOrientationCode.New("%s: anatomical axis repeated", c)
		}
		seen[d.Axis()] = true
	}
	return nil
}

// AxisFor returns the index within the code whose letter lies on the same anatomical
// axis as d, and +1 or -1 depending on whether that letter equals d or its opposite.
func (c Code) AxisFor(d Direction) (axis, sign int) {
	for i, l := range c {
		if l == d {
			return i, 1
		}
		if l == d.Opposite() {
			return i, -1
		}
	}
	return -1, 0
}

func (c Code) String() string {
	return c[0].String() + c[1].String() + c[2].String()
}
