// Package intensity maps stored grey values to their native scale.
//
// Images are often stored as 16-bit integers with a linear rescale to the real
// values. A Mapping is either the identity or such a linear rescale.
package intensity

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for invalid mappings
var Error = errs.Class("intensity")

// Kind names the mapping variant
type Kind int

const (
	KindIdentity Kind = iota
	KindLinear
)

func (k Kind) String() string {
	if k == KindLinear {
		return "linear"
	}
	return "identity"
}

// Mapping converts between internal and native intensities. The zero value is
// the identity.
type Mapping struct {
	kind  Kind
	scale float64
	shift float64
}

// Identity returns the mapping that leaves values unchanged
func Identity() Mapping {
	return Mapping{kind: KindIdentity, scale: 1}
}

// NewLinear returns native = internal*scale + shift. A zero scale cannot be
// inverted and is rejected.
func NewLinear(scale, shift float64) (Mapping, error) {
	if scale == 0 {
		return Mapping{}, Error.New("linear mapping with zero scale")
	}
	return Mapping{kind: KindLinear, scale: scale, shift: shift}, nil
}

// Kind tells which variant m is
func (m Mapping) Kind() Kind { return m.kind }

// Scale is the linear factor; the identity reports 1
func (m Mapping) Scale() float64 {
	if m.kind == KindIdentity {
		return 1
	}
	return m.scale
}

// Shift is the linear offset; the identity reports 0
func (m Mapping) Shift() float64 {
	if m.kind == KindIdentity {
		return 0
	}
	return m.shift
}

// ToNative converts a stored intensity to its native value
func (m Mapping) ToNative(internal float64) float64 {
	if m.kind == KindIdentity {
		return internal
	}
	return internal*m.scale + m.shift
}

// ToInternal is the inverse of ToNative
func (m Mapping) ToInternal(native float64) float64 {
	if m.kind == KindIdentity {
		return native
	}
	return (native - m.shift) / m.scale
}

// GradientMagnitudeToNative scales a gradient magnitude; the shift cancels out
func (m Mapping) GradientMagnitudeToNative(gm float64) float64 {
	if m.kind == KindIdentity {
		return gm
	}
	return gm * m.scale
}

func (m Mapping) String() string {
	if m.kind == KindIdentity {
		return "identity"
	}
	return fmt.Sprintf("linear(scale=%g, shift=%g)", m.scale, m.shift)
}
