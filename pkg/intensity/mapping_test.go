package intensity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	for _, m := range []Mapping{Identity(), {}} {
		assert.Equal(t, KindIdentity, m.Kind())
		assert.Equal(t, 12.5, m.ToNative(12.5))
		assert.Equal(t, -3.0, m.ToInternal(-3))
		assert.Equal(t, 2.0, m.GradientMagnitudeToNative(2))
		assert.Equal(t, 1.0, m.Scale())
		assert.Equal(t, "identity", m.String())
	}
}

func TestLinear(t *testing.T) {
	m, err := NewLinear(0.5, -1024)
	require.NoError(t, err)
	assert.Equal(t, KindLinear, m.Kind())

	assert.Equal(t, -1024.0, m.ToNative(0))
	assert.Equal(t, -524.0, m.ToNative(1000))
	assert.Equal(t, 1000.0, m.ToInternal(-524))
	assert.Equal(t, 5.0, m.GradientMagnitudeToNative(10))

	for _, v := range []float64{-32768, -1, 0, 7, 32767} {
		assert.InDelta(t, v, m.ToInternal(m.ToNative(v)), 1e-9)
	}
}

func TestLinearRejectsZeroScale(t *testing.T) {
	_, err := NewLinear(0, 10)
	assert.True(t, Error.Has(err))
}
