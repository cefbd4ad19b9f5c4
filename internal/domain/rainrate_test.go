package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRainRate(t *testing.T) {
	tests := []struct {
		a    float64
		want float64
	}{
		{0, 0},
		{1, 51.3},
		{0.1, 51.3 * math.Pow(0.1, 0.81)},
		{2.5, 51.3 * math.Pow(2.5, 0.81)},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, RainRate(tt.a), 1e-9, "A=%v", tt.a)
	}
}

func TestRainRateFromAttenuation(t *testing.T) {
	att := NewField(1, 4, FieldAttrs{})
	copy(att.Values(), []float64{1, 0.5, 2, 3})
	att.SetMasked(2, true)
	att.SetMasked(3, true)
	reflMask := []bool{false, true, false, true}

	rr := RainRateFromAttenuation(att, reflMask)

	require.NotNil(t, rr)
	assert.InDelta(t, 51.3, rr.Values()[0], 1e-9)
	assert.False(t, rr.Masked(0))

	// Reflectivity-masked gates are zero and valid, whatever the attenuation mask says.
	assert.Zero(t, rr.Values()[1])
	assert.False(t, rr.Masked(1))
	assert.Zero(t, rr.Values()[3])
	assert.False(t, rr.Masked(3))

	assert.True(t, rr.Masked(2))

	assert.Equal(t, "mm/hr", rr.Attrs.Units)
	assert.Equal(t, "rainfall_rate", rr.Attrs.StandardName)
	assert.Equal(t, "rainfall_rate", rr.Attrs.LongName)
	assert.Equal(t, 1, rr.Attrs.LeastSignificantDigit)
	require.NotNil(t, rr.Attrs.ValidMin)
	require.NotNil(t, rr.Attrs.ValidMax)
	assert.Equal(t, 0.0, *rr.Attrs.ValidMin)
	assert.Equal(t, 400.0, *rr.Attrs.ValidMax)
	assert.Contains(t, rr.Attrs.Comment, "R=51.3*specific_attenuation**0.81")
}

func TestRainRateFromAttenuationNotClamped(t *testing.T) {
	att := NewField(1, 1, FieldAttrs{})
	att.Values()[0] = 50

	rr := RainRateFromAttenuation(att, nil)

	assert.Greater(t, rr.Values()[0], 400.0)
}
