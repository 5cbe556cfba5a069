package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertVelocity(t *testing.T) {
	tests := []struct {
		unit string
		want float64
	}{
		{MetresPerSecond, 3048},
		{KilometresPerSecond, 3.048},
		{FeetPerSecond, 10000},
		{"furlongs", 3048},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ConvertVelocity(3048, tt.unit), 1e-9, tt.unit)
	}
}

func TestFactors(t *testing.T) {
	f, err := DensityFactor(GPerCubicCm)
	require.NoError(t, err)
	assert.InDelta(t, 2.3, 2300*f, 1e-12)

	_, err = DensityFactor("lb/ft3")
	assert.ErrorContains(t, err, "kg/m3, g/cm3")
	_, err = VelocityFactor("mph")
	assert.Error(t, err)

	for _, u := range ValidVelocityUnits {
		assert.True(t, IsValidVelocity(u), u)
	}
	for _, u := range ValidDensityUnits {
		assert.True(t, IsValidDensity(u), u)
	}
	assert.False(t, IsValidDensity(MetresPerSecond))
}
