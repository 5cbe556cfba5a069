// Package units converts the elastic outputs from the SI units the
// inversion works in to the units requested in the settings.
package units

import (
	"fmt"
	"strings"
)

// Velocity units.
const (
	MetresPerSecond     = "m/s"
	KilometresPerSecond = "km/s"
	FeetPerSecond       = "ft/s"
)

// Density units.
const (
	KgPerCubicMetre = "kg/m3"
	GPerCubicCm     = "g/cm3"
)

var velocityFactors = map[string]float64{
	MetresPerSecond:     1,
	KilometresPerSecond: 1e-3,
	FeetPerSecond:       1 / 0.3048,
}

var densityFactors = map[string]float64{
	KgPerCubicMetre: 1,
	GPerCubicCm:     1e-3,
}

// ValidVelocityUnits lists the accepted velocity units.
var ValidVelocityUnits = []string{MetresPerSecond, KilometresPerSecond, FeetPerSecond}

// ValidDensityUnits lists the accepted density units.
var ValidDensityUnits = []string{KgPerCubicMetre, GPerCubicCm}

// IsValidVelocity reports whether unit is a known velocity unit.
func IsValidVelocity(unit string) bool {
	_, ok := velocityFactors[unit]
	return ok
}

// IsValidDensity reports whether unit is a known density unit.
func IsValidDensity(unit string) bool {
	_, ok := densityFactors[unit]
	return ok
}

// VelocityFactor returns the multiplier taking m/s to unit.
func VelocityFactor(unit string) (float64, error) {
	f, ok := velocityFactors[unit]
	if !ok {
		return 0, fmt.Errorf("unknown velocity unit %q (valid: %s)", unit, strings.Join(ValidVelocityUnits, ", "))
	}
	return f, nil
}

// DensityFactor returns the multiplier taking kg/m3 to unit.
func DensityFactor(unit string) (float64, error) {
	f, ok := densityFactors[unit]
	if !ok {
		return 0, fmt.Errorf("unknown density unit %q (valid: %s)", unit, strings.Join(ValidDensityUnits, ", "))
	}
	return f, nil
}

// ConvertVelocity converts a velocity in m/s to unit. Unknown units leave
// the value unchanged.
func ConvertVelocity(mps float64, unit string) float64 {
	if f, ok := velocityFactors[unit]; ok {
		return mps * f
	}
	return mps
}
