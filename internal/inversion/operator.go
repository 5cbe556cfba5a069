package inversion

import (
	"fmt"
	"math"
	"math/cmplx"
)

// ReflectionCoefficients returns the linearised Aki-Richards weights of
// (d ln Vp, d ln Vs, d ln Rho) for incidence angle theta (radians) and a
// background Vs/Vp ratio.
func ReflectionCoefficients(theta, vsvp float64) [3]float64 {
	s2 := math.Sin(theta) * math.Sin(theta)
	c2 := math.Cos(theta) * math.Cos(theta)
	k2 := vsvp * vsvp
	return [3]float64{
		1 / (2 * c2),
		-4 * k2 * s2,
		0.5 * (1 - 4*k2*s2),
	}
}

// stackOperator is the observation operator of one stack: row
// h(kz) * coef, with h the wavelet spectrum times the difference operator.
type stackOperator struct {
	name  string
	coef  [3]float64
	h     []complex128 // per vertical wavenumber index
	hmin  float64      // |h| below this carries no information
	noise float64      // per-sample noise variance
}

// relativeWaveletFloor is the fraction of the peak |h| below which a bin is
// treated as outside the wavelet bandwidth.
const relativeWaveletFloor = 1e-9

func newStackOperator(s Stack, vsvp float64, nzp int) (stackOperator, error) {
	coef := ReflectionCoefficients(s.Angle, vsvp)
	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return stackOperator{}, fmt.Errorf("%w: stack %s at angle %g", ErrIllConditioned, s.Name, s.Angle)
		}
	}
	spec := s.Wavelet.Spectrum(nzp)
	h := make([]complex128, nzp)
	peak := 0.0
	for kz := range h {
		diff := 1 - cmplx.Exp(complex(0, -2*math.Pi*float64(kz)/float64(nzp)))
		h[kz] = spec[kz] * diff
		peak = math.Max(peak, cmplx.Abs(h[kz]))
	}
	if peak == 0 {
		return stackOperator{}, fmt.Errorf("%w: stack %s has no signal bandwidth", ErrIllConditioned, s.Name)
	}
	return stackOperator{name: s.Name, coef: coef, h: h, hmin: relativeWaveletFloor * peak, noise: s.NoiseVariance}, nil
}

// informative reports whether the stack constrains bins at kz.
func (o *stackOperator) informative(kz int) bool {
	return cmplx.Abs(o.h[kz]) > o.hmin && !math.IsInf(o.noise, 1)
}
