// Package wavelet provides the seismic wavelets of the convolutional
// forward model and their vertical spectra.
package wavelet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Wavelet is a sampled 1-D wavelet. Samples[Center] sits at lag zero; lags
// wrap circularly when the wavelet is placed in a padded trace.
type Wavelet struct {
	Samples []float64
	Center  int
	DZ      float64 // sample interval, ms
	Scale   float64
}

// New returns a wavelet from explicit samples.
func New(samples []float64, center int, dz float64) (*Wavelet, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("wavelet has no samples")
	}
	if center < 0 || center >= len(samples) {
		return nil, fmt.Errorf("wavelet center %d outside [0, %d)", center, len(samples))
	}
	if !(dz > 0) {
		return nil, fmt.Errorf("wavelet sample interval must be positive, got %g", dz)
	}
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("wavelet sample %d is not finite", i)
		}
	}
	s := make([]float64, len(samples))
	copy(s, samples)
	return &Wavelet{Samples: s, Center: center, DZ: dz, Scale: 1}, nil
}

// Ricker returns an n-sample zero-phase Ricker wavelet with unit peak.
// peakHz is the dominant frequency and dz the sample interval in ms.
func Ricker(peakHz, dz float64, n int) (*Wavelet, error) {
	if !(peakHz > 0) {
		return nil, fmt.Errorf("ricker peak frequency must be positive, got %g", peakHz)
	}
	if n < 1 {
		return nil, fmt.Errorf("ricker wavelet needs at least one sample, got %d", n)
	}
	if n%2 == 0 {
		n++
	}
	center := n / 2
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i-center) * dz / 1000
		a := math.Pi * math.Pi * peakHz * peakHz * t * t
		samples[i] = (1 - 2*a) * math.Exp(-a)
	}
	return New(samples, center, dz)
}

// Delta returns the identity wavelet: one unit sample at lag zero.
func Delta(dz float64) *Wavelet {
	return &Wavelet{Samples: []float64{1}, Center: 0, DZ: dz, Scale: 1}
}

// Trace places the scaled wavelet in a padded trace of length nzp with lag
// zero at index 0. Lags beyond the trace wrap.
func (w *Wavelet) Trace(nzp int) []float64 {
	out := make([]float64, nzp)
	for i, v := range w.Samples {
		lag := i - w.Center
		idx := ((lag % nzp) + nzp) % nzp
		out[idx] += v * w.Scale
	}
	return out
}

// Spectrum returns the nzp-point transform of Trace(nzp), with the same
// sign convention as the grid FFT.
func (w *Wavelet) Spectrum(nzp int) []complex128 {
	trace := w.Trace(nzp)
	in := make([]complex128, nzp)
	for i, v := range trace {
		in[i] = complex(v, 0)
	}
	if nzp == 1 {
		return in
	}
	return fourier.NewCmplxFFT(nzp).Coefficients(nil, in)
}

// Norm returns the L2 norm of the scaled samples.
func (w *Wavelet) Norm() float64 {
	return math.Abs(w.Scale) * floats.Norm(w.Samples, 2)
}

// Rescale sets Scale so that the wavelet has unit peak amplitude.
func (w *Wavelet) Rescale() {
	peak := floats.Max(w.Samples)
	if low := floats.Min(w.Samples); -low > peak {
		peak = -low
	}
	if peak > 0 {
		w.Scale = 1 / peak
	}
}

// NoiseVariance splits a data variance into its noise part given a
// signal-to-noise power ratio: data = signal + noise and sn = signal/noise.
func NoiseVariance(dataVar, sn float64) float64 {
	if math.IsInf(sn, 1) {
		return 0
	}
	if sn <= 0 {
		return math.Inf(1)
	}
	return dataVar / (1 + sn)
}
