package grid

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft transforms the spatial buffer into its half spectrum in place.
// Real FFT along x keeps CNXP coefficients per row, then complex FFTs run
// along y and z. The transform is unnormalised.
func (b *buffer) fft() {
	d := b.dims
	cn, rn := d.CNXP(), d.RNXP()
	work := make([]complex128, d.CSize())

	rfft := newRealFFT(d.NXP)
	seq := make([]float64, d.NXP)
	coef := make([]complex128, cn)
	for row := 0; row < d.NYP*d.NZP; row++ {
		base := row * rn
		for i := 0; i < d.NXP; i++ {
			seq[i] = float64(b.data[base+i])
		}
		rfft.coefficients(coef, seq)
		copy(work[row*cn:(row+1)*cn], coef)
	}

	transformAxes(work, d, false)

	for i, c := range work {
		b.data[2*i] = float32(real(c))
		b.data[2*i+1] = float32(imag(c))
	}
	b.domain = Frequency
}

// invFFT is the inverse of fft, normalised by NXP*NYP*NZP so that a round
// trip reproduces the spatial samples.
func (b *buffer) invFFT() {
	d := b.dims
	cn, rn := d.CNXP(), d.RNXP()
	work := make([]complex128, d.CSize())
	for i := range work {
		work[i] = complex(float64(b.data[2*i]), float64(b.data[2*i+1]))
	}

	transformAxes(work, d, true)

	rfft := newRealFFT(d.NXP)
	seq := make([]float64, d.NXP)
	norm := 1 / float64(d.N())
	for row := 0; row < d.NYP*d.NZP; row++ {
		base := row * rn
		rfft.sequence(seq, work[row*cn:(row+1)*cn])
		for i := 0; i < d.NXP; i++ {
			b.data[base+i] = float32(seq[i] * norm)
		}
		for i := d.NXP; i < rn; i++ {
			b.data[base+i] = 0
		}
	}
	b.domain = Spatial
}

// transformAxes runs complex FFTs along y then z (forward) or z then y
// (inverse) on a CNXP x NYP x NZP array.
func transformAxes(work []complex128, d Dims, inverse bool) {
	cn := d.CNXP()

	alongY := func() {
		if d.NYP == 1 {
			return
		}
		yfft := fourier.NewCmplxFFT(d.NYP)
		in := make([]complex128, d.NYP)
		out := make([]complex128, d.NYP)
		for k := 0; k < d.NZP; k++ {
			for i := 0; i < cn; i++ {
				for j := 0; j < d.NYP; j++ {
					in[j] = work[d.ComplexIndex(i, j, k)]
				}
				if inverse {
					yfft.Sequence(out, in)
				} else {
					yfft.Coefficients(out, in)
				}
				for j := 0; j < d.NYP; j++ {
					work[d.ComplexIndex(i, j, k)] = out[j]
				}
			}
		}
	}
	alongZ := func() {
		if d.NZP == 1 {
			return
		}
		zfft := fourier.NewCmplxFFT(d.NZP)
		in := make([]complex128, d.NZP)
		out := make([]complex128, d.NZP)
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < cn; i++ {
				for k := 0; k < d.NZP; k++ {
					in[k] = work[d.ComplexIndex(i, j, k)]
				}
				if inverse {
					zfft.Sequence(out, in)
				} else {
					zfft.Coefficients(out, in)
				}
				for k := 0; k < d.NZP; k++ {
					work[d.ComplexIndex(i, j, k)] = out[k]
				}
			}
		}
	}

	if inverse {
		alongZ()
		alongY()
		return
	}
	alongY()
	alongZ()
}

// realFFT wraps fourier.FFT so that length-one rows, which are their own
// transform, never reach the FFT plan.
type realFFT struct {
	n    int
	plan *fourier.FFT
}

func newRealFFT(n int) *realFFT {
	r := &realFFT{n: n}
	if n > 1 {
		r.plan = fourier.NewFFT(n)
	}
	return r
}

func (r *realFFT) coefficients(dst []complex128, seq []float64) {
	if r.plan == nil {
		dst[0] = complex(seq[0], 0)
		return
	}
	r.plan.Coefficients(dst, seq)
}

func (r *realFFT) sequence(dst []float64, coef []complex128) {
	if r.plan == nil {
		dst[0] = real(coef[0])
		return
	}
	r.plan.Sequence(dst, coef)
}
