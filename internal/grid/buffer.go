package grid

import (
	"math"
)

// buffer is the resident sample store and the algorithms both realizations
// run on it. It knows nothing about sessions or persistence.
type buffer struct {
	dims   Dims
	domain Domain
	data   []float32
}

func newBuffer(d Dims, domain Domain) *buffer {
	return &buffer{dims: d, domain: domain, data: make([]float32, d.RSize())}
}

func (b *buffer) realValue(i, j, k int) float32 {
	if !b.dims.Logical(i, j, k) {
		return Missing
	}
	return b.data[b.dims.RealIndex(i, j, k)]
}

func (b *buffer) setRealValue(i, j, k int, v float32) bool {
	if !b.dims.Logical(i, j, k) {
		return false
	}
	b.data[b.dims.RealIndex(i, j, k)] = v
	return true
}

func (b *buffer) scale(s float32) {
	for i := range b.data {
		b.data[i] *= s
	}
}

// square squares spatial samples; in the frequency domain each coefficient
// is replaced by its squared modulus.
func (b *buffer) square() {
	if b.domain == Frequency {
		for i := 0; i+1 < len(b.data); i += 2 {
			re, im := b.data[i], b.data[i+1]
			b.data[i] = re*re + im*im
			b.data[i+1] = 0
		}
		return
	}
	for i, v := range b.data {
		b.data[i] = v * v
	}
}

// eachPadded visits the NXP real samples of every row, skipping the
// alignment slots at the end of each row.
func (b *buffer) eachPadded(fn func(idx int)) {
	d := b.dims
	rn := d.RNXP()
	for row := 0; row < d.NYP*d.NZP; row++ {
		base := row * rn
		for i := 0; i < d.NXP; i++ {
			fn(base + i)
		}
	}
}

func (b *buffer) expTransf() {
	b.eachPadded(func(idx int) {
		b.data[idx] = float32(math.Exp(float64(b.data[idx])))
	})
}

func (b *buffer) logTransf() int {
	bad := 0
	b.eachPadded(func(idx int) {
		v := b.data[idx]
		if v > 0 {
			b.data[idx] = float32(math.Log(float64(v)))
		} else {
			b.data[idx] = 0
			bad++
		}
	})
	return bad
}

// collapseAndAdd sums the logical region over z into dst[i+j*NX].
func (b *buffer) collapseAndAdd(dst []float32) {
	d := b.dims
	for k := 0; k < d.NZ; k++ {
		for j := 0; j < d.NY; j++ {
			for i := 0; i < d.NX; i++ {
				dst[i+j*d.NX] += b.data[d.RealIndex(i, j, k)]
			}
		}
	}
}

// addFrom streams other and adds it element-wise.
func (b *buffer) addFrom(other Grid) error {
	if err := other.SetAccessMode(Read); err != nil {
		return err
	}
	if b.domain == Frequency {
		for i := 0; i < b.dims.CSize(); i++ {
			c := other.NextComplex()
			b.data[2*i] += real(c)
			b.data[2*i+1] += imag(c)
		}
	} else {
		for i := range b.data {
			b.data[i] += other.NextReal()
		}
	}
	return other.EndAccess()
}

// multiplyFrom streams other and multiplies element-wise. Complex slots are
// multiplied component by component (re*re, im*im), not as complex numbers.
func (b *buffer) multiplyFrom(other Grid) error {
	if err := other.SetAccessMode(Read); err != nil {
		return err
	}
	if b.domain == Frequency {
		for i := 0; i < b.dims.CSize(); i++ {
			c := other.NextComplex()
			b.data[2*i] *= real(c)
			b.data[2*i+1] *= imag(c)
		}
	} else {
		for i := range b.data {
			b.data[i] *= other.NextReal()
		}
	}
	return other.EndAccess()
}

// fillNoise draws white complex noise with E|z|^2 = 1 per coefficient.
// Bins on the i=0 and i=NXP/2 planes are paired with their mirror
// (-j, -k) so the spectrum stays Hermitian; self-conjugate bins are real
// N(0,1). The inverse transform of the result is therefore real.
func (b *buffer) fillNoise(rng NormalSource) {
	d := b.dims
	cn := d.CNXP()
	half := math.Sqrt(0.5)
	for k := 0; k < d.NZP; k++ {
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < cn; i++ {
				idx := d.ComplexIndex(i, j, k)
				if i != 0 && !(d.NXP%2 == 0 && i == d.NXP/2) {
					b.data[2*idx] = float32(rng.NormFloat64() * half)
					b.data[2*idx+1] = float32(rng.NormFloat64() * half)
					continue
				}
				pj := (d.NYP - j) % d.NYP
				pk := (d.NZP - k) % d.NZP
				self := j + k*d.NYP
				mirror := pj + pk*d.NYP
				switch {
				case self == mirror:
					b.data[2*idx] = float32(rng.NormFloat64())
					b.data[2*idx+1] = 0
				case self < mirror:
					re := float32(rng.NormFloat64() * half)
					im := float32(rng.NormFloat64() * half)
					pidx := d.ComplexIndex(i, pj, pk)
					b.data[2*idx], b.data[2*idx+1] = re, im
					b.data[2*pidx], b.data[2*pidx+1] = re, -im
				}
			}
		}
	}
}
