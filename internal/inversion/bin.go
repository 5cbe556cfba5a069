package inversion

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// binSolver updates single wavenumber bins. One solver serves one worker;
// it holds no state between calls apart from scratch space.
type binSolver struct {
	ops    []stackOperator
	sigma0 [3][3]float64
	n      float64 // padded sample count, the FFT energy scale
	cutoff float64 // relative eigenvalue cutoff of the pseudo-inverse

	active []int
	eig    mat.EigenSym
}

// binResult is the posterior of one bin.
type binResult struct {
	delta [3]complex128 // posterior mean minus prior mean
	cov   [3][3]float64 // posterior covariance
	fit   []complex128  // modelled data H(mu+delta) per stack
}

func newBinSolver(ops []stackOperator, sigma0 [3][3]float64, n int, cutoff float64) *binSolver {
	return &binSolver{ops: ops, sigma0: sigma0, n: float64(n), cutoff: cutoff}
}

// solve computes the posterior of the bin at vertical index kz with prior
// spectral density r (so the prior covariance is n*r*sigma0), observations
// d and prior mean spectrum mu. res.fit must have one slot per stack.
func (b *binSolver) solve(kz int, r float64, d []complex128, mu [3]complex128, res *binResult) error {
	var sigma [3][3]float64
	scale := b.n * r
	for p := 0; p < 3; p++ {
		for q := 0; q < 3; q++ {
			sigma[p][q] = scale * b.sigma0[p][q]
		}
	}
	res.delta = [3]complex128{}
	res.cov = sigma

	b.active = b.active[:0]
	if scale > 0 {
		for s := range b.ops {
			if b.ops[s].informative(kz) {
				b.active = append(b.active, s)
			}
		}
	}

	if m := len(b.active); m > 0 {
		// Reduced problem y = C m + e' with y_s = d_s/h_s and
		// var(e'_s) = n sigma_s^2 / |h_s|^2.
		c := mat.NewDense(m, 3, nil)
		for a, s := range b.active {
			c.SetRow(a, b.ops[s].coef[:])
		}
		sig := sym3(sigma)
		var cs mat.Dense
		cs.Mul(c, sig) // C Sigma
		sm := mat.NewSymDense(m, nil)
		for a := 0; a < m; a++ {
			for bb := a; bb < m; bb++ {
				v := 0.0
				for p := 0; p < 3; p++ {
					v += cs.At(a, p) * c.At(bb, p)
				}
				if a == bb {
					o := &b.ops[b.active[a]]
					h := cmplx.Abs(o.h[kz])
					v += b.n * o.noise / (h * h)
				}
				sm.SetSym(a, bb, v)
			}
		}
		pinv, err := b.pseudoInverse(sm)
		if err != nil {
			return err
		}

		var gain mat.Dense
		gain.Mul(cs.T(), pinv) // Sigma C^T S^+, 3 x m

		y := make([]complex128, m)
		for a, s := range b.active {
			o := &b.ops[s]
			pred := complex(0, 0)
			for p := 0; p < 3; p++ {
				pred += complex(o.coef[p], 0) * mu[p]
			}
			y[a] = d[s]/o.h[kz] - pred
		}
		for p := 0; p < 3; p++ {
			for a := 0; a < m; a++ {
				res.delta[p] += complex(gain.At(p, a), 0) * y[a]
			}
		}

		var kcs mat.Dense
		kcs.Mul(&gain, &cs) // K C Sigma
		for p := 0; p < 3; p++ {
			for q := p; q < 3; q++ {
				v := sigma[p][q] - 0.5*(kcs.At(p, q)+kcs.At(q, p))
				res.cov[p][q] = v
				res.cov[q][p] = v
			}
		}
	}

	for s := range b.ops {
		o := &b.ops[s]
		v := complex(0, 0)
		for p := 0; p < 3; p++ {
			v += complex(o.coef[p], 0) * (mu[p] + res.delta[p])
		}
		res.fit[s] = o.h[kz] * v
	}

	for p := 0; p < 3; p++ {
		if cmplx.IsNaN(res.delta[p]) || cmplx.IsInf(res.delta[p]) {
			return fmt.Errorf("%w: non-finite posterior mean at kz=%d", ErrIllConditioned, kz)
		}
		for q := 0; q < 3; q++ {
			if math.IsNaN(res.cov[p][q]) || math.IsInf(res.cov[p][q], 0) {
				return fmt.Errorf("%w: non-finite posterior covariance at kz=%d", ErrIllConditioned, kz)
			}
		}
	}
	return nil
}

// pseudoInverse returns the Moore-Penrose inverse of a symmetric PSD matrix,
// dropping eigenvalues below cutoff times the largest.
func (b *binSolver) pseudoInverse(s *mat.SymDense) (*mat.Dense, error) {
	if !b.eig.Factorize(s, true) {
		return nil, fmt.Errorf("%w: eigen decomposition failed", ErrIllConditioned)
	}
	vals := b.eig.Values(nil)
	var vecs mat.Dense
	b.eig.VectorsTo(&vecs)

	top := 0.0
	for _, v := range vals {
		top = math.Max(top, v)
	}
	m := len(vals)
	out := mat.NewDense(m, m, nil)
	if top <= 0 {
		return out, nil
	}
	for e, v := range vals {
		if v <= b.cutoff*top {
			continue
		}
		inv := 1 / v
		for r := 0; r < m; r++ {
			vr := vecs.At(r, e) * inv
			for c := 0; c < m; c++ {
				out.Set(r, c, out.At(r, c)+vr*vecs.At(c, e))
			}
		}
	}
	return out, nil
}

// symmetricRoot returns V sqrt(L) V^T for a symmetric PSD 3x3 matrix,
// clamping negative rounding-level eigenvalues to zero.
func symmetricRoot(eig *mat.EigenSym, c [3][3]float64) ([3][3]float64, error) {
	var root [3][3]float64
	if c == root {
		return root, nil
	}
	if !eig.Factorize(sym3(c), true) {
		return root, fmt.Errorf("%w: eigen decomposition of posterior covariance failed", ErrIllConditioned)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	for e, v := range vals {
		if v <= 0 {
			continue
		}
		sq := math.Sqrt(v)
		for r := 0; r < 3; r++ {
			for s := 0; s < 3; s++ {
				root[r][s] += vecs.At(r, e) * sq * vecs.At(s, e)
			}
		}
	}
	return root, nil
}
