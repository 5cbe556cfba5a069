package inversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/crava/internal/grid"
)

// CorrelationKind selects the shape of the prior spatial correlation.
type CorrelationKind int

const (
	Gaussian CorrelationKind = iota
	Exponential
	Spherical
)

// ParseCorrelationKind maps a configuration name to a CorrelationKind.
func ParseCorrelationKind(s string) (CorrelationKind, error) {
	switch s {
	case "gaussian", "":
		return Gaussian, nil
	case "exponential":
		return Exponential, nil
	case "spherical":
		return Spherical, nil
	}
	return 0, fmt.Errorf("unknown correlation kind %q", s)
}

// at evaluates the correlation at lag h for a range r. The practical range
// convention puts the Gaussian and exponential functions at 0.05 at h = r.
func (c CorrelationKind) at(h, r float64) float64 {
	if h == 0 {
		return 1
	}
	if !(r > 0) {
		return 0
	}
	x := h / r
	switch c {
	case Exponential:
		return math.Exp(-3 * x)
	case Spherical:
		if x >= 1 {
			return 0
		}
		return 1 - 1.5*x + 0.5*x*x*x
	}
	return math.Exp(-3 * x * x)
}

// PriorModel holds the prior covariance parameters of the log elastic
// parameters: a point covariance built from standard deviations and
// correlations, times a stationary spatial correlation that separates into
// lateral and vertical parts.
type PriorModel struct {
	StdDev        [3]float64
	Corr          [3][3]float64
	LateralRange  float64
	VerticalRange float64
	Kind          CorrelationKind
}

// Covariance returns the 3x3 point covariance. It fails with
// ErrSingularPrior unless the matrix is positive definite.
func (p PriorModel) Covariance() ([3][3]float64, error) {
	var c [3][3]float64
	for r := 0; r < 3; r++ {
		if !(p.StdDev[r] > 0) || math.IsInf(p.StdDev[r], 0) {
			return c, fmt.Errorf("%w: standard deviation %d is %g", ErrSingularPrior, r, p.StdDev[r])
		}
	}
	for r := 0; r < 3; r++ {
		for s := 0; s < 3; s++ {
			if p.Corr[r][s] != p.Corr[s][r] {
				return c, fmt.Errorf("%w: correlation matrix is not symmetric", ErrSingularPrior)
			}
			c[r][s] = p.StdDev[r] * p.StdDev[s] * p.Corr[r][s]
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sym3(c)) {
		return c, fmt.Errorf("%w: parameter covariance is not positive definite", ErrSingularPrior)
	}
	return c, nil
}

// correlationGrid writes the periodic prior correlation over the padded
// extents of g with lags measured as the shorter way round.
func (p PriorModel) correlationGrid(g grid.Grid, dx, dy, dz float64) error {
	d := g.Dims()
	g.CreateRealGrid()
	if err := g.SetAccessMode(grid.Write); err != nil {
		return err
	}
	wrap := func(i, n int) float64 {
		if n-i < i {
			return float64(n - i)
		}
		return float64(i)
	}
	for k := 0; k < d.NZP; k++ {
		cz := p.Kind.at(wrap(k, d.NZP)*dz, p.VerticalRange)
		for j := 0; j < d.NYP; j++ {
			hy := wrap(j, d.NYP) * dy
			for i := 0; i < d.RNXP(); i++ {
				if i >= d.NXP {
					g.SetNextReal(0)
					continue
				}
				hx := wrap(i, d.NXP) * dx
				g.SetNextReal(float32(cz * p.Kind.at(math.Hypot(hx, hy), p.LateralRange)))
			}
		}
	}
	return g.EndAccess()
}

func sym3(c [3][3]float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	})
}
