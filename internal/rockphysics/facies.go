// Package rockphysics describes facies as Gaussian distributions over the
// log elastic parameters (ln Vp, ln Vs, ln Rho) and evaluates facies
// probabilities given an uncertain elastic estimate.
package rockphysics

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/crava/internal/config"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// ErrDegenerate is returned when every facies density underflows.
var ErrDegenerate = errors.New("all facies densities are zero")

// Facies is one rock class.
type Facies struct {
	Name  string
	Prior float64
	Mean  [3]float64
	Cov   [3][3]float64
}

// Model is an ordered set of facies.
type Model struct {
	Facies []Facies
}

// FromConfig builds a model with diagonal facies covariances.
func FromConfig(fc []config.FaciesConfig) Model {
	m := Model{Facies: make([]Facies, len(fc))}
	for n, f := range fc {
		sd := f.StdDev.Array()
		var cov [3][3]float64
		for p := range sd {
			cov[p][p] = sd[p] * sd[p]
		}
		m.Facies[n] = Facies{Name: f.Name, Prior: f.Probability, Mean: f.Mean.Array(), Cov: cov}
	}
	return m
}

// Names returns the facies names in order.
func (m Model) Names() []string {
	out := make([]string, len(m.Facies))
	for n, f := range m.Facies {
		out[n] = f.Name
	}
	return out
}

// Validate checks priors and covariances.
func (m Model) Validate() error {
	total := 0.0
	for _, f := range m.Facies {
		if !(f.Prior > 0) {
			return fmt.Errorf("facies %q: prior probability must be positive, got %g", f.Name, f.Prior)
		}
		var chol mat.Cholesky
		if !chol.Factorize(symDense(f.Cov)) {
			return fmt.Errorf("facies %q: covariance is not positive definite", f.Name)
		}
		total += f.Prior
	}
	if len(m.Facies) > 0 && math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("facies priors sum to %g, want 1", total)
	}
	return nil
}

// Probabilities returns p(f | m) proportional to prior(f) N(m; mean_f,
// cov_f + post). post is the posterior covariance of the estimate m.
// When every density underflows it returns the priors and ErrDegenerate.
func (m Model) Probabilities(mean [3]float64, post [3][3]float64) ([]float64, error) {
	ev := NewEvaluator(m, post)
	out := make([]float64, len(m.Facies))
	return out, ev.Probabilities(out, mean)
}

// Evaluator caches one density per facies for a fixed posterior covariance.
type Evaluator struct {
	priors []float64
	dists  []*distmv.Normal
}

// NewEvaluator prepares densities for all facies. Facies whose combined
// covariance is not positive definite get a nil density and never win.
func NewEvaluator(m Model, post [3][3]float64) *Evaluator {
	ev := &Evaluator{
		priors: make([]float64, len(m.Facies)),
		dists:  make([]*distmv.Normal, len(m.Facies)),
	}
	for n, f := range m.Facies {
		var cov [3][3]float64
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov[r][c] = f.Cov[r][c] + post[r][c]
			}
		}
		ev.priors[n] = f.Prior
		ev.dists[n], _ = distmv.NewNormal(f.Mean[:], symDense(cov), nil)
	}
	return ev
}

// Probabilities writes the normalised facies probabilities for mean into dst.
// It is safe for concurrent use.
func (ev *Evaluator) Probabilities(dst []float64, mean [3]float64) error {
	x := mean[:]
	logs := make([]float64, len(ev.dists))
	best := math.Inf(-1)
	for n, d := range ev.dists {
		logs[n] = math.Inf(-1)
		if d != nil {
			logs[n] = math.Log(ev.priors[n]) + d.LogProb(x)
		}
		if logs[n] > best {
			best = logs[n]
		}
	}
	if math.IsInf(best, -1) || math.IsNaN(best) {
		copy(dst, ev.priors)
		return ErrDegenerate
	}
	sum := 0.0
	for n, l := range logs {
		dst[n] = math.Exp(l - best)
		sum += dst[n]
	}
	for n := range dst {
		dst[n] /= sum
	}
	return nil
}

func symDense(c [3][3]float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	})
}
