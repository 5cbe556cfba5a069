package inversion

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
)

// Simulate draws n posterior realizations. Each one is the posterior mean
// plus a Gaussian field whose spectrum in every bin is unit complex noise
// shaped by the symmetric root of the bin's posterior covariance. The draws
// depend only on Input.RNG, never on the worker count.
func (e *Engine) Simulate(ctx context.Context, n int) error {
	if err := e.enter(PhaseSimulate); err != nil {
		return err
	}
	if e.postCov[0] == nil {
		return fmt.Errorf("%w: posterior covariance spectra were not kept; enable Options.Simulations", ErrPhase)
	}
	if e.in.RNG == nil {
		return errors.New("simulation needs a random source")
	}
	for r := 0; r < n; r++ {
		set, err := e.simulateOne(ctx)
		if err != nil {
			return e.finish(PhaseSimulate, fmt.Errorf("realization %d: %w", len(e.sims)+1, err))
		}
		e.sims = append(e.sims, set)
	}
	monitoring.Logf("[inversion] %d posterior realizations drawn", len(e.sims))
	return e.finish(PhaseSimulate, nil)
}

// Simulations returns the realizations drawn so far, each as
// (ln Vp, ln Vs, ln Rho) grids owned by the engine.
func (e *Engine) Simulations() [][3]grid.Grid { return e.sims }

func (e *Engine) simulateOne(ctx context.Context) ([3]grid.Grid, error) {
	var z [3]grid.Grid
	fail := func(err error) ([3]grid.Grid, error) {
		for _, g := range z {
			if g != nil {
				g.Close()
			}
		}
		return [3]grid.Grid{}, err
	}
	for p := range z {
		z[p] = e.newGrid(grid.Frequency)
		if err := z[p].FillInComplexNoise(e.in.RNG); err != nil {
			return fail(err)
		}
	}
	if err := e.shapeNoise(ctx, z); err != nil {
		return fail(err)
	}
	for p, g := range z {
		if err := g.InvFFTInPlace(); err != nil {
			return fail(err)
		}
		if err := g.Add(e.mean[p]); err != nil {
			return fail(err)
		}
	}
	return z, nil
}

// shapeNoise replaces the white noise in z by root(cov) * z bin by bin.
func (e *Engine) shapeNoise(ctx context.Context, z [3]grid.Grid) error {
	rw, err := openSessions(grid.ReadAndWrite, z[:]...)
	if err != nil {
		return err
	}
	reads, err := openSessions(grid.Read, e.postCov[:]...)
	if err != nil {
		rw.close()
		return err
	}

	d := e.dims
	n := d.CNXP() * d.NYP
	var noise, field [3][]complex128
	for p := range noise {
		noise[p] = make([]complex128, n)
		field[p] = make([]complex128, n)
	}
	var cov [6][]complex128
	for c := range cov {
		cov[c] = make([]complex128, n)
	}

	err = func() error {
		for k := 0; k < d.NZP; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for p, g := range z {
				readComplex(g, noise[p])
			}
			for c, g := range e.postCov {
				readComplex(g, cov[c])
			}
			err := parallel(ctx, e.workers, n, func(lo, hi int) error {
				var eig mat.EigenSym
				for b := lo; b < hi; b++ {
					var c [3][3]float64
					for idx, pq := range covPairs {
						v := real(cov[idx][b])
						c[pq[0]][pq[1]] = v
						c[pq[1]][pq[0]] = v
					}
					root, err := symmetricRoot(&eig, c)
					if err != nil {
						return err
					}
					for p := 0; p < 3; p++ {
						var f complex128
						for q := 0; q < 3; q++ {
							f += complex(root[p][q], 0) * noise[q][b]
						}
						field[p][b] = f
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			for p, g := range z {
				writeComplex(g, field[p])
			}
		}
		return nil
	}()
	if cerr := errors.Join(reads.close(), rw.close()); err == nil {
		err = cerr
	}
	return err
}
