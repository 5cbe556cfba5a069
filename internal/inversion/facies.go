package inversion

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
	"github.com/banshee-data/crava/internal/rockphysics"
)

// FaciesProbability scores every voxel of the posterior mean against the
// facies model, widening each facies covariance by the posterior point
// covariance. It writes one probability grid per facies.
func (e *Engine) FaciesProbability(ctx context.Context) error {
	if err := e.enter(PhaseFaciesProbability); err != nil {
		return err
	}
	model := e.in.Facies
	if len(model.Facies) == 0 {
		return errors.New("no facies model given")
	}
	if err := model.Validate(); err != nil {
		return fmt.Errorf("facies model: %w", err)
	}
	return e.finish(PhaseFaciesProbability, e.faciesProbability(ctx, model))
}

// FaciesGrids returns the facies probability grids in model order.
func (e *Engine) FaciesGrids() []grid.Grid { return e.facies }

func (e *Engine) faciesProbability(ctx context.Context, model rockphysics.Model) error {
	d := e.dims
	nF := len(model.Facies)
	ev := rockphysics.NewEvaluator(model, e.pointCov)

	e.facies = make([]grid.Grid, nF)
	for f := range e.facies {
		e.facies[f] = e.newGrid(grid.Spatial)
	}
	reads, err := openSessions(grid.Read, e.mean[:]...)
	if err != nil {
		return err
	}
	writes, err := openSessions(grid.Write, e.facies...)
	if err != nil {
		reads.close()
		return err
	}

	rn := d.RNXP()
	layer := rn * d.NYP
	var mean [3][]float32
	for p := range mean {
		mean[p] = make([]float32, layer)
	}
	probs := make([][]float32, nF)
	for f := range probs {
		probs[f] = make([]float32, layer)
	}
	degenerate := make([]bool, layer)
	total := 0

	err = func() error {
		for k := 0; k < d.NZP; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for p, g := range e.mean {
				readReal(g, mean[p])
			}
			err := parallel(ctx, e.workers, layer, func(lo, hi int) error {
				p := make([]float64, nF)
				for slot := lo; slot < hi; slot++ {
					degenerate[slot] = false
					i, j := slot%rn, slot/rn
					if !d.Logical(i, j, k) {
						for f := range probs {
							probs[f][slot] = 0
						}
						continue
					}
					m := [3]float64{float64(mean[0][slot]), float64(mean[1][slot]), float64(mean[2][slot])}
					if err := ev.Probabilities(p, m); errors.Is(err, rockphysics.ErrDegenerate) {
						degenerate[slot] = true
					}
					for f := range probs {
						probs[f][slot] = float32(p[f])
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, bad := range degenerate {
				if bad {
					total++
				}
			}
			for f, g := range e.facies {
				writeReal(g, probs[f])
			}
		}
		return nil
	}()
	if cerr := errors.Join(reads.close(), writes.close()); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if total > 0 {
		e.warn.Addf("Facies probabilities were undefined in %d voxels; prior proportions were used there.", total)
	}
	monitoring.Logf("[inversion] facies probabilities computed for %v", model.Names())
	return nil
}

// FaciesNames returns the facies names in grid order.
func (e *Engine) FaciesNames() []string { return e.in.Facies.Names() }
