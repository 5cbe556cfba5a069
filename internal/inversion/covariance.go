package inversion

import (
	"fmt"

	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
)

// PosteriorCovariance turns the posterior covariance spectra into spatial
// lag grids: entry (p, q) at lag (i, j, k) is the posterior covariance of
// parameter p at a voxel and parameter q at the voxel shifted by the lag.
// The posterior is stationary, so lag zero holds the point covariance.
func (e *Engine) PosteriorCovariance() error {
	if err := e.enter(PhasePosteriorCovariance); err != nil {
		return err
	}
	if e.postCov[0] == nil {
		return fmt.Errorf("%w: posterior covariance spectra were not kept; enable Options.PosteriorCovariance", ErrPhase)
	}
	err := func() error {
		scale := float32(1 / float64(e.dims.N()))
		for c, g := range e.postCov {
			if err := g.InvFFTInPlace(); err != nil {
				return fmt.Errorf("%s: %w", CovarianceNames[c], err)
			}
			if err := g.MultiplyByScalar(scale); err != nil {
				return fmt.Errorf("%s: %w", CovarianceNames[c], err)
			}
		}
		g := e.postCov[0]
		if err := g.SetAccessMode(grid.RandomAccess); err != nil {
			return err
		}
		lag0 := g.RealValue(0, 0, 0)
		if err := g.EndAccess(); err != nil {
			return err
		}
		monitoring.Logf("[inversion] posterior ln Vp variance %.4g (lag-zero grid %.4g)", e.pointCov[0][0], lag0)
		return nil
	}()
	return e.finish(PhasePosteriorCovariance, err)
}

// CovarianceGrids returns the lag grids in CovarianceNames order, or zero
// values before PosteriorCovariance has run.
func (e *Engine) CovarianceGrids() [6]grid.Grid {
	if e.postCov[0] == nil || e.postCov[0].Domain() != grid.Spatial {
		return [6]grid.Grid{}
	}
	return e.postCov
}
