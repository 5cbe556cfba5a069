package inversion

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/crava/internal/grid"
)

// binsPerTask is the number of bins handed to a worker at a time. Tasks are
// cut the same way for any worker count.
const binsPerTask = 256

// sessionSet holds sessions opened together on several grids.
type sessionSet struct {
	grids []grid.Grid
}

// openSessions opens mode on every non-nil grid. On failure the sessions
// already opened are closed again.
func openSessions(mode grid.AccessMode, gs ...grid.Grid) (*sessionSet, error) {
	set := &sessionSet{}
	for _, g := range gs {
		if g == nil {
			continue
		}
		if err := g.SetAccessMode(mode); err != nil {
			set.close()
			return nil, err
		}
		set.grids = append(set.grids, g)
	}
	return set, nil
}

func (s *sessionSet) close() error {
	var errs []error
	for _, g := range s.grids {
		if err := g.EndAccess(); err != nil {
			errs = append(errs, err)
		}
	}
	s.grids = nil
	return errors.Join(errs...)
}

func readComplex(g grid.Grid, dst []complex128) {
	for i := range dst {
		dst[i] = complex128(g.NextComplex())
	}
}

func writeComplex(g grid.Grid, src []complex128) {
	for _, v := range src {
		g.SetNextComplex(complex64(v))
	}
}

func readReal(g grid.Grid, dst []float32) {
	for i := range dst {
		dst[i] = g.NextReal()
	}
}

func writeReal(g grid.Grid, src []float32) {
	for _, v := range src {
		g.SetNextReal(v)
	}
}

// parallel runs fn over [0, n) in fixed-size tasks on at most workers
// goroutines. fn must only touch the index range it is given.
func parallel(ctx context.Context, workers, n int, fn func(lo, hi int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += binsPerTask {
		hi := min(lo+binsPerTask, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// halfSpectrumWeight is the number of full-spectrum bins a stored bin with
// x index i stands for.
func halfSpectrumWeight(i, nxp int) float64 {
	if i == 0 || (nxp%2 == 0 && i == nxp/2) {
		return 1
	}
	return 2
}
