// Package background builds the background (prior mean) grids of the
// inversion: the natural logarithms of Vp, Vs and density as smooth vertical
// trends.
package background

import (
	"fmt"
	"math"

	"github.com/banshee-data/crava/internal/config"
	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
)

// Parameter names in grid order.
var Names = [3]string{"Vp", "Vs", "Rho"}

// Trend is a linear vertical trend in log parameters between the first and
// last logical layer.
type Trend struct {
	Top  [3]float64
	Base [3]float64
}

// Constant returns a trend with the same values at every depth.
func Constant(logValues [3]float64) Trend {
	return Trend{Top: logValues, Base: logValues}
}

// FromConfig converts a background in physical units to a log trend.
// A missing base is reported as a warning and yields a constant trend.
func FromConfig(bg config.BackgroundConfig, warn *monitoring.Warnings) Trend {
	top := logArray(bg.Top.Array())
	if bg.Base == nil {
		if warn != nil {
			warn.Add("No background base values given; using a constant background trend.")
		}
		return Constant(top)
	}
	return Trend{Top: top, Base: logArray(bg.Base.Array())}
}

func logArray(v [3]float64) [3]float64 {
	return [3]float64{math.Log(v[0]), math.Log(v[1]), math.Log(v[2])}
}

// At returns the trend at vertical index k of a grid with nz logical and nzp
// padded layers. Inside the padding the trend runs linearly from the base
// back to the top, so the padded trace is periodic and its spectrum carries
// no wrap-around jump.
func (t Trend) At(k, nz, nzp int) [3]float64 {
	var w float64
	switch {
	case k < nz:
		if nz > 1 {
			w = float64(k) / float64(nz-1)
		}
	default:
		span := nzp - nz + 1
		w = 1 - float64(k-nz+1)/float64(span)
	}
	var out [3]float64
	for p := range out {
		out[p] = t.Top[p] + w*(t.Base[p]-t.Top[p])
	}
	return out
}

// Build returns one spatial grid per parameter holding the trend over the
// full padded extent.
func Build(ws *fsutil.Workspace, d grid.Dims, onDisk bool, t Trend) ([3]grid.Grid, error) {
	var out [3]grid.Grid
	for p := range out {
		g := grid.New(ws, d, onDisk)
		if err := fill(g, t, p); err != nil {
			g.Close()
			for _, prev := range out[:p] {
				prev.Close()
			}
			return [3]grid.Grid{}, fmt.Errorf("background %s: %w", Names[p], err)
		}
		out[p] = g
	}
	monitoring.Logf("[background] built %dx%dx%d trend grids (padded %dx%dx%d)", d.NX, d.NY, d.NZ, d.NXP, d.NYP, d.NZP)
	return out, nil
}

func fill(g grid.Grid, t Trend, p int) error {
	d := g.Dims()
	g.CreateRealGrid()
	if err := g.SetAccessMode(grid.Write); err != nil {
		return err
	}
	for k := 0; k < d.NZP; k++ {
		v := float32(t.At(k, d.NZ, d.NZP)[p])
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < d.RNXP(); i++ {
				if i < d.NXP {
					g.SetNextReal(v)
				} else {
					g.SetNextReal(0)
				}
			}
		}
	}
	return g.EndAccess()
}
