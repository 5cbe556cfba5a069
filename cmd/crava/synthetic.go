package main

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/crava/internal/background"
	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/wavelet"
)

// blocky is the layered test model: +-1 in layers a few cells thick that
// dip gently across the volume.
func blocky(i, j, k int) float64 {
	if math.Sin(2*math.Pi*float64(k)/10+0.25*float64(i)+0.15*float64(j)) >= 0 {
		return 1
	}
	return -1
}

// forwardModel makes a synthetic stack over the logical volume: the
// reflectivity of the blocky model around the background trend, convolved
// with the wavelet, plus white noise at signal-to-noise ratio sn. It returns
// the grid and the noise variance.
func forwardModel(ws *fsutil.Workspace, d grid.Dims, onDisk bool, trend background.Trend,
	sd, coef [3]float64, w *wavelet.Wavelet, sn float64, rng *rand.Rand) (grid.Grid, float64, error) {
	nTraces := d.NX * d.NY
	traces := make([]float64, nTraces*d.NZ)
	refl := make([]float64, d.NZ)
	for j := 0; j < d.NY; j++ {
		for i := 0; i < d.NX; i++ {
			var prev [3]float64
			for k := 0; k < d.NZ; k++ {
				bg := trend.At(k, d.NZ, d.NZP)
				r := 0.0
				for p := 0; p < 3; p++ {
					m := bg[p] + sd[p]*blocky(i, j, k)
					if k > 0 {
						r += coef[p] * (m - prev[p])
					}
					prev[p] = m
				}
				refl[k] = r
			}
			tr := traces[(i+j*d.NX)*d.NZ : (i+j*d.NX+1)*d.NZ]
			for k := range tr {
				v := 0.0
				for t, s := range w.Samples {
					if src := k - (t - w.Center); src >= 0 && src < d.NZ {
						v += s * w.Scale * refl[src]
					}
				}
				tr[k] = v
			}
		}
	}

	noise := 0.0
	if sn > 0 && !math.IsInf(sn, 1) {
		noise = stat.Variance(traces, nil) / sn
		sigma := math.Sqrt(noise)
		for n := range traces {
			traces[n] += sigma * rng.NormFloat64()
		}
	}

	g := grid.New(ws, d, onDisk)
	if err := g.SetAccessMode(grid.Write); err != nil {
		g.Close()
		return nil, 0, err
	}
	for k := 0; k < d.NZP; k++ {
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < d.RNXP(); i++ {
				v := 0.0
				if d.Logical(i, j, k) {
					v = traces[(i+j*d.NX)*d.NZ+k]
				}
				g.SetNextReal(float32(v))
			}
		}
	}
	if err := g.EndAccess(); err != nil {
		g.Close()
		return nil, 0, err
	}
	return g, noise, nil
}
