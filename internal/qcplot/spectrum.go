// Package qcplot renders quality-control output of an inversion: amplitude
// spectra as PNG line plots and the energy summary as an HTML report.
package qcplot

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/crava/internal/grid"
)

// Spectrum is a one-sided amplitude spectrum against frequency in Hz.
type Spectrum struct {
	Name      string
	Freq      []float64
	Amplitude []float64
}

// AmplitudeSpectrum returns the mean vertical amplitude spectrum over the
// logical traces of a spatial grid. dz is the sample interval in ms. The
// whole padded trace is transformed, so the frequency step is 1/(NZP dz).
func AmplitudeSpectrum(name string, g grid.Grid, dz float64) (Spectrum, error) {
	d := g.Dims()
	if g.Domain() != grid.Spatial {
		return Spectrum{}, fmt.Errorf("%s: spectrum needs a spatial grid", name)
	}
	if !(dz > 0) {
		return Spectrum{}, fmt.Errorf("%s: sample interval must be positive, got %g", name, dz)
	}
	nTraces := d.NX * d.NY
	traces := make([]float64, nTraces*d.NZP)
	if err := g.SetAccessMode(grid.Read); err != nil {
		return Spectrum{}, err
	}
	for k := 0; k < d.NZP; k++ {
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < d.RNXP(); i++ {
				v := g.NextReal()
				if i < d.NX && j < d.NY {
					traces[(i+j*d.NX)*d.NZP+k] = float64(v)
				}
			}
		}
	}
	if err := g.EndAccess(); err != nil {
		return Spectrum{}, err
	}

	fft := fourier.NewFFT(d.NZP)
	coef := make([]complex128, d.NZP/2+1)
	s := Spectrum{Name: name, Freq: make([]float64, len(coef)), Amplitude: make([]float64, len(coef))}
	for t := 0; t < nTraces; t++ {
		fft.Coefficients(coef, traces[t*d.NZP:(t+1)*d.NZP])
		for f, c := range coef {
			s.Amplitude[f] += cmplx.Abs(c)
		}
	}
	for f := range s.Freq {
		s.Freq[f] = float64(f) * 1000 / (float64(d.NZP) * dz)
		if nTraces > 0 {
			s.Amplitude[f] /= float64(nTraces)
		}
	}
	return s, nil
}

// SpectrumPNG draws the spectra as one line each and saves the plot.
func SpectrumPNG(path, title string, spectra []Spectrum) error {
	if len(spectra) == 0 {
		return fmt.Errorf("no spectra to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Mean amplitude"

	for n, s := range spectra {
		if len(s.Freq) != len(s.Amplitude) {
			return fmt.Errorf("spectrum %s has %d frequencies and %d amplitudes", s.Name, len(s.Freq), len(s.Amplitude))
		}
		pts := make(plotter.XYs, len(s.Freq))
		for f := range s.Freq {
			pts[f] = plotter.XY{X: s.Freq[f], Y: s.Amplitude[f]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(n)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save spectrum plot %s: %w", path, err)
	}
	return nil
}
