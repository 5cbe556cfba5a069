package qcplot

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/crava/internal/inversion"
)

// Summary is the content of the HTML energy report.
type Summary struct {
	RunID    string
	Energy   []inversion.StackEnergy
	PointCov [3][3]float64
	Facies   []FaciesShare
}

// FaciesShare is the mean probability of one facies over the volume.
type FaciesShare struct {
	Name string
	Mean float64
}

// EnergyReportHTML renders the per-stack variances, the posterior standard
// deviations and the facies shares as one HTML page.
func EnergyReportHTML(w io.Writer, s Summary) error {
	if len(s.Energy) == 0 {
		return fmt.Errorf("no stack energy to report")
	}
	names := make([]string, len(s.Energy))
	var data, signal, residual, noise []opts.BarData
	for n, e := range s.Energy {
		names[n] = e.Name
		data = append(data, opts.BarData{Value: e.DataVariance})
		signal = append(signal, opts.BarData{Value: e.SignalVariance})
		residual = append(residual, opts.BarData{Value: e.ResidualVariance})
		noise = append(noise, opts.BarData{Value: barValue(e.NoiseVariance)})
	}

	energy := charts.NewBar()
	energy.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Inversion QC", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Stack energy", Subtitle: "variance per padded sample, run " + s.RunID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	energy.SetXAxis(names).
		AddSeries("data", data).
		AddSeries("signal", signal).
		AddSeries("residual", residual).
		AddSeries("noise", noise)

	std := charts.NewBar()
	std.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Posterior standard deviation", Subtitle: "log parameters"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	var sd []opts.BarData
	for p := 0; p < 3; p++ {
		sd = append(sd, opts.BarData{Value: math.Sqrt(math.Max(s.PointCov[p][p], 0))})
	}
	std.SetXAxis(inversion.ParameterNames[:]).
		AddSeries("std dev", sd, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.AddCharts(energy, std)

	if len(s.Facies) > 0 {
		pie := charts.NewPie()
		pie.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px"}),
			charts.WithTitleOpts(opts.Title{Title: "Facies", Subtitle: "mean probability"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		items := make([]opts.PieData, len(s.Facies))
		for n, f := range s.Facies {
			items[n] = opts.PieData{Name: f.Name, Value: f.Mean}
		}
		pie.AddSeries("facies", items)
		page.AddCharts(pie)
	}
	return page.Render(w)
}

// barValue drops infinities, which the chart cannot show.
func barValue(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "-"
	}
	return v
}
