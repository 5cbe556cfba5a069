package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/crava/internal/background"
	"github.com/banshee-data/crava/internal/config"
	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/gridio"
	"github.com/banshee-data/crava/internal/inversion"
	"github.com/banshee-data/crava/internal/monitoring"
	"github.com/banshee-data/crava/internal/qcplot"
	"github.com/banshee-data/crava/internal/rockphysics"
	"github.com/banshee-data/crava/internal/rundb"
	"github.com/banshee-data/crava/internal/simbox"
	"github.com/banshee-data/crava/internal/units"
	"github.com/banshee-data/crava/internal/version"
	"github.com/banshee-data/crava/internal/wavelet"
)

type options struct {
	configPath string
	outDir     string
	dbPath     string
	seismic    []string
	synthetic  bool

	// generateOnly writes the forward-modelled stacks and skips the inversion.
	generateOnly bool
}

// Independent random streams for the synthetic data and the simulations.
const (
	streamSynthetic = 1
	streamSimulate  = 2
)

// run executes one inversion end to end.
func run(ctx context.Context, opts options) (err error) {
	cfg, err := config.LoadInversionConfig(opts.configPath)
	if err != nil {
		return err
	}
	outDir := cfg.GetOutputDir()
	if opts.outDir != "" {
		outDir = opts.outDir
	}
	dbPath := cfg.GetRunDB()
	if opts.dbPath != "" {
		dbPath = opts.dbPath
	}

	x0, y0, top := cfg.GetOrigin()
	lx, ly, lz := cfg.GetExtent()
	dx, dy, dz := cfg.GetCellSize()
	box, err := simbox.New(x0, y0, lx, ly, top, lz, cfg.GetRotation(), dx, dy, dz)
	if err != nil {
		return err
	}
	fx, fy, fz := cfg.GetPadding()
	dims := grid.DimsFromSimbox(box, fx, fy, fz)
	onDisk := cfg.GetFileGrids()
	log.Printf("[crava] volume %dx%dx%d padded to %dx%dx%d, file grids %v",
		dims.NX, dims.NY, dims.NZ, dims.NXP, dims.NYP, dims.NZP, onDisk)

	fsys := fsutil.OSFileSystem{}
	ws, err := fsutil.NewRunWorkspace(fsys, cfg.GetScratchDir())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var warn monitoring.Warnings
	trend := background.FromConfig(cfg.GetBackground(), &warn)
	bg, err := background.Build(ws, dims, onDisk, trend)
	if err != nil {
		return err
	}
	defer closeGrids(bg[:]...)

	prior, err := priorFromConfig(cfg)
	if err != nil {
		return err
	}
	seed := cfg.GetSeed()
	if opts.generateOnly {
		opts.synthetic = true
	}
	stacks, err := buildStacks(cfg, opts, box, dims, ws, trend, prior, rand.New(rand.NewPCG(seed, streamSynthetic)))
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range stacks {
			closeGrids(s.Seismic)
		}
	}()
	if opts.generateOnly {
		return writeSeismic(cfg, box, fsys, outDir, stacks)
	}

	facies := rockphysics.FromConfig(cfg.Facies)
	engine, err := inversion.New(inversion.Input{
		Box:        box,
		Dims:       dims,
		Workspace:  ws,
		Stacks:     stacks,
		Background: bg,
		Prior:      prior,
		Facies:     facies,
		RNG:        rand.New(rand.NewPCG(seed, streamSimulate)),
		Options: inversion.Options{
			Workers:             cfg.GetWorkers(),
			FileGrids:           onDisk,
			VsVpRatio:           cfg.GetVsVpRatio(),
			MinRelativeEigen:    cfg.GetMinRelativeEigen(),
			Simulations:         cfg.GetSimulations(),
			PosteriorCovariance: cfg.GetPosteriorCovariance(),
			FaciesProbability:   len(facies.Facies) > 0,
			SyntheticSeismic:    cfg.GetSyntheticSeismic(),
		},
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	var db *rundb.DB
	var runID string
	if dbPath != "" {
		if db, err = rundb.Open(dbPath); err != nil {
			return err
		}
		defer db.Close()
		if err := db.MigrateUp(); err != nil {
			return err
		}
		runID, err = db.RecordRun(rundb.Run{
			ConfigPath: opts.configPath,
			Version:    version.String(),
			NX:         dims.NX, NY: dims.NY, NZ: dims.NZ,
			NXP: dims.NXP, NYP: dims.NYP, NZP: dims.NZP,
			Workers:     cfg.GetWorkers(),
			FileGrids:   onDisk,
			Simulations: cfg.GetSimulations(),
		})
		if err != nil {
			return err
		}
		log.Printf("[crava] recording run %s in %s", runID, dbPath)
	}

	log.Printf("[crava] %s: %dx%dx%d grid padded to %dx%dx%d",
		version.String(), dims.NX, dims.NY, dims.NZ, dims.NXP, dims.NYP, dims.NZP)
	start := time.Now()
	if err := engine.Run(ctx); err != nil {
		if db != nil {
			if ferr := db.FinishRun(runID, rundb.StatusFailed, engine.PointCovariance()); ferr != nil {
				log.Printf("[crava] failed to mark run %s failed: %v", runID, ferr)
			}
		}
		return err
	}
	log.Printf("[crava] inversion finished in %s", time.Since(start).Round(time.Millisecond))

	warnings := append(warn.Items(), engine.WarningList()...)
	for n, w := range warnings {
		log.Printf("[crava] warning %d: %s", n+1, w)
	}

	writer, err := gridio.NewWriter(fsys, outDir)
	if err != nil {
		return err
	}
	formats, err := parseFormats(cfg.GetOutputFormats())
	if err != nil {
		return err
	}
	scale, err := outputScale(cfg)
	if err != nil {
		return err
	}
	synthetic := cfg.GetSyntheticSeismic()
	if err := writeOutputs(engine, box, ws, onDisk, formats, writer, stacks, scale, synthetic); err != nil {
		return err
	}
	if err := writeQC(engine, box, stacks, synthetic, fsys, outDir, runID); err != nil {
		return err
	}
	log.Printf("[crava] wrote %d files to %s", len(writer.Written()), outDir)

	if db != nil {
		if err := db.RecordEnergy(runID, engine.Energy()); err != nil {
			return err
		}
		if err := db.RecordWarnings(runID, warnings); err != nil {
			return err
		}
		if err := db.FinishRun(runID, rundb.StatusDone, engine.PointCovariance()); err != nil {
			return err
		}
	}
	return nil
}

func priorFromConfig(cfg *config.InversionConfig) (inversion.PriorModel, error) {
	kind, err := inversion.ParseCorrelationKind(cfg.GetCorrelationKind())
	if err != nil {
		return inversion.PriorModel{}, err
	}
	return inversion.PriorModel{
		StdDev:        cfg.GetPriorStdDev(),
		Corr:          cfg.GetPriorCorrelation(),
		LateralRange:  cfg.GetLateralRange(),
		VerticalRange: cfg.GetVerticalRange(),
		Kind:          kind,
	}, nil
}

// writeSeismic writes the seismic grid of every stack as Synthetic_<stack>.
func writeSeismic(cfg *config.InversionConfig, box *simbox.Simbox, fsys fsutil.FileSystem, outDir string, stacks []inversion.Stack) error {
	writer, err := gridio.NewWriter(fsys, outDir)
	if err != nil {
		return err
	}
	formats, err := parseFormats(cfg.GetOutputFormats())
	if err != nil {
		return err
	}
	for _, st := range stacks {
		if err := st.Seismic.WriteFile("Synthetic_"+st.Name, box, formats, writer); err != nil {
			return fmt.Errorf("stack %s: %w", st.Name, err)
		}
	}
	log.Printf("[crava] generated seismic only: wrote %d files to %s", len(writer.Written()), outDir)
	return nil
}

// buildStacks prepares the wavelet, seismic grid and noise level of every
// configured stack.
func buildStacks(cfg *config.InversionConfig, opts options, box *simbox.Simbox, d grid.Dims,
	ws *fsutil.Workspace, trend background.Trend, prior inversion.PriorModel, rng *rand.Rand) ([]inversion.Stack, error) {
	sc := cfg.GetStacks()
	if len(opts.seismic) > 0 && len(opts.seismic) != len(sc) {
		return nil, fmt.Errorf("%d seismic files given for %d stacks", len(opts.seismic), len(sc))
	}
	onDisk := cfg.GetFileGrids()
	var stacks []inversion.Stack
	fail := func(err error) ([]inversion.Stack, error) {
		for _, s := range stacks {
			closeGrids(s.Seismic)
		}
		return nil, err
	}
	for n, s := range sc {
		w, err := wavelet.Ricker(s.GetPeakFrequency(), box.DZ, cfg.GetWaveletLength())
		if err != nil {
			return fail(fmt.Errorf("stack %s: %w", s.Name, err))
		}
		w.Rescale()
		st := inversion.Stack{Name: s.Name, Angle: s.Angle * math.Pi / 180, Wavelet: w}

		path := s.Seismic
		if len(opts.seismic) > 0 {
			path = opts.seismic[n]
		}
		switch {
		case opts.synthetic:
			coef := inversion.ReflectionCoefficients(st.Angle, cfg.GetVsVpRatio())
			g, noise, err := forwardModel(ws, d, onDisk, trend, prior.StdDev, coef, w, s.GetSNRatio(), rng)
			if err != nil {
				return fail(fmt.Errorf("stack %s: %w", s.Name, err))
			}
			st.Seismic, st.NoiseVariance = g, noise
		case path != "":
			g, dataVar, err := readSeismic(ws, d, onDisk, box, path)
			if err != nil {
				return fail(fmt.Errorf("stack %s: %w", s.Name, err))
			}
			st.Seismic, st.NoiseVariance = g, wavelet.NoiseVariance(dataVar, s.GetSNRatio())
		default:
			return fail(fmt.Errorf("stack %s has no seismic; give a file or use -synthetic", s.Name))
		}
		stacks = append(stacks, st)
	}
	return stacks, nil
}

// readSeismic loads a Storm cube into a grid and returns the variance of
// its samples.
func readSeismic(ws *fsutil.Workspace, d grid.Dims, onDisk bool, box *simbox.Simbox, path string) (grid.Grid, float64, error) {
	cube, err := gridio.ReadStormFile(fsutil.OSFileSystem{}, path)
	if err != nil {
		return nil, 0, err
	}
	if cube.NX != box.NX || cube.NY != box.NY || cube.NZ != box.NZ {
		return nil, 0, fmt.Errorf("%s is %dx%dx%d, simbox is %dx%dx%d", path, cube.NX, cube.NY, cube.NZ, box.NX, box.NY, box.NZ)
	}
	g := grid.New(ws, d, onDisk)
	if err := gridio.FillGrid(g, cube); err != nil {
		g.Close()
		return nil, 0, err
	}
	values, err := logicalValues(g)
	if err != nil {
		g.Close()
		return nil, 0, err
	}
	return g, stat.Variance(values, nil), nil
}

// logicalValues streams the samples inside the logical volume out of g.
func logicalValues(g grid.Grid) ([]float64, error) {
	d := g.Dims()
	if err := g.SetAccessMode(grid.Read); err != nil {
		return nil, err
	}
	out := make([]float64, 0, d.NX*d.NY*d.NZ)
	for k := 0; k < d.NZP; k++ {
		for j := 0; j < d.NYP; j++ {
			for i := 0; i < d.RNXP(); i++ {
				v := g.NextReal()
				if d.Logical(i, j, k) {
					out = append(out, float64(v))
				}
			}
		}
	}
	return out, g.EndAccess()
}

func parseFormats(names []string) (grid.Format, error) {
	var f grid.Format
	for _, n := range names {
		switch n {
		case "storm":
			f |= grid.FormatStorm
		case "storm_ascii":
			f |= grid.FormatStormASCII
		case "segy":
			f |= grid.FormatSegy
		default:
			return 0, fmt.Errorf("unknown output format %q", n)
		}
	}
	return f, nil
}

// outputScale returns the factors taking Vp, Vs and Rho from SI to the
// configured output units.
func outputScale(cfg *config.InversionConfig) ([3]float64, error) {
	v, err := units.VelocityFactor(cfg.GetVelocityUnit())
	if err != nil {
		return [3]float64{}, err
	}
	r, err := units.DensityFactor(cfg.GetDensityUnit())
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{v, v, r}, nil
}

// toPhysical exponentiates a log-parameter grid and scales it to the
// output unit.
func toPhysical(g grid.Grid, scale float64) error {
	if err := g.ExpTransf(); err != nil {
		return err
	}
	if scale == 1 {
		return nil
	}
	return g.MultiplyByScalar(float32(scale))
}

// writeOutputs writes every result grid of the engine. Elastic grids are
// written in physical units.
func writeOutputs(e *inversion.Engine, box *simbox.Simbox, ws *fsutil.Workspace, onDisk bool,
	formats grid.Format, sink grid.Sink, stacks []inversion.Stack, scale [3]float64, synthetic bool) error {
	for p, g := range e.PosteriorMean() {
		c, err := grid.Clone(ws, g, onDisk)
		if err != nil {
			return err
		}
		err = toPhysical(c, scale[p])
		if err == nil {
			err = c.WriteFile(inversion.ParameterNames[p], box, formats, sink)
		}
		if cerr := c.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("posterior %s: %w", inversion.ParameterNames[p], err)
		}
	}
	for n, set := range e.Simulations() {
		for p, g := range set {
			if err := toPhysical(g, scale[p]); err != nil {
				return err
			}
			if err := g.WriteFile(fmt.Sprintf("%s_sim%d", inversion.ParameterNames[p], n+1), box, formats, sink); err != nil {
				return err
			}
		}
	}
	for c, g := range e.CovarianceGrids() {
		if g == nil {
			continue
		}
		if err := g.WriteFile(inversion.CovarianceNames[c], box, formats, sink); err != nil {
			return err
		}
	}
	names := e.FaciesNames()
	for f, g := range e.FaciesGrids() {
		if err := g.WriteFile("FaciesProb_"+names[f], box, formats, sink); err != nil {
			return err
		}
	}
	if !synthetic {
		return nil
	}
	synth, err := e.SyntheticSeismic()
	if err != nil {
		return err
	}
	for s, g := range synth {
		if err := g.WriteFile("Synthetic_"+stacks[s].Name, box, formats, sink); err != nil {
			return err
		}
	}
	return nil
}

// writeQC saves the spectrum plot and the HTML energy report.
func writeQC(e *inversion.Engine, box *simbox.Simbox, stacks []inversion.Stack, synthetic bool, fsys fsutil.FileSystem, outDir, runID string) error {
	var spectra []qcplot.Spectrum
	for _, s := range stacks {
		sp, err := qcplot.AmplitudeSpectrum(s.Name, s.Seismic, box.DZ)
		if err != nil {
			return err
		}
		spectra = append(spectra, sp)
	}
	if synthetic {
		synth, err := e.SyntheticSeismic()
		if err != nil {
			return err
		}
		for n, g := range synth {
			sp, err := qcplot.AmplitudeSpectrum(stacks[n].Name+" synthetic", g, box.DZ)
			if err != nil {
				return err
			}
			spectra = append(spectra, sp)
		}
	}
	if err := qcplot.SpectrumPNG(filepath.Join(outDir, "spectra.png"), "Seismic amplitude spectra", spectra); err != nil {
		return err
	}

	summary := qcplot.Summary{RunID: runID, Energy: e.Energy(), PointCov: e.PointCovariance()}
	names := e.FaciesNames()
	for f, g := range e.FaciesGrids() {
		m, err := volumeMean(g)
		if err != nil {
			return err
		}
		summary.Facies = append(summary.Facies, qcplot.FaciesShare{Name: names[f], Mean: m})
	}
	out, err := fsys.Create(filepath.Join(outDir, "report.html"))
	if err != nil {
		return err
	}
	if err := qcplot.EnergyReportHTML(out, summary); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// volumeMean averages g over the logical volume.
func volumeMean(g grid.Grid) (float64, error) {
	d := g.Dims()
	cols := make([]float32, d.NX*d.NY)
	if err := g.CollapseAndAdd(cols); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range cols {
		sum += float64(v)
	}
	return sum / float64(d.NX*d.NY*d.NZ), nil
}

func closeGrids(gs ...grid.Grid) {
	for _, g := range gs {
		if g != nil {
			g.Close()
		}
	}
}
