package inversion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
	"github.com/banshee-data/crava/internal/rockphysics"
	"github.com/banshee-data/crava/internal/simbox"
	"github.com/banshee-data/crava/internal/wavelet"
)

// Stack is one angle stack of the observed seismic.
type Stack struct {
	Name          string
	Angle         float64 // radians
	Seismic       grid.Grid
	Wavelet       *wavelet.Wavelet
	NoiseVariance float64 // per sample; +Inf disables the stack
}

// Options control the optional phases and the execution of a run.
type Options struct {
	Workers             int     // bin workers; <= 0 means GOMAXPROCS
	FileGrids           bool    // keep engine-owned grids on disk
	VsVpRatio           float64 // <= 0 means 0.5
	MinRelativeEigen    float64 // pseudo-inverse cutoff; <= 0 means 1e-10
	Simulations         int
	PosteriorCovariance bool
	FaciesProbability   bool
	SyntheticSeismic    bool
}

// Input is everything an inversion consumes. The seismic and background
// grids must be spatial and share the padded shape Dims; the engine
// transforms them in place and restores them in InverseTransform.
type Input struct {
	Box        *simbox.Simbox
	Dims       grid.Dims
	Workspace  *fsutil.Workspace
	Stacks     []Stack
	Background [3]grid.Grid
	Prior      PriorModel
	Facies     rockphysics.Model
	RNG        grid.NormalSource
	Options    Options
}

// StackEnergy summarises the fit of one stack. Variances are per padded
// sample, excluding the mean.
type StackEnergy struct {
	Name             string
	DataVariance     float64
	SignalVariance   float64
	NoiseVariance    float64
	ResidualVariance float64
	SNRatio          float64
}

// ParameterNames are the elastic parameters in grid order.
var ParameterNames = [3]string{"Vp", "Vs", "Rho"}

// covPairs lists the stored entries of the symmetric posterior covariance.
var covPairs = [6][2]int{{0, 0}, {1, 1}, {2, 2}, {0, 1}, {0, 2}, {1, 2}}

// CovarianceNames name the posterior covariance grids in output order.
var CovarianceNames = [6]string{"PostCovVp", "PostCovVs", "PostCovRho", "PostCrCovVpVs", "PostCrCovVpRho", "PostCrCovVsRho"}

// Engine runs one inversion. It is not safe for concurrent use; parallelism
// happens inside PerFrequencyUpdate, Simulate and FaciesProbability.
type Engine struct {
	in      Input
	opts    Options
	dims    grid.Dims
	workers int
	keepCov bool

	phase Phase
	err   error // first fatal failure; every later step returns it
	warn  monitoring.Warnings

	sigma0 [3][3]float64
	ops    []stackOperator
	corr   grid.Grid // prior correlation spectrum

	mean     [3]grid.Grid // posterior deviation spectra, then posterior mean
	postCov  [6]grid.Grid // posterior covariance spectra, then lag grids
	synth    []grid.Grid
	synthOut bool // synth grids are spatial
	pointCov [3][3]float64
	energy   []StackEnergy

	sims   [][3]grid.Grid
	facies []grid.Grid
}

// New checks the input shapes and returns an engine ready for BuildPriors.
func New(in Input) (*Engine, error) {
	opts := in.Options
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.VsVpRatio <= 0 {
		opts.VsVpRatio = 0.5
	}
	if opts.MinRelativeEigen <= 0 {
		opts.MinRelativeEigen = 1e-10
	}
	if opts.FileGrids && in.Workspace == nil {
		return nil, errors.New("disk-backed grids need a workspace")
	}
	if len(in.Stacks) == 0 {
		return nil, errors.New("no angle stacks given")
	}
	if in.Box != nil && (in.Box.NX != in.Dims.NX || in.Box.NY != in.Dims.NY || in.Box.NZ != in.Dims.NZ) {
		return nil, fmt.Errorf("simbox is %dx%dx%d, grids are %dx%dx%d", in.Box.NX, in.Box.NY, in.Box.NZ, in.Dims.NX, in.Dims.NY, in.Dims.NZ)
	}
	if _, err := grid.NewDims(in.Dims.NX, in.Dims.NY, in.Dims.NZ, in.Dims.NXP, in.Dims.NYP, in.Dims.NZP); err != nil {
		return nil, err
	}
	return &Engine{
		in:      in,
		opts:    opts,
		dims:    in.Dims,
		workers: opts.Workers,
		keepCov: opts.Simulations > 0 || opts.PosteriorCovariance,
	}, nil
}

// Phase returns the last completed step.
func (e *Engine) Phase() Phase { return e.phase }

// Warnings returns the numbered warning report of the run.
func (e *Engine) Warnings() string { return e.warn.Text() }

// WarningList returns the warnings in the order they were raised.
func (e *Engine) WarningList() []string { return e.warn.Items() }

func (e *Engine) enter(p Phase) error {
	if e.err != nil {
		return e.err
	}
	if !CanAdvance(e.phase, p) {
		return fmt.Errorf("%w: %s cannot follow %s", ErrPhase, p, e.phase)
	}
	return nil
}

// finish records the outcome of step p. A failure is fatal for the run.
func (e *Engine) finish(p Phase, err error) error {
	if err != nil {
		e.err = fmt.Errorf("%s: %w", p, err)
		monitoring.Logf("[inversion] %v", e.err)
		return e.err
	}
	e.phase = p
	return nil
}

func (e *Engine) newGrid(domain grid.Domain) grid.Grid {
	g := grid.New(e.in.Workspace, e.dims, e.opts.FileGrids)
	if domain == grid.Frequency {
		g.CreateComplexGrid()
	}
	return g
}

func (e *Engine) checkInputGrid(name string, g grid.Grid) error {
	if g == nil {
		return fmt.Errorf("%s grid is missing", name)
	}
	if !g.Dims().SamePadding(e.dims) {
		return fmt.Errorf("%s grid has padded shape %dx%dx%d, want %dx%dx%d", name,
			g.Dims().NXP, g.Dims().NYP, g.Dims().NZP, e.dims.NXP, e.dims.NYP, e.dims.NZP)
	}
	if g.Domain() != grid.Spatial {
		return fmt.Errorf("%s grid is not in the spatial domain", name)
	}
	return nil
}

// BuildPriors builds the stack operators, the prior point covariance and
// the prior correlation spectrum.
func (e *Engine) BuildPriors() error {
	if err := e.enter(PhaseBuildPriors); err != nil {
		return err
	}
	return e.finish(PhaseBuildPriors, e.buildPriors())
}

func (e *Engine) buildPriors() error {
	for p, g := range e.in.Background {
		if err := e.checkInputGrid("background "+ParameterNames[p], g); err != nil {
			return err
		}
	}
	e.ops = make([]stackOperator, len(e.in.Stacks))
	for s, st := range e.in.Stacks {
		if err := e.checkInputGrid("seismic "+st.Name, st.Seismic); err != nil {
			return err
		}
		if st.Wavelet == nil {
			return fmt.Errorf("stack %s has no wavelet", st.Name)
		}
		if math.IsNaN(st.NoiseVariance) || st.NoiseVariance < 0 {
			return fmt.Errorf("stack %s: noise variance must be non-negative, got %g", st.Name, st.NoiseVariance)
		}
		if math.IsInf(st.NoiseVariance, 1) {
			e.warn.Addf("Stack %s has infinite noise variance and does not constrain the inversion.", st.Name)
		}
		op, err := newStackOperator(st, e.opts.VsVpRatio, e.dims.NZP)
		if err != nil {
			return err
		}
		e.ops[s] = op
	}

	sigma0, err := e.in.Prior.Covariance()
	if err != nil {
		return err
	}
	e.sigma0 = sigma0

	dx, dy, dz := 1.0, 1.0, 1.0
	if e.in.Box != nil {
		dx, dy, dz = e.in.Box.DX, e.in.Box.DY, e.in.Box.DZ
	}
	e.corr = e.newGrid(grid.Spatial)
	if err := e.in.Prior.correlationGrid(e.corr, dx, dy, dz); err != nil {
		return fmt.Errorf("prior correlation grid: %w", err)
	}
	if err := e.corr.FFTInPlace(); err != nil {
		return fmt.Errorf("prior correlation spectrum: %w", err)
	}
	clamped, err := clampSpectrum(e.corr)
	if err != nil {
		return fmt.Errorf("prior correlation spectrum: %w", err)
	}
	if clamped > 0 {
		e.warn.Addf("Prior correlation spectrum had %d negative densities; they were set to zero.", clamped)
	}
	monitoring.Logf("[inversion] priors built for %d stacks on %dx%dx%d (padded %dx%dx%d)",
		len(e.ops), e.dims.NX, e.dims.NY, e.dims.NZ, e.dims.NXP, e.dims.NYP, e.dims.NZP)
	return nil
}

// clampSpectrum keeps the real part of a spectral density and sets negative
// values to zero. It returns the number of bins clamped.
func clampSpectrum(g grid.Grid) (int, error) {
	if err := g.SetAccessMode(grid.ReadAndWrite); err != nil {
		return 0, err
	}
	clamped := 0
	for n := 0; n < g.Dims().CSize(); n++ {
		v := real(g.NextComplex())
		if v < 0 {
			clamped++
			v = 0
		}
		g.SetNextComplex(complex(v, 0))
	}
	return clamped, g.EndAccess()
}

// TransformInputs forward-transforms the seismic and background grids.
func (e *Engine) TransformInputs() error {
	if err := e.enter(PhaseTransformInputs); err != nil {
		return err
	}
	err := func() error {
		for _, st := range e.in.Stacks {
			if err := st.Seismic.FFTInPlace(); err != nil {
				return fmt.Errorf("seismic %s: %w", st.Name, err)
			}
		}
		for p, g := range e.in.Background {
			if err := g.FFTInPlace(); err != nil {
				return fmt.Errorf("background %s: %w", ParameterNames[p], err)
			}
		}
		return nil
	}()
	return e.finish(PhaseTransformInputs, err)
}

// PerFrequencyUpdate solves the Bayesian update in every wavenumber bin.
func (e *Engine) PerFrequencyUpdate(ctx context.Context) error {
	if err := e.enter(PhasePerFrequencyUpdate); err != nil {
		return err
	}
	return e.finish(PhasePerFrequencyUpdate, e.update(ctx))
}

func (e *Engine) update(ctx context.Context) error {
	d := e.dims
	nS := len(e.ops)
	for p := range e.mean {
		e.mean[p] = e.newGrid(grid.Frequency)
	}
	if e.keepCov {
		for c := range e.postCov {
			e.postCov[c] = e.newGrid(grid.Frequency)
		}
	}
	if e.opts.SyntheticSeismic {
		e.synth = make([]grid.Grid, nS)
		for s := range e.synth {
			e.synth[s] = e.newGrid(grid.Frequency)
		}
	}

	inputs := []grid.Grid{e.corr}
	for _, st := range e.in.Stacks {
		inputs = append(inputs, st.Seismic)
	}
	inputs = append(inputs, e.in.Background[:]...)
	outputs := append(append(append([]grid.Grid{}, e.mean[:]...), e.postCov[:]...), e.synth...)

	reads, err := openSessions(grid.Read, inputs...)
	if err != nil {
		return err
	}
	writes, err := openSessions(grid.Write, outputs...)
	if err != nil {
		reads.close()
		return err
	}

	err = e.updateSlices(ctx, nS)
	if cerr := errors.Join(reads.close(), writes.close()); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if e.corr != nil {
		cerr := e.corr.Close()
		e.corr = nil
		if cerr != nil {
			return cerr
		}
	}
	monitoring.Logf("[inversion] updated %d wavenumber bins with %d workers", d.CSize(), e.workers)
	return nil
}

func (e *Engine) updateSlices(ctx context.Context, nS int) error {
	d := e.dims
	n := d.CNXP() * d.NYP
	norm := float64(d.N())

	corr := make([]complex128, n)
	seis := make([][]complex128, nS)
	for s := range seis {
		seis[s] = make([]complex128, n)
	}
	var bg [3][]complex128
	for p := range bg {
		bg[p] = make([]complex128, n)
	}
	results := make([]binResult, n)
	fits := make([]complex128, n*nS)
	for b := range results {
		results[b].fit = fits[b*nS : (b+1)*nS]
	}
	out := make([]complex128, n)

	var dataE, fitE, residE = make([]float64, nS), make([]float64, nS), make([]float64, nS)
	var covSum [3][3]float64

	for k := 0; k < d.NZP; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		readComplex(e.corr, corr)
		for s, st := range e.in.Stacks {
			readComplex(st.Seismic, seis[s])
		}
		for p, g := range e.in.Background {
			readComplex(g, bg[p])
		}

		err := parallel(ctx, e.workers, n, func(lo, hi int) error {
			solver := newBinSolver(e.ops, e.sigma0, d.N(), e.opts.MinRelativeEigen)
			obs := make([]complex128, nS)
			for b := lo; b < hi; b++ {
				for s := range obs {
					obs[s] = seis[s][b]
				}
				mu := [3]complex128{bg[0][b], bg[1][b], bg[2][b]}
				if err := solver.solve(k, real(corr[b]), obs, mu, &results[b]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		for p, g := range e.mean {
			for b := range out {
				out[b] = results[b].delta[p]
			}
			writeComplex(g, out)
		}
		if e.keepCov {
			for c, g := range e.postCov {
				pq := covPairs[c]
				for b := range out {
					out[b] = complex(results[b].cov[pq[0]][pq[1]], 0)
				}
				writeComplex(g, out)
			}
		}
		for s, g := range e.synth {
			for b := range out {
				out[b] = results[b].fit[s]
			}
			writeComplex(g, out)
		}

		for b := range results {
			w := halfSpectrumWeight(b%d.CNXP(), d.NXP)
			for p := 0; p < 3; p++ {
				for q := 0; q < 3; q++ {
					covSum[p][q] += w * results[b].cov[p][q]
				}
			}
			if k == 0 && b == 0 {
				continue
			}
			for s := 0; s < nS; s++ {
				obs, fit := seis[s][b], results[b].fit[s]
				dataE[s] += w * sqAbs(obs)
				fitE[s] += w * sqAbs(fit)
				residE[s] += w * sqAbs(obs-fit)
			}
		}
	}

	scale := 1 / (norm * norm)
	for p := 0; p < 3; p++ {
		for q := 0; q < 3; q++ {
			e.pointCov[p][q] = covSum[p][q] * scale
		}
	}
	e.energy = make([]StackEnergy, nS)
	for s, op := range e.ops {
		en := StackEnergy{
			Name:             op.name,
			DataVariance:     dataE[s] * scale,
			SignalVariance:   fitE[s] * scale,
			ResidualVariance: residE[s] * scale,
			NoiseVariance:    op.noise,
		}
		switch {
		case op.noise > 0:
			en.SNRatio = en.SignalVariance / op.noise
		case en.SignalVariance > 0:
			en.SNRatio = math.Inf(1)
		}
		e.energy[s] = en
	}
	return nil
}

func sqAbs(c complex128) float64 { return real(c)*real(c) + imag(c)*imag(c) }

// InverseTransform turns the posterior deviation spectra into posterior mean
// grids by adding the background, and restores the input grids to the
// spatial domain.
func (e *Engine) InverseTransform() error {
	if err := e.enter(PhaseInverseTransform); err != nil {
		return err
	}
	err := func() error {
		for p, g := range e.mean {
			if err := g.InvFFTInPlace(); err != nil {
				return fmt.Errorf("posterior %s: %w", ParameterNames[p], err)
			}
			bg := e.in.Background[p]
			if err := bg.InvFFTInPlace(); err != nil {
				return fmt.Errorf("background %s: %w", ParameterNames[p], err)
			}
			if err := g.Add(bg); err != nil {
				return fmt.Errorf("posterior %s: %w", ParameterNames[p], err)
			}
		}
		for _, st := range e.in.Stacks {
			if err := st.Seismic.InvFFTInPlace(); err != nil {
				return fmt.Errorf("seismic %s: %w", st.Name, err)
			}
		}
		return nil
	}()
	return e.finish(PhaseInverseTransform, err)
}

// PosteriorMean returns the posterior mean grids of (ln Vp, ln Vs, ln Rho).
// They are owned by the engine.
func (e *Engine) PosteriorMean() [3]grid.Grid {
	if !e.phase.posterior() {
		return [3]grid.Grid{}
	}
	return e.mean
}

// PointCovariance returns the posterior covariance of one voxel.
func (e *Engine) PointCovariance() [3][3]float64 { return e.pointCov }

// Energy returns the per-stack fit summary of the update.
func (e *Engine) Energy() []StackEnergy { return e.energy }

// Done completes the run and releases spectra that are no longer needed.
func (e *Engine) Done() error {
	if err := e.enter(PhaseDone); err != nil {
		return err
	}
	var errs []error
	for c, g := range e.postCov {
		// Spectra left over when PosteriorCovariance did not run.
		if g != nil && g.Domain() == grid.Frequency {
			errs = append(errs, g.Close())
			e.postCov[c] = nil
		}
	}
	monitoring.Logf("[inversion] done with %d warnings", e.warn.Len())
	return e.finish(PhaseDone, errors.Join(errs...))
}

// Run executes every phase enabled in the options.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.BuildPriors(); err != nil {
		return err
	}
	if err := e.TransformInputs(); err != nil {
		return err
	}
	if err := e.PerFrequencyUpdate(ctx); err != nil {
		return err
	}
	if err := e.InverseTransform(); err != nil {
		return err
	}
	if e.opts.Simulations > 0 {
		if err := e.Simulate(ctx, e.opts.Simulations); err != nil {
			return err
		}
	}
	if e.opts.PosteriorCovariance {
		if err := e.PosteriorCovariance(); err != nil {
			return err
		}
	}
	if e.opts.FaciesProbability && len(e.in.Facies.Facies) > 0 {
		if err := e.FaciesProbability(ctx); err != nil {
			return err
		}
	}
	if e.opts.SyntheticSeismic {
		if _, err := e.SyntheticSeismic(); err != nil {
			return err
		}
	}
	return e.Done()
}

// Close releases every grid owned by the engine. Input grids are left to
// the caller.
func (e *Engine) Close() error {
	var errs []error
	closeGrid := func(g grid.Grid) {
		if g != nil {
			errs = append(errs, g.Close())
		}
	}
	closeGrid(e.corr)
	e.corr = nil
	for p := range e.mean {
		closeGrid(e.mean[p])
		e.mean[p] = nil
	}
	for c := range e.postCov {
		closeGrid(e.postCov[c])
		e.postCov[c] = nil
	}
	for _, g := range e.synth {
		closeGrid(g)
	}
	e.synth = nil
	for _, set := range e.sims {
		for _, g := range set {
			closeGrid(g)
		}
	}
	e.sims = nil
	for _, g := range e.facies {
		closeGrid(g)
	}
	e.facies = nil
	return errors.Join(errs...)
}
