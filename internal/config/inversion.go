package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/crava/internal/units"
)

// DefaultConfigPath is the path to the canonical inversion defaults file.
// This is the single source of truth for all default settings.
const DefaultConfigPath = "config/inversion.defaults.json"

// ElasticValues holds one value per elastic parameter.
type ElasticValues struct {
	Vp  float64 `json:"vp"`
	Vs  float64 `json:"vs"`
	Rho float64 `json:"rho"`
}

// Array returns the values in parameter order (Vp, Vs, Rho).
func (e ElasticValues) Array() [3]float64 { return [3]float64{e.Vp, e.Vs, e.Rho} }

// StackConfig describes one angle stack.
type StackConfig struct {
	Name          string   `json:"name"`
	Angle         float64  `json:"angle"`                    // degrees
	SNRatio       *float64 `json:"sn_ratio,omitempty"`       // signal-to-noise power ratio
	PeakFrequency *float64 `json:"peak_frequency,omitempty"` // Ricker peak frequency, Hz
	Seismic       string   `json:"seismic,omitempty"`        // Storm file; empty when forward modelled
}

// BackgroundConfig is a vertical trend in physical units. Base may be
// omitted for a constant background.
type BackgroundConfig struct {
	Top  ElasticValues  `json:"top"`
	Base *ElasticValues `json:"base,omitempty"`
}

// FaciesConfig describes one facies in log elastic parameters.
type FaciesConfig struct {
	Name        string        `json:"name"`
	Probability float64       `json:"probability"`
	Mean        ElasticValues `json:"mean"`
	StdDev      ElasticValues `json:"std_dev"`
}

// InversionConfig is the root configuration of an inversion run.
// Every scalar is optional; Get* accessors supply defaults for omitted fields.
type InversionConfig struct {
	// Geometry
	X0       *float64 `json:"x0,omitempty"`
	Y0       *float64 `json:"y0,omitempty"`
	LX       *float64 `json:"lx,omitempty"`
	LY       *float64 `json:"ly,omitempty"`
	LZ       *float64 `json:"lz,omitempty"`
	Top      *float64 `json:"top,omitempty"`
	DX       *float64 `json:"dx,omitempty"`
	DY       *float64 `json:"dy,omitempty"`
	DZ       *float64 `json:"dz,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"` // degrees

	// Padding fractions
	PadX *float64 `json:"pad_x,omitempty"`
	PadY *float64 `json:"pad_y,omitempty"`
	PadZ *float64 `json:"pad_z,omitempty"`

	// Forward model
	Stacks        []StackConfig `json:"stacks,omitempty"`
	VsVpRatio     *float64      `json:"vs_vp_ratio,omitempty"`
	WaveletLength *int          `json:"wavelet_length,omitempty"`

	// Prior model, in log elastic parameters
	Background      *BackgroundConfig `json:"background,omitempty"`
	PriorStdDev     *ElasticValues    `json:"prior_std_dev,omitempty"`
	CorrVpVs        *float64          `json:"corr_vp_vs,omitempty"`
	CorrVpRho       *float64          `json:"corr_vp_rho,omitempty"`
	CorrVsRho       *float64          `json:"corr_vs_rho,omitempty"`
	LateralRange    *float64          `json:"lateral_range,omitempty"`
	VerticalRange   *float64          `json:"vertical_range,omitempty"`
	CorrelationKind *string           `json:"correlation_kind,omitempty"` // gaussian, exponential or spherical

	// Engine
	Workers          *int     `json:"workers,omitempty"`
	FileGrids        *bool    `json:"file_grids,omitempty"`
	MinRelativeEigen *float64 `json:"min_relative_eigen,omitempty"`
	Simulations      *int     `json:"simulations,omitempty"`
	Seed             *uint64  `json:"seed,omitempty"`

	// Outputs
	PosteriorCovariance *bool          `json:"posterior_covariance,omitempty"`
	SyntheticSeismic    *bool          `json:"synthetic_seismic,omitempty"`
	Facies              []FaciesConfig `json:"facies,omitempty"`
	OutputFormats       []string       `json:"output_formats,omitempty"`
	OutputDir           *string        `json:"output_dir,omitempty"`
	VelocityUnit        *string        `json:"velocity_unit,omitempty"`
	DensityUnit         *string        `json:"density_unit,omitempty"`
	ScratchDir          *string        `json:"scratch_dir,omitempty"`
	RunDB               *string        `json:"run_db,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyInversionConfig returns an InversionConfig with all fields set to nil.
// Use LoadInversionConfig to load actual values from a settings file.
func EmptyInversionConfig() *InversionConfig {
	return &InversionConfig{}
}

// LoadInversionConfig loads an InversionConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadInversionConfig(path string) (*InversionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyInversionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *InversionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadInversionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var validFormats = map[string]bool{"storm": true, "storm_ascii": true, "segy": true}

var validKinds = map[string]bool{"gaussian": true, "exponential": true, "spherical": true}

// Validate checks that the configuration values are valid.
func (c *InversionConfig) Validate() error {
	for name, v := range map[string]*float64{
		"lx": c.LX, "ly": c.LY, "lz": c.LZ, "dx": c.DX, "dy": c.DY, "dz": c.DZ,
		"vs_vp_ratio": c.VsVpRatio, "lateral_range": c.LateralRange, "vertical_range": c.VerticalRange,
	} {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{"pad_x": c.PadX, "pad_y": c.PadY, "pad_z": c.PadZ} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{"corr_vp_vs": c.CorrVpVs, "corr_vp_rho": c.CorrVpRho, "corr_vs_rho": c.CorrVsRho} {
		if v != nil && (*v <= -1 || *v >= 1) {
			return fmt.Errorf("%s must be strictly between -1 and 1, got %f", name, *v)
		}
	}
	if c.PriorStdDev != nil {
		for _, v := range c.PriorStdDev.Array() {
			if !(v > 0) {
				return fmt.Errorf("prior_std_dev must be positive, got %+v", *c.PriorStdDev)
			}
		}
	}
	if c.Background != nil {
		if err := validateBackground(c.Background); err != nil {
			return err
		}
	}
	for i, s := range c.Stacks {
		if s.Angle < 0 || s.Angle >= 90 {
			return fmt.Errorf("stack %d: angle must be in [0, 90), got %f", i, s.Angle)
		}
		if s.SNRatio != nil && *s.SNRatio <= 0 {
			return fmt.Errorf("stack %d: sn_ratio must be positive, got %f", i, *s.SNRatio)
		}
		if s.PeakFrequency != nil && *s.PeakFrequency <= 0 {
			return fmt.Errorf("stack %d: peak_frequency must be positive, got %f", i, *s.PeakFrequency)
		}
	}
	if c.CorrelationKind != nil && !validKinds[*c.CorrelationKind] {
		return fmt.Errorf("unknown correlation_kind %q", *c.CorrelationKind)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Simulations != nil && *c.Simulations < 0 {
		return fmt.Errorf("simulations must be non-negative, got %d", *c.Simulations)
	}
	if c.WaveletLength != nil && *c.WaveletLength < 1 {
		return fmt.Errorf("wavelet_length must be at least 1, got %d", *c.WaveletLength)
	}
	if c.MinRelativeEigen != nil && (*c.MinRelativeEigen < 0 || *c.MinRelativeEigen >= 1) {
		return fmt.Errorf("min_relative_eigen must be in [0, 1), got %g", *c.MinRelativeEigen)
	}
	for _, f := range c.OutputFormats {
		if !validFormats[strings.ToLower(f)] {
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	if c.VelocityUnit != nil && !units.IsValidVelocity(*c.VelocityUnit) {
		return fmt.Errorf("unknown velocity_unit %q (valid: %s)", *c.VelocityUnit, strings.Join(units.ValidVelocityUnits, ", "))
	}
	if c.DensityUnit != nil && !units.IsValidDensity(*c.DensityUnit) {
		return fmt.Errorf("unknown density_unit %q (valid: %s)", *c.DensityUnit, strings.Join(units.ValidDensityUnits, ", "))
	}
	total := 0.0
	for i, f := range c.Facies {
		if f.Name == "" {
			return fmt.Errorf("facies %d has no name", i)
		}
		if f.Probability <= 0 {
			return fmt.Errorf("facies %q: probability must be positive, got %f", f.Name, f.Probability)
		}
		for _, v := range f.StdDev.Array() {
			if !(v > 0) {
				return fmt.Errorf("facies %q: std_dev must be positive", f.Name)
			}
		}
		total += f.Probability
	}
	if len(c.Facies) > 0 && math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("facies probabilities must sum to 1, got %f", total)
	}
	return nil
}

func validateBackground(b *BackgroundConfig) error {
	check := func(label string, e ElasticValues) error {
		for _, v := range e.Array() {
			if !(v > 0) {
				return fmt.Errorf("background %s values must be positive, got %+v", label, e)
			}
		}
		return nil
	}
	if err := check("top", b.Top); err != nil {
		return err
	}
	if b.Base != nil {
		return check("base", *b.Base)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetOrigin returns x0, y0 and the top depth.
func (c *InversionConfig) GetOrigin() (x0, y0, top float64) {
	return getFloat(c.X0, 0), getFloat(c.Y0, 0), getFloat(c.Top, 0)
}

// GetExtent returns the lateral and vertical extents of the volume.
func (c *InversionConfig) GetExtent() (lx, ly, lz float64) {
	return getFloat(c.LX, 1000), getFloat(c.LY, 1000), getFloat(c.LZ, 200)
}

// GetCellSize returns the cell dimensions.
func (c *InversionConfig) GetCellSize() (dx, dy, dz float64) {
	return getFloat(c.DX, 25), getFloat(c.DY, 25), getFloat(c.DZ, 4)
}

// GetRotation returns the grid rotation in radians.
func (c *InversionConfig) GetRotation() float64 {
	return getFloat(c.Rotation, 0) * math.Pi / 180
}

// GetPadding returns the padding fractions along x, y and z.
func (c *InversionConfig) GetPadding() (fx, fy, fz float64) {
	return getFloat(c.PadX, 0), getFloat(c.PadY, 0), getFloat(c.PadZ, 0.5)
}

// GetStacks returns the configured stacks, or a single zero-offset stack.
func (c *InversionConfig) GetStacks() []StackConfig {
	if len(c.Stacks) == 0 {
		return []StackConfig{{Name: "stack0", Angle: 0}}
	}
	return c.Stacks
}

// GetSNRatio returns the stack's signal-to-noise ratio or the default.
func (s StackConfig) GetSNRatio() float64 {
	return getFloat(s.SNRatio, 10)
}

// GetPeakFrequency returns the stack's wavelet peak frequency or the default.
func (s StackConfig) GetPeakFrequency() float64 {
	return getFloat(s.PeakFrequency, 30)
}

// GetVsVpRatio returns the Vs/Vp ratio used in the reflectivity coefficients.
func (c *InversionConfig) GetVsVpRatio() float64 {
	return getFloat(c.VsVpRatio, 0.5)
}

// GetWaveletLength returns the number of wavelet samples.
func (c *InversionConfig) GetWaveletLength() int {
	if c.WaveletLength == nil {
		return 31
	}
	return *c.WaveletLength
}

// GetBackground returns the background trend in physical units.
func (c *InversionConfig) GetBackground() BackgroundConfig {
	if c.Background == nil {
		return BackgroundConfig{Top: ElasticValues{Vp: 3000, Vs: 1500, Rho: 2300}}
	}
	return *c.Background
}

// GetPriorStdDev returns the prior standard deviations of the log parameters.
func (c *InversionConfig) GetPriorStdDev() [3]float64 {
	if c.PriorStdDev == nil {
		return [3]float64{0.05, 0.1, 0.03}
	}
	return c.PriorStdDev.Array()
}

// GetPriorCorrelation returns the 3x3 parameter correlation matrix.
func (c *InversionConfig) GetPriorCorrelation() [3][3]float64 {
	vs := getFloat(c.CorrVpVs, 0.7)
	vr := getFloat(c.CorrVpRho, 0.3)
	sr := getFloat(c.CorrVsRho, 0.2)
	return [3][3]float64{
		{1, vs, vr},
		{vs, 1, sr},
		{vr, sr, 1},
	}
}

// GetLateralRange returns the lateral correlation range.
func (c *InversionConfig) GetLateralRange() float64 {
	return getFloat(c.LateralRange, 500)
}

// GetVerticalRange returns the vertical correlation range.
func (c *InversionConfig) GetVerticalRange() float64 {
	return getFloat(c.VerticalRange, 20)
}

// GetCorrelationKind returns the correlation function name.
func (c *InversionConfig) GetCorrelationKind() string {
	if c.CorrelationKind == nil {
		return "gaussian"
	}
	return *c.CorrelationKind
}

// GetWorkers returns the worker count; zero means one per CPU.
func (c *InversionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetFileGrids reports whether grids are kept on disk.
func (c *InversionConfig) GetFileGrids() bool {
	if c.FileGrids == nil {
		return false
	}
	return *c.FileGrids
}

// GetMinRelativeEigen returns the relative eigenvalue cutoff of the
// pseudo-inverse.
func (c *InversionConfig) GetMinRelativeEigen() float64 {
	return getFloat(c.MinRelativeEigen, 1e-10)
}

// GetSimulations returns the number of posterior realizations.
func (c *InversionConfig) GetSimulations() int {
	if c.Simulations == nil {
		return 0
	}
	return *c.Simulations
}

// GetSeed returns the random seed.
func (c *InversionConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetPosteriorCovariance reports whether posterior covariance grids are made.
func (c *InversionConfig) GetPosteriorCovariance() bool {
	if c.PosteriorCovariance == nil {
		return false
	}
	return *c.PosteriorCovariance
}

// GetSyntheticSeismic reports whether synthetic seismic is written.
func (c *InversionConfig) GetSyntheticSeismic() bool {
	if c.SyntheticSeismic == nil {
		return false
	}
	return *c.SyntheticSeismic
}

// GetOutputFormats returns the lower-cased output formats, storm by default.
func (c *InversionConfig) GetOutputFormats() []string {
	if len(c.OutputFormats) == 0 {
		return []string{"storm"}
	}
	out := make([]string, len(c.OutputFormats))
	for i, f := range c.OutputFormats {
		out[i] = strings.ToLower(f)
	}
	return out
}

// GetOutputDir returns the output directory.
func (c *InversionConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "output"
	}
	return *c.OutputDir
}

// GetVelocityUnit returns the unit of the Vp and Vs outputs, m/s by default.
func (c *InversionConfig) GetVelocityUnit() string {
	if c.VelocityUnit == nil {
		return units.MetresPerSecond
	}
	return *c.VelocityUnit
}

// GetDensityUnit returns the unit of the density outputs, kg/m3 by default.
func (c *InversionConfig) GetDensityUnit() string {
	if c.DensityUnit == nil {
		return units.KgPerCubicMetre
	}
	return *c.DensityUnit
}

// GetScratchDir returns the root directory for scratch grid files.
func (c *InversionConfig) GetScratchDir() string {
	if c.ScratchDir == nil || *c.ScratchDir == "" {
		return os.TempDir()
	}
	return *c.ScratchDir
}

// GetRunDB returns the run database path, empty when diagnostics are off.
func (c *InversionConfig) GetRunDB() string {
	if c.RunDB == nil {
		return ""
	}
	return *c.RunDB
}
