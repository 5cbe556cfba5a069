package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crava/internal/config"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
	"github.com/banshee-data/crava/internal/rundb"
)

const testSettings = `{
  "lx": 100, "ly": 50, "lz": 40,
  "dx": 25, "dy": 25, "dz": 4,
  "top": 1500,
  "pad_x": 0.25, "pad_z": 0.5,
  "stacks": [
    {"name": "near", "angle": 5, "sn_ratio": 20, "peak_frequency": 40},
    {"name": "far", "angle": 35, "sn_ratio": 10, "peak_frequency": 35}
  ],
  "wavelet_length": 9,
  "background": {
    "top": {"vp": 3000, "vs": 1500, "rho": 2300},
    "base": {"vp": 3300, "vs": 1700, "rho": 2400}
  },
  "lateral_range": 100,
  "vertical_range": 12,
  "workers": 2,
  "file_grids": %FILEGRIDS%,
  "simulations": 1,
  "seed": 3,
  "posterior_covariance": true,
  "synthetic_seismic": true,
  "facies": [
    {"name": "shale", "probability": 0.5,
     "mean": {"vp": 8.0, "vs": 7.3, "rho": 7.74}, "std_dev": {"vp": 0.05, "vs": 0.08, "rho": 0.02}},
    {"name": "sand", "probability": 0.5,
     "mean": {"vp": 8.1, "vs": 7.45, "rho": 7.72}, "std_dev": {"vp": 0.05, "vs": 0.08, "rho": 0.02}}
  ],
  "output_formats": ["storm", "segy"],
  "scratch_dir": "%SCRATCH%"
}`

func writeSettings(t *testing.T, fileGrids bool) (path, scratch string) {
	t.Helper()
	dir := t.TempDir()
	scratch = filepath.Join(dir, "scratch")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	fg := "false"
	if fileGrids {
		fg = "true"
	}
	body := strings.NewReplacer("%FILEGRIDS%", fg, "%SCRATCH%", scratch).Replace(testSettings)
	path = filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, scratch
}

func quiet(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func TestRun_SyntheticEndToEnd(t *testing.T) {
	quiet(t)
	for _, fileGrids := range []bool{false, true} {
		t.Run(map[bool]string{false: "memory", true: "file"}[fileGrids], func(t *testing.T) {
			cfgPath, scratch := writeSettings(t, fileGrids)
			out := filepath.Join(t.TempDir(), "out")
			dbPath := filepath.Join(t.TempDir(), "runs.db")

			err := run(context.Background(), options{configPath: cfgPath, outDir: out, dbPath: dbPath, synthetic: true})
			require.NoError(t, err)

			for _, name := range []string{
				"Vp.storm", "Vs.storm", "Rho.storm", "Vp.segy",
				"Vp_sim1.storm", "PostCovVp.storm", "PostCrCovVsRho.storm",
				"FaciesProb_shale.storm", "FaciesProb_sand.storm",
				"Synthetic_near.storm", "Synthetic_far.storm",
				"spectra.png", "report.html",
			} {
				_, err := os.Stat(filepath.Join(out, name))
				assert.NoError(t, err, name)
			}

			left, err := os.ReadDir(scratch)
			require.NoError(t, err)
			assert.Empty(t, left, "scratch workspace not cleaned up")

			db, err := rundb.Open(dbPath)
			require.NoError(t, err)
			defer db.Close()
			runs, err := db.Runs()
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, rundb.StatusDone, runs[0].Status)
			assert.Equal(t, fileGrids, runs[0].FileGrids)
			assert.Equal(t, 4, runs[0].NX)
			assert.Greater(t, runs[0].PostVar[0], 0.0)

			energy, err := db.Energy(runs[0].ID)
			require.NoError(t, err)
			require.Len(t, energy, 2)
			assert.Equal(t, "near", energy[0].Name)
			assert.Greater(t, energy[0].DataVariance, 0.0)
		})
	}
}

func TestRun_ReadsStormSeismic(t *testing.T) {
	quiet(t)
	cfgPath, _ := writeSettings(t, false)
	first := filepath.Join(t.TempDir(), "first")
	require.NoError(t, run(context.Background(), options{configPath: cfgPath, outDir: first, synthetic: true}))

	second := filepath.Join(t.TempDir(), "second")
	seismic := []string{
		filepath.Join(first, "Synthetic_near.storm"),
		filepath.Join(first, "Synthetic_far.storm"),
	}
	require.NoError(t, run(context.Background(), options{configPath: cfgPath, outDir: second, seismic: seismic}))
	_, err := os.Stat(filepath.Join(second, "Vp.storm"))
	assert.NoError(t, err)
}

func TestRun_GenerateSeismicOnly(t *testing.T) {
	quiet(t)
	cfgPath, scratch := writeSettings(t, true)
	out := filepath.Join(t.TempDir(), "generated")
	require.NoError(t, run(context.Background(), options{configPath: cfgPath, outDir: out, generateOnly: true}))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"Synthetic_near.storm", "Synthetic_near.segy",
		"Synthetic_far.storm", "Synthetic_far.segy",
	}, names)
	left, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, left)

	inverted := filepath.Join(t.TempDir(), "inverted")
	seismic := []string{filepath.Join(out, "Synthetic_near.storm"), filepath.Join(out, "Synthetic_far.storm")}
	require.NoError(t, run(context.Background(), options{configPath: cfgPath, outDir: inverted, seismic: seismic}))
	_, err = os.Stat(filepath.Join(inverted, "Vp.storm"))
	assert.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	quiet(t)
	cfgPath, _ := writeSettings(t, false)
	out := t.TempDir()

	err := run(context.Background(), options{configPath: cfgPath, outDir: out})
	assert.ErrorContains(t, err, "has no seismic")

	err = run(context.Background(), options{configPath: cfgPath, outDir: out, seismic: []string{"one.storm"}})
	assert.ErrorContains(t, err, "1 seismic files given for 2 stacks")

	err = run(context.Background(), options{configPath: filepath.Join(out, "missing.json")})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = run(ctx, options{configPath: cfgPath, outDir: out, synthetic: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFormats(t *testing.T) {
	f, err := parseFormats([]string{"storm", "segy", "storm_ascii"})
	require.NoError(t, err)
	assert.NotZero(t, f)
	_, err = parseFormats([]string{"vtk"})
	assert.Error(t, err)
}

func TestOutputScale(t *testing.T) {
	vel, den := "km/s", "g/cm3"
	scale, err := outputScale(&config.InversionConfig{VelocityUnit: &vel, DensityUnit: &den})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1e-3, 1e-3, 1e-3}, scale[:], 1e-15)

	scale, err = outputScale(&config.InversionConfig{})
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 1, 1}, scale)
}

func TestToPhysical(t *testing.T) {
	d, err := grid.NewDims(2, 1, 1, 2, 1, 1)
	require.NoError(t, err)
	g := grid.NewMemoryGrid(d)
	require.NoError(t, g.SetAccessMode(grid.RandomAccess))
	g.SetRealValue(0, 0, 0, float32(math.Log(3000)))
	g.SetRealValue(1, 0, 0, float32(math.Log(2000)))
	require.NoError(t, g.EndAccess())

	require.NoError(t, toPhysical(g, 1e-3))
	require.NoError(t, g.SetAccessMode(grid.RandomAccess))
	assert.InDelta(t, 3.0, g.RealValue(0, 0, 0), 1e-3)
	assert.InDelta(t, 2.0, g.RealValue(1, 0, 0), 1e-3)
	require.NoError(t, g.EndAccess())
}
