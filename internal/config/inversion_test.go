package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.LX == nil || *cfg.LX != 1000 {
		t.Errorf("Expected LX 1000, got %v", cfg.LX)
	}
	if got := len(cfg.GetStacks()); got != 3 {
		t.Errorf("Expected 3 stacks, got %d", got)
	}
	if cfg.GetStacks()[2].Angle != 30 {
		t.Errorf("Expected far stack angle 30, got %f", cfg.GetStacks()[2].Angle)
	}
	if cfg.GetCorrelationKind() != "gaussian" {
		t.Errorf("GetCorrelationKind() = %q, want gaussian", cfg.GetCorrelationKind())
	}
	if !cfg.GetSyntheticSeismic() {
		t.Error("Expected synthetic_seismic true in defaults")
	}
	if len(cfg.Facies) != 2 {
		t.Errorf("Expected 2 facies, got %d", len(cfg.Facies))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadInversionConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	testJSON := `{
  "lx": 400,
  "dz": 2,
  "stacks": [{"name": "near", "angle": 5, "sn_ratio": 4}],
  "workers": 3,
  "file_grids": true,
  "seed": 42,
  "output_formats": ["STORM", "segy"]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadInversionConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	lx, ly, _ := cfg.GetExtent()
	if lx != 400 || ly != 1000 {
		t.Errorf("GetExtent() = %f, %f, want 400, 1000", lx, ly)
	}
	if _, _, dz := cfg.GetCellSize(); dz != 2 {
		t.Errorf("dz = %f, want 2", dz)
	}
	stacks := cfg.GetStacks()
	if len(stacks) != 1 || stacks[0].GetSNRatio() != 4 || stacks[0].GetPeakFrequency() != 30 {
		t.Errorf("unexpected stacks %+v", stacks)
	}
	if cfg.GetWorkers() != 3 {
		t.Errorf("GetWorkers() = %d, want 3", cfg.GetWorkers())
	}
	if !cfg.GetFileGrids() {
		t.Error("Expected file_grids true")
	}
	if cfg.GetSeed() != 42 {
		t.Errorf("GetSeed() = %d, want 42", cfg.GetSeed())
	}
	formats := cfg.GetOutputFormats()
	if strings.Join(formats, ",") != "storm,segy" {
		t.Errorf("GetOutputFormats() = %v", formats)
	}
}

func TestLoadInversionConfigMissing(t *testing.T) {
	_, err := LoadInversionConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadInversionConfigWrongExtension(t *testing.T) {
	_, err := LoadInversionConfig("settings.yaml")
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadInversionConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "lx": "wide"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadInversionConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadInversionConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(configPath, []byte(`{"dz": -1}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	_, err := LoadInversionConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *InversionConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &InversionConfig{},
			wantErr: false,
		},
		{
			name:    "zero cell size",
			cfg:     &InversionConfig{DX: ptrFloat64(0)},
			wantErr: true,
		},
		{
			name:    "padding above one",
			cfg:     &InversionConfig{PadZ: ptrFloat64(1.5)},
			wantErr: true,
		},
		{
			name:    "correlation of one",
			cfg:     &InversionConfig{CorrVpVs: ptrFloat64(1)},
			wantErr: true,
		},
		{
			name:    "grazing angle",
			cfg:     &InversionConfig{Stacks: []StackConfig{{Angle: 90}}},
			wantErr: true,
		},
		{
			name:    "non-positive sn ratio",
			cfg:     &InversionConfig{Stacks: []StackConfig{{Angle: 10, SNRatio: ptrFloat64(0)}}},
			wantErr: true,
		},
		{
			name:    "unknown correlation kind",
			cfg:     &InversionConfig{CorrelationKind: ptrString("cubic")},
			wantErr: true,
		},
		{
			name:    "negative workers",
			cfg:     &InversionConfig{Workers: ptrInt(-2)},
			wantErr: true,
		},
		{
			name:    "unknown output format",
			cfg:     &InversionConfig{OutputFormats: []string{"netcdf"}},
			wantErr: true,
		},
		{
			name:    "unknown velocity unit",
			cfg:     &InversionConfig{VelocityUnit: ptrString("mph")},
			wantErr: true,
		},
		{
			name:    "unknown density unit",
			cfg:     &InversionConfig{DensityUnit: ptrString("lb/ft3")},
			wantErr: true,
		},
		{
			name:    "field units",
			cfg:     &InversionConfig{VelocityUnit: ptrString("ft/s"), DensityUnit: ptrString("g/cm3")},
			wantErr: false,
		},
		{
			name:    "non-positive background",
			cfg:     &InversionConfig{Background: &BackgroundConfig{Top: ElasticValues{Vp: 3000, Vs: 0, Rho: 2300}}},
			wantErr: true,
		},
		{
			name: "facies probabilities must sum to one",
			cfg: &InversionConfig{Facies: []FaciesConfig{
				{Name: "a", Probability: 0.5, StdDev: ElasticValues{1, 1, 1}},
				{Name: "b", Probability: 0.2, StdDev: ElasticValues{1, 1, 1}},
			}},
			wantErr: true,
		},
		{
			name: "valid facies",
			cfg: &InversionConfig{Facies: []FaciesConfig{
				{Name: "a", Probability: 0.5, StdDev: ElasticValues{1, 1, 1}},
				{Name: "b", Probability: 0.5, StdDev: ElasticValues{1, 1, 1}},
			}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	cfg := EmptyInversionConfig()

	if fx, fy, fz := cfg.GetPadding(); fx != 0 || fy != 0 || fz != 0.5 {
		t.Errorf("GetPadding() = %f, %f, %f", fx, fy, fz)
	}
	if got := cfg.GetStacks(); len(got) != 1 || got[0].Angle != 0 {
		t.Errorf("GetStacks() = %+v, want one zero-offset stack", got)
	}
	if cfg.GetFileGrids() {
		t.Error("GetFileGrids() default should be false")
	}
	if cfg.GetSimulations() != 0 {
		t.Errorf("GetSimulations() = %d, want 0", cfg.GetSimulations())
	}
	if cfg.GetRunDB() != "" {
		t.Errorf("GetRunDB() = %q, want empty", cfg.GetRunDB())
	}
	if cfg.GetOutputDir() != "output" {
		t.Errorf("GetOutputDir() = %q", cfg.GetOutputDir())
	}
	if cfg.GetScratchDir() != os.TempDir() {
		t.Errorf("GetScratchDir() = %q", cfg.GetScratchDir())
	}
	if cfg.GetVelocityUnit() != "m/s" || cfg.GetDensityUnit() != "kg/m3" {
		t.Errorf("units = %q, %q", cfg.GetVelocityUnit(), cfg.GetDensityUnit())
	}
	if bg := cfg.GetBackground(); bg.Base != nil || bg.Top.Vp != 3000 {
		t.Errorf("GetBackground() = %+v", bg)
	}
}

func TestGetPriorCorrelationIsSymmetric(t *testing.T) {
	cfg := &InversionConfig{CorrVpVs: ptrFloat64(0.5), CorrVsRho: ptrFloat64(-0.1)}
	c := cfg.GetPriorCorrelation()
	for i := 0; i < 3; i++ {
		if c[i][i] != 1 {
			t.Errorf("diagonal %d = %f, want 1", i, c[i][i])
		}
		for j := 0; j < 3; j++ {
			if c[i][j] != c[j][i] {
				t.Errorf("corr[%d][%d] = %f, corr[%d][%d] = %f", i, j, c[i][j], j, i, c[j][i])
			}
		}
	}
	if c[0][1] != 0.5 || c[1][2] != -0.1 || c[0][2] != 0.3 {
		t.Errorf("unexpected correlation %v", c)
	}
}

func TestGetRotationRadians(t *testing.T) {
	cfg := &InversionConfig{Rotation: ptrFloat64(90)}
	if got := cfg.GetRotation(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Errorf("GetRotation() = %f, want pi/2", got)
	}
}

func TestGetOutputSwitches(t *testing.T) {
	cfg := &InversionConfig{PosteriorCovariance: ptrBool(true), SyntheticSeismic: ptrBool(false)}
	if !cfg.GetPosteriorCovariance() {
		t.Error("GetPosteriorCovariance() = false, want true")
	}
	if cfg.GetSyntheticSeismic() {
		t.Error("GetSyntheticSeismic() = true, want false")
	}
}
