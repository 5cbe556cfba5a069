package rundb

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/crava/internal/inversion"
	"github.com/banshee-data/crava/internal/timeutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	return db
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='run_warnings'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("run_warnings should be dropped")
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name='crava_version'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("crava_version should be dropped")
	}
}

func TestMigrateVersion_Fresh(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	version, dirty, err := db.MigrateVersion()
	if err != nil || version != 0 || dirty {
		t.Errorf("MigrateVersion = %d, %v, %v; want 0, false, nil", version, dirty, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	started := time.Unix(1700000000, 0)
	clock := timeutil.NewMockClock(started)
	db.Clock = clock
	id, err := db.RecordRun(Run{
		ConfigPath: "settings.json",
		Version:    "crava v0.3.1",
		NX:         4, NY: 5, NZ: 6,
		NXP: 4, NYP: 6, NZP: 8,
		Workers:     3,
		FileGrids:   true,
		Simulations: 2,
	})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("run ID %q is not a UUID", id)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != StatusRunning || !runs[0].Finished.IsZero() {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if !math.IsNaN(runs[0].PostVar[0]) {
		t.Errorf("PostVar before finish = %v, want NaN", runs[0].PostVar)
	}

	energy := []inversion.StackEnergy{
		{Name: "near", DataVariance: 2, SignalVariance: 1.5, NoiseVariance: 0.25, ResidualVariance: 0.5, SNRatio: 6},
		{Name: "far", DataVariance: 1, SignalVariance: 1, NoiseVariance: 0, ResidualVariance: 0, SNRatio: math.Inf(1)},
	}
	if err := db.RecordEnergy(id, energy); err != nil {
		t.Fatalf("RecordEnergy failed: %v", err)
	}
	warnings := []string{"Background base trend missing.", "Stack far has infinite noise variance."}
	if err := db.RecordWarnings(id, warnings); err != nil {
		t.Fatalf("RecordWarnings failed: %v", err)
	}
	pc := [3][3]float64{{0.001, 0, 0}, {0, 0.004, 0}, {0, 0, 0.0009}}
	clock.Advance(42 * time.Second)
	if err := db.FinishRun(id, StatusDone, pc); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	gotEnergy, err := db.Energy(id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(energy, gotEnergy); diff != "" {
		t.Errorf("energy mismatch (-want +got):\n%s", diff)
	}
	gotWarnings, err := db.Warnings(id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(warnings, gotWarnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}

	runs, err = db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	r := runs[0]
	if r.Status != StatusDone {
		t.Errorf("run not finished: %+v", r)
	}
	if !r.Started.Equal(started) {
		t.Errorf("Started = %v, want %v", r.Started, started)
	}
	if got := r.Finished.Sub(r.Started); got != 42*time.Second {
		t.Errorf("run took %v, want 42s", got)
	}
	if r.Version != "crava v0.3.1" {
		t.Errorf("Version = %q", r.Version)
	}
	if r.NZP != 8 || r.Workers != 3 || !r.FileGrids || r.Simulations != 2 {
		t.Errorf("run options not stored: %+v", r)
	}
	if r.PostVar != [3]float64{0.001, 0.004, 0.0009} {
		t.Errorf("PostVar = %v", r.PostVar)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	for n, id := range []string{"a", "b", "c"} {
		if _, err := db.RecordRun(Run{ID: id, Started: time.Unix(int64(100+n), 0)}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestFinishRun_Errors(t *testing.T) {
	db := setupTestDB(t)
	if err := db.FinishRun("missing", StatusFailed, [3][3]float64{}); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("FinishRun on unknown run = %v, want ErrUnknownRun", err)
	}
	if err := db.FinishRun("missing", StatusRunning, [3][3]float64{}); err == nil {
		t.Error("expected error for a non-final status")
	}
}

func TestRecordEnergy_NeedsRun(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordEnergy("missing", []inversion.StackEnergy{{Name: "near"}})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}
