// Package rundb records inversion runs in a sqlite database: the grid
// shape and options of each run, the per-stack energy summary, the warning
// report and the posterior point variances.
package rundb

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/crava/internal/inversion"
	"github.com/banshee-data/crava/internal/timeutil"
)

// Run states.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrUnknownRun is returned when a run ID is not in the database.
var ErrUnknownRun = errors.New("unknown run")

type DB struct {
	*sql.DB
	// Clock stamps run start and finish times.
	Clock timeutil.Clock
}

// Open opens (or creates) the database at path and applies the connection
// pragmas. Call MigrateUp before recording runs.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return &DB{DB: db, Clock: timeutil.RealClock{}}, nil
}

// Run is one row of the runs table.
type Run struct {
	ID          string
	ConfigPath  string
	Started     time.Time
	Finished    time.Time // zero while running
	Status      string
	Version     string
	NX, NY, NZ  int
	NXP, NYP    int
	NZP         int
	Workers     int
	FileGrids   bool
	Simulations int
	PostVar     [3]float64 // ln Vp, ln Vs, ln Rho; NaN until finished
}

// RecordRun inserts a running run and returns its ID. A new ID is
// generated when r.ID is empty; Started defaults to the clock's now.
func (db *DB) RecordRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Started.IsZero() {
		r.Started = db.Clock.Now()
	}
	_, err := db.Exec(`
		INSERT INTO runs (run_id, config_path, started_unix_nanos, status, crava_version,
			nx, ny, nz, nxp, nyp, nzp, workers, file_grids, simulations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConfigPath, r.Started.UnixNano(), StatusRunning, r.Version,
		r.NX, r.NY, r.NZ, r.NXP, r.NYP, r.NZP, r.Workers, r.FileGrids, r.Simulations)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return r.ID, nil
}

// RecordEnergy stores the per-stack energy summary of a run.
func (db *DB) RecordEnergy(runID string, energy []inversion.StackEnergy) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for s, e := range energy {
		_, err := tx.Exec(`
			INSERT INTO stack_energy (run_id, stack_index, name, data_variance,
				signal_variance, noise_variance, residual_variance, sn_ratio)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, s, e.Name, e.DataVariance, e.SignalVariance,
			finite(e.NoiseVariance), e.ResidualVariance, finite(e.SNRatio))
		if err != nil {
			return fmt.Errorf("failed to record energy of stack %s: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

// RecordWarnings stores the warning report of a run in order.
func (db *DB) RecordWarnings(runID string, warnings []string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for n, msg := range warnings {
		if _, err := tx.Exec(`INSERT INTO run_warnings (run_id, seq, message) VALUES (?, ?, ?)`, runID, n+1, msg); err != nil {
			return fmt.Errorf("failed to record warning %d: %w", n+1, err)
		}
	}
	return tx.Commit()
}

// FinishRun marks a run done or failed and stores the posterior point
// variances.
func (db *DB) FinishRun(runID, status string, pointCov [3][3]float64) error {
	if status != StatusDone && status != StatusFailed {
		return fmt.Errorf("invalid final status %q", status)
	}
	res, err := db.Exec(`
		UPDATE runs SET status = ?, finished_unix_nanos = ?,
			post_var_vp = ?, post_var_vs = ?, post_var_rho = ?
		WHERE run_id = ?`,
		status, db.Clock.Now().UnixNano(),
		finite(pointCov[0][0]), finite(pointCov[1][1]), finite(pointCov[2][2]), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Runs returns every run, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, config_path, started_unix_nanos, finished_unix_nanos, status, crava_version,
			nx, ny, nz, nxp, nyp, nzp, workers, file_grids, simulations,
			post_var_vp, post_var_vs, post_var_rho
		FROM runs ORDER BY started_unix_nanos DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var pv [3]sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ConfigPath, &started, &finished, &r.Status, &r.Version,
			&r.NX, &r.NY, &r.NZ, &r.NXP, &r.NYP, &r.NZP, &r.Workers, &r.FileGrids, &r.Simulations,
			&pv[0], &pv[1], &pv[2]); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started)
		if finished.Valid {
			r.Finished = time.Unix(0, finished.Int64)
		}
		for p, v := range pv {
			r.PostVar[p] = math.NaN()
			if v.Valid {
				r.PostVar[p] = v.Float64
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Energy returns the energy summary of a run in stack order.
func (db *DB) Energy(runID string) ([]inversion.StackEnergy, error) {
	rows, err := db.Query(`
		SELECT name, data_variance, signal_variance, noise_variance, residual_variance, sn_ratio
		FROM stack_energy WHERE run_id = ? ORDER BY stack_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inversion.StackEnergy
	for rows.Next() {
		var e inversion.StackEnergy
		var noise, sn sql.NullFloat64
		if err := rows.Scan(&e.Name, &e.DataVariance, &e.SignalVariance, &noise, &e.ResidualVariance, &sn); err != nil {
			return nil, err
		}
		e.NoiseVariance = infIfNull(noise)
		e.SNRatio = infIfNull(sn)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Warnings returns the warning report of a run in order.
func (db *DB) Warnings(runID string) ([]string, error) {
	rows, err := db.Query(`SELECT message FROM run_warnings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// finite stores infinities and NaN as NULL.
func finite(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// infIfNull reads back a value stored by finite. Only +Inf is expected.
func infIfNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
