// Package db persists sampling runs, their readings, and read faults to
// SQLite. Schema management happens through migrations; see migrate.go.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite database at path. The
// modernc driver allows a single writer, so connections are capped at one
// and access serializes instead of surfacing SQLITE_BUSY to recorders.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// Run is one continuous sampling session against a single sensor. The
// sensor address and cadence ride along so recorded data stays
// interpretable after the deployment's wiring or config changes.
type Run struct {
	ID               string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	Transport        string    `json:"transport"`
	SensorAddress    int       `json:"sensor_address"`
	FullScalePSI     float64   `json:"full_scale_psi"`
	SampleIntervalMs int64     `json:"sample_interval_ms"`
	Notes            string    `json:"notes,omitempty"`
}

func (r *Run) String() string {
	return fmt.Sprintf("Run %s: started %s, transport %s, addr %#02x, ±%.1f psi, every %dms",
		r.ID, r.StartedAt.Format(time.RFC3339), r.Transport, r.SensorAddress, r.FullScalePSI, r.SampleIntervalMs)
}

// Reading is one persisted sample.
type Reading struct {
	RunID        string    `json:"run_id"`
	SampledAt    time.Time `json:"sampled_at"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	AirspeedMps  float64   `json:"airspeed_mps"`
}

// Fault is one failed sensor read kept for later diagnosis.
type Fault struct {
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
}

// RecordRun inserts a new run row.
func (db *DB) RecordRun(run Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, transport, sensor_address, full_scale_psi, sample_interval_ms, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Transport, run.SensorAddress,
		run.FullScalePSI, run.SampleIntervalMs, run.Notes,
	)
	if err != nil {
		return err
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// falls back to 100 rows.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT run_id, started_at, transport, sensor_address, full_scale_psi, sample_interval_ms, notes
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			startedAt int64
		)
		if err := rows.Scan(&run.ID, &startedAt, &run.Transport, &run.SensorAddress,
			&run.FullScalePSI, &run.SampleIntervalMs, &run.Notes); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// RecordReading inserts one sample.
func (db *DB) RecordReading(r Reading) error {
	_, err := db.Exec(
		`INSERT INTO readings (run_id, sampled_at, pressure_pa, temperature_c, airspeed_mps)
		 VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.SampledAt.UnixMilli(), r.PressurePa, r.TemperatureC, r.AirspeedMps,
	)
	if err != nil {
		return err
	}
	return nil
}

// ReadingsSince returns readings sampled at or after since, newest first.
// A limit of zero or less falls back to 1000 rows.
func (db *DB) ReadingsSince(since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(
		`SELECT run_id, sampled_at, pressure_pa, temperature_c, airspeed_mps
		 FROM readings WHERE sampled_at >= ?
		 ORDER BY sampled_at DESC LIMIT ?`,
		since.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// ReadingsForRun returns readings belonging to one run, newest first.
func (db *DB) ReadingsForRun(runID string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(
		`SELECT run_id, sampled_at, pressure_pa, temperature_c, airspeed_mps
		 FROM readings WHERE run_id = ?
		 ORDER BY sampled_at DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	var readings []Reading
	for rows.Next() {
		var (
			r         Reading
			sampledAt int64
		)
		if err := rows.Scan(&r.RunID, &sampledAt, &r.PressurePa, &r.TemperatureC, &r.AirspeedMps); err != nil {
			return nil, err
		}
		r.SampledAt = time.UnixMilli(sampledAt).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// RecordFault inserts one failed read.
func (db *DB) RecordFault(f Fault) error {
	_, err := db.Exec(
		`INSERT INTO faults (run_id, occurred_at, kind, detail)
		 VALUES (?, ?, ?, ?)`,
		f.RunID, f.OccurredAt.UnixMilli(), f.Kind, f.Detail,
	)
	if err != nil {
		return err
	}
	return nil
}

// FaultsForRun returns faults recorded during one run, newest first.
func (db *DB) FaultsForRun(runID string, limit int) ([]Fault, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(
		`SELECT run_id, occurred_at, kind, detail
		 FROM faults WHERE run_id = ?
		 ORDER BY occurred_at DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faults []Fault
	for rows.Next() {
		var (
			f          Fault
			occurredAt int64
		)
		if err := rows.Scan(&f.RunID, &occurredAt, &f.Kind, &f.Detail); err != nil {
			return nil, err
		}
		f.OccurredAt = time.UnixMilli(occurredAt).UTC()
		faults = append(faults, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return faults, nil
}
