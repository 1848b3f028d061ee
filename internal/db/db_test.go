package db

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRecordRun tests recording and retrieving runs
func TestRecordRun(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	run := Run{
		ID:               "run-1",
		StartedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Transport:        "sim",
		SensorAddress:    0x28,
		FullScalePSI:     1.0,
		SampleIntervalMs: 20,
		Notes:            "bench test",
	}

	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := db.Runs(0)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if got.ID != run.ID {
		t.Errorf("Expected run ID %q, got %q", run.ID, got.ID)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("Expected start time %v, got %v", run.StartedAt, got.StartedAt)
	}
	if got.Transport != run.Transport {
		t.Errorf("Expected transport %q, got %q", run.Transport, got.Transport)
	}
	if got.SensorAddress != run.SensorAddress {
		t.Errorf("Expected sensor address %#02x, got %#02x", run.SensorAddress, got.SensorAddress)
	}
	if got.FullScalePSI != run.FullScalePSI {
		t.Errorf("Expected full scale %v, got %v", run.FullScalePSI, got.FullScalePSI)
	}
	if got.SampleIntervalMs != run.SampleIntervalMs {
		t.Errorf("Expected sample interval %dms, got %dms", run.SampleIntervalMs, got.SampleIntervalMs)
	}
	if got.Notes != run.Notes {
		t.Errorf("Expected notes %q, got %q", run.Notes, got.Notes)
	}
}

// TestRuns_Empty tests retrieving runs when none exist
func TestRuns_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	runs, err := db.Runs(0)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected 0 runs, got %d", len(runs))
	}
}

// TestRuns_Limit tests that the row limit keeps the newest runs
func TestRuns_Limit(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := Run{
			ID:           id,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			Transport:    "sim",
			FullScalePSI: 1.0,
		}
		if err := db.RecordRun(run); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.Runs(2)
	if err != nil {
		t.Fatalf("Runs(2) failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("Expected the 2 newest runs, got %s then %s", runs[0].ID, runs[1].ID)
	}
}

// TestRunsNewestFirst tests that runs come back in reverse start order
func TestRunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := Run{
			ID:           id,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			Transport:    "sim",
			FullScalePSI: 1.0,
		}
		if err := db.RecordRun(run); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.Runs(0)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" || runs[2].ID != "run-a" {
		t.Errorf("Expected newest-first order, got %s %s %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

// TestRunTimestampPrecision tests that times survive storage at millisecond precision
func TestRunTimestampPrecision(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	started := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	run := Run{ID: "run-ns", StartedAt: started, Transport: "sim", FullScalePSI: 1.0}
	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := db.Runs(0)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	want := time.UnixMilli(started.UnixMilli()).UTC()
	if !runs[0].StartedAt.Equal(want) {
		t.Errorf("Expected start time %v, got %v", want, runs[0].StartedAt)
	}
	if runs[0].StartedAt.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", runs[0].StartedAt.Location())
	}
}

// TestRunString tests the Run.String() method
func TestRunString(t *testing.T) {
	run := Run{
		ID:               "run-1",
		StartedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Transport:        "usbiss",
		SensorAddress:    0x28,
		FullScalePSI:     1.0,
		SampleIntervalMs: 20,
	}

	str := run.String()
	if str == "" {
		t.Fatal("Expected non-empty string representation")
	}
	if !strings.Contains(str, "usbiss") {
		t.Errorf("Expected transport in string, got %q", str)
	}
	if !strings.Contains(str, "run-1") {
		t.Errorf("Expected run ID in string, got %q", str)
	}
	if !strings.Contains(str, "0x28") {
		t.Errorf("Expected sensor address in string, got %q", str)
	}
}

// TestRecordReading tests recording and retrieving readings
func TestRecordReading(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")

	r := Reading{
		RunID:        "run-1",
		SampledAt:    time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
		PressurePa:   320.5,
		TemperatureC: 21.25,
		AirspeedMps:  23.1,
	}
	if err := db.RecordReading(r); err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}

	readings, err := db.ReadingsForRun("run-1", 0)
	if err != nil {
		t.Fatalf("ReadingsForRun failed: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(readings))
	}

	got := readings[0]
	if got.RunID != r.RunID {
		t.Errorf("Expected run ID %q, got %q", r.RunID, got.RunID)
	}
	if !got.SampledAt.Equal(r.SampledAt) {
		t.Errorf("Expected sample time %v, got %v", r.SampledAt, got.SampledAt)
	}
	if got.PressurePa != r.PressurePa {
		t.Errorf("Expected pressure %v, got %v", r.PressurePa, got.PressurePa)
	}
	if got.TemperatureC != r.TemperatureC {
		t.Errorf("Expected temperature %v, got %v", r.TemperatureC, got.TemperatureC)
	}
	if got.AirspeedMps != r.AirspeedMps {
		t.Errorf("Expected airspeed %v, got %v", r.AirspeedMps, got.AirspeedMps)
	}
}

// TestReadingsSince tests filtering readings by sample time
func TestReadingsSince(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := Reading{
			RunID:       "run-1",
			SampledAt:   base.Add(time.Duration(i) * time.Second),
			PressurePa:  float64(i),
			AirspeedMps: float64(i),
		}
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	readings, err := db.ReadingsSince(base.Add(3*time.Second), 0)
	if err != nil {
		t.Fatalf("ReadingsSince failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if readings[0].PressurePa != 4 || readings[1].PressurePa != 3 {
		t.Errorf("Expected newest-first readings 4 then 3, got %v then %v",
			readings[0].PressurePa, readings[1].PressurePa)
	}
}

// TestReadingsSince_Limit tests that the row limit keeps the newest rows
func TestReadingsSince_Limit(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := Reading{
			RunID:     "run-1",
			SampledAt: base.Add(time.Duration(i) * time.Second),
			PressurePa: float64(i),
		}
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	readings, err := db.ReadingsSince(base, 2)
	if err != nil {
		t.Fatalf("ReadingsSince failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if readings[0].PressurePa != 4 || readings[1].PressurePa != 3 {
		t.Errorf("Expected the 2 newest readings, got %v then %v",
			readings[0].PressurePa, readings[1].PressurePa)
	}
}

// TestReadingsForRun tests that readings are scoped to their run
func TestReadingsForRun(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")
	mustRecordRun(t, db, "run-2")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-1", "run-2", "run-1"} {
		r := Reading{
			RunID:      runID,
			SampledAt:  base.Add(time.Duration(i) * time.Second),
			PressurePa: float64(i),
		}
		if err := db.RecordReading(r); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}

	readings, err := db.ReadingsForRun("run-1", 0)
	if err != nil {
		t.Fatalf("ReadingsForRun failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings for run-1, got %d", len(readings))
	}
	for _, r := range readings {
		if r.RunID != "run-1" {
			t.Errorf("Expected run-1 readings only, got %q", r.RunID)
		}
	}
}

// TestRecordFault tests recording and retrieving faults
func TestRecordFault(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")

	f := Fault{
		RunID:      "run-1",
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 2, 0, time.UTC),
		Kind:       "stale_mismatch",
		Detail:     "counts differ between reads",
	}
	if err := db.RecordFault(f); err != nil {
		t.Fatalf("RecordFault failed: %v", err)
	}

	faults, err := db.FaultsForRun("run-1", 0)
	if err != nil {
		t.Fatalf("FaultsForRun failed: %v", err)
	}
	if len(faults) != 1 {
		t.Fatalf("Expected 1 fault, got %d", len(faults))
	}

	got := faults[0]
	if got.Kind != f.Kind {
		t.Errorf("Expected kind %q, got %q", f.Kind, got.Kind)
	}
	if got.Detail != f.Detail {
		t.Errorf("Expected detail %q, got %q", f.Detail, got.Detail)
	}
	if !got.OccurredAt.Equal(f.OccurredAt) {
		t.Errorf("Expected time %v, got %v", f.OccurredAt, got.OccurredAt)
	}
}

// TestFaultsForRun_Empty tests retrieving faults when none exist
func TestFaultsForRun_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	mustRecordRun(t, db, "run-1")

	faults, err := db.FaultsForRun("run-1", 0)
	if err != nil {
		t.Fatalf("FaultsForRun failed: %v", err)
	}
	if len(faults) != 0 {
		t.Errorf("Expected 0 faults, got %d", len(faults))
	}
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "pitot-test.db")

	db, err := Open(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	if err := db.MigrateUp(filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	db.Close()
}

func mustRecordRun(t *testing.T, db *DB, id string) {
	t.Helper()
	run := Run{
		ID:               id,
		StartedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Transport:        "sim",
		SensorAddress:    0x28,
		FullScalePSI:     1.0,
		SampleIntervalMs: 20,
	}
	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun(%s) failed: %v", id, err)
	}
}
