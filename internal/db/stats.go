package db

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises airspeed over a set of readings.
type Stats struct {
	Count   int     `json:"count"`
	MeanMps float64 `json:"mean_mps"`
	MaxMps  float64 `json:"max_mps"`
	P50Mps  float64 `json:"p50_mps"`
	P85Mps  float64 `json:"p85_mps"`
	P98Mps  float64 `json:"p98_mps"`
}

// AirspeedStats computes summary statistics over all readings sampled at or
// after since. Percentiles use the empirical CDF, so each reported value is
// an airspeed that was actually observed.
func (db *DB) AirspeedStats(since time.Time) (Stats, error) {
	return db.airspeedStats(
		`SELECT airspeed_mps FROM readings
		 WHERE sampled_at >= ?
		 ORDER BY airspeed_mps ASC`,
		since.UnixMilli(),
	)
}

// AirspeedStatsForRun computes the same summary scoped to a single run.
func (db *DB) AirspeedStatsForRun(runID string) (Stats, error) {
	return db.airspeedStats(
		`SELECT airspeed_mps FROM readings
		 WHERE run_id = ?
		 ORDER BY airspeed_mps ASC`,
		runID,
	)
}

// airspeedStats runs a query selecting airspeeds in ascending order, which
// is the layout stat.Quantile requires.
func (db *DB) airspeedStats(query string, arg interface{}) (Stats, error) {
	rows, err := db.Query(query, arg)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return Stats{}, err
		}
		speeds = append(speeds, v)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if len(speeds) == 0 {
		return Stats{}, nil
	}

	return Stats{
		Count:   len(speeds),
		MeanMps: stat.Mean(speeds, nil),
		MaxMps:  floats.Max(speeds),
		P50Mps:  stat.Quantile(0.50, stat.Empirical, speeds, nil),
		P85Mps:  stat.Quantile(0.85, stat.Empirical, speeds, nil),
		P98Mps:  stat.Quantile(0.98, stat.Empirical, speeds, nil),
	}, nil
}
