package main

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cojmeister/ms4525do/internal/db"
	"github.com/cojmeister/ms4525do/internal/units"
)

type analyseOptions struct {
	RunID    string // run to analyse; empty selects the most recent
	Minutes  int    // > 0 switches to a trailing time window
	Units    string
	PlotPath string // empty skips the plot
}

// runAnalyse prints summary statistics for the selected readings and
// optionally renders them as a plot.
func runAnalyse(w io.Writer, database *db.DB, opts analyseOptions) error {
	var (
		readings []db.Reading
		stats    db.Stats
		scope    string
		err      error
	)

	if opts.Minutes > 0 {
		since := time.Now().Add(-time.Duration(opts.Minutes) * time.Minute)
		if readings, err = database.ReadingsSince(since, 0); err != nil {
			return err
		}
		if stats, err = database.AirspeedStats(since); err != nil {
			return err
		}
		scope = fmt.Sprintf("last %d minutes", opts.Minutes)
	} else {
		id := opts.RunID
		if id == "" {
			runs, err := database.Runs(1)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return errors.New("no runs recorded")
			}
			id = runs[0].ID
		}
		if readings, err = database.ReadingsForRun(id, 0); err != nil {
			return err
		}
		if stats, err = database.AirspeedStatsForRun(id); err != nil {
			return err
		}
		scope = fmt.Sprintf("run %s", id)
	}

	fmt.Fprintf(w, "airspeed for %s: %d samples\n", scope, stats.Count)
	if stats.Count > 0 {
		fmt.Fprintf(w, "  mean %8.2f %s\n", units.ConvertSpeed(stats.MeanMps, opts.Units), opts.Units)
		fmt.Fprintf(w, "  max  %8.2f %s\n", units.ConvertSpeed(stats.MaxMps, opts.Units), opts.Units)
		fmt.Fprintf(w, "  p50  %8.2f %s\n", units.ConvertSpeed(stats.P50Mps, opts.Units), opts.Units)
		fmt.Fprintf(w, "  p85  %8.2f %s\n", units.ConvertSpeed(stats.P85Mps, opts.Units), opts.Units)
		fmt.Fprintf(w, "  p98  %8.2f %s\n", units.ConvertSpeed(stats.P98Mps, opts.Units), opts.Units)
	}

	if opts.PlotPath != "" {
		if len(readings) == 0 {
			return errors.New("no readings to plot")
		}
		if err := renderAirspeedPlot(readings, opts.Units, opts.PlotPath); err != nil {
			return fmt.Errorf("render airspeed plot: %w", err)
		}
		fmt.Fprintf(w, "wrote %s\n", opts.PlotPath)

		pressurePath := pressurePlotPath(opts.PlotPath)
		if err := renderPressurePlot(readings, pressurePath); err != nil {
			return fmt.Errorf("render pressure plot: %w", err)
		}
		fmt.Fprintf(w, "wrote %s\n", pressurePath)
	}

	return nil
}

// pressurePlotPath derives the pressure plot's filename from the airspeed
// plot's: flight.png becomes flight.pressure.png.
func pressurePlotPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".pressure" + ext
}

// seriesPoints maps readings onto plot points, x in seconds since the first
// sample. Readings arrive newest first from the db layer.
func seriesPoints(readings []db.Reading, value func(db.Reading) float64) plotter.XYs {
	start := readings[len(readings)-1].SampledAt
	pts := make(plotter.XYs, 0, len(readings))
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		pts = append(pts, plotter.XY{
			X: rd.SampledAt.Sub(start).Seconds(),
			Y: value(rd),
		})
	}
	return pts
}

// renderAirspeedPlot draws airspeed over time in the requested units.
func renderAirspeedPlot(readings []db.Reading, target, path string) error {
	p := plot.New()
	p.Title.Text = "Airspeed"
	p.X.Label.Text = "Seconds since start"
	p.Y.Label.Text = fmt.Sprintf("Airspeed (%s)", target)

	line, err := plotter.NewLine(seriesPoints(readings, func(rd db.Reading) float64 {
		return units.ConvertSpeed(rd.AirspeedMps, target)
	}))
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 143, G: 188, B: 187, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("airspeed", line)
	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

// renderPressurePlot draws the raw differential pressure over time, useful
// when diagnosing a noisy or leaking probe line.
func renderPressurePlot(readings []db.Reading, path string) error {
	p := plot.New()
	p.Title.Text = "Differential pressure"
	p.X.Label.Text = "Seconds since start"
	p.Y.Label.Text = "Pressure (Pa)"

	line, err := plotter.NewLine(seriesPoints(readings, func(rd db.Reading) float64 {
		return rd.PressurePa
	}))
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 235, G: 203, B: 139, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("pressure", line)
	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
