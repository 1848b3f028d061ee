// Command pitot-analyse summarises recorded airspeed data: summary
// statistics on stdout and, with -o, PNG plots of airspeed and differential
// pressure over time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cojmeister/ms4525do/internal/db"
	"github.com/cojmeister/ms4525do/internal/units"
)

var (
	dbPath    = flag.String("db", "pitot.db", "SQLite database path")
	runID     = flag.String("run", "", "Run to analyse (default: the most recent run)")
	minutes   = flag.Int("minutes", 0, "Analyse a trailing time window instead of a run")
	unitsFlag = flag.String("units", units.MPS, "Display units for airspeed")
	plotPath  = flag.String("o", "", "Write a PNG plot of airspeed to this path, plus a .pressure.png sibling")
	listRuns  = flag.Bool("list", false, "List recorded runs and exit")
)

func main() {
	flag.Parse()

	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q; valid units are: %s", *unitsFlag, units.GetValidUnitsString())
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("DB path %s not accessible: %v", *dbPath, err)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *listRuns {
		runs, err := database.Runs(0)
		if err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		for _, run := range runs {
			fmt.Println(run.String())
		}
		return
	}

	opts := analyseOptions{
		RunID:    *runID,
		Minutes:  *minutes,
		Units:    *unitsFlag,
		PlotPath: *plotPath,
	}
	if err := runAnalyse(os.Stdout, database, opts); err != nil {
		log.Fatalf("analyse failed: %v", err)
	}
}
