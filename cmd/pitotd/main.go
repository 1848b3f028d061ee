// Command pitotd samples an MS4525DO pitot-static sensor, records every
// reading to SQLite, and serves the HTTP API, live stream and dashboard.
package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cojmeister/ms4525do"
	"github.com/cojmeister/ms4525do/internal/api"
	"github.com/cojmeister/ms4525do/internal/config"
	"github.com/cojmeister/ms4525do/internal/db"
	"github.com/cojmeister/ms4525do/internal/i2cmux"
	"github.com/cojmeister/ms4525do/internal/monitoring"
	"github.com/cojmeister/ms4525do/internal/sampler"
	"github.com/cojmeister/ms4525do/internal/timeutil"
	"github.com/cojmeister/ms4525do/internal/units"
	"github.com/cojmeister/ms4525do/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode     = flag.Bool("dev", false, "Run in dev mode: serve ./static from disk and default to the sim transport")
	listen      = flag.String("listen", "", "Listen address (default \":8080\")")
	dbPath      = flag.String("db", "", "SQLite database path (default \"pitot.db\")")
	migrations  = flag.String("migrations", "", "Migrations directory (default \"migrations\")")
	transport   = flag.String("transport", "", "Sensor transport: devfs, usbiss or sim (default \"devfs\")")
	i2cDevice   = flag.String("i2c-device", "", "I2C device node for the devfs transport (default \"/dev/i2c-1\")")
	serialPort  = flag.String("serial-port", "", "Serial port for the usbiss transport (default \"/dev/ttyACM0\")")
	sensorAddr  = flag.Int("addr", 0, "7-bit sensor address (default 0x28)")
	fullScale   = flag.Float64("full-scale", 0, "Sensor full scale in psi (default 1.0)")
	interval    = flag.Duration("interval", 0, "Sample interval (default 20ms)")
	backoff     = flag.Duration("backoff", 0, "Extra wait after a failed read (default 100ms)")
	unitsFlag   = flag.String("units", "", "Default display units for airspeed (default \"mps\")")
	notes       = flag.String("notes", "", "Free-form notes recorded with this run")
	configPath  = flag.String("config", "", "JSON config file; flags override its values")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// settings is the effective daemon configuration after layering the config
// file and command-line overrides over the built-in defaults.
type settings struct {
	Listen        string
	DBPath        string
	MigrationsDir string
	Transport     string
	I2CDevice     string
	SerialPort    string
	SensorAddr    byte
	FullScalePSI  float64
	Interval      time.Duration
	Backoff       time.Duration
	Units         string
}

// overrides carries the parsed command-line values. Zero values mean "not
// set on the command line".
type overrides struct {
	dev        bool
	listen     string
	dbPath     string
	migrations string
	transport  string
	i2cDevice  string
	serialPort string
	sensorAddr int
	fullScale  float64
	interval   time.Duration
	backoff    time.Duration
	units      string
}

func flagOverrides() overrides {
	return overrides{
		dev:        *devMode,
		listen:     *listen,
		dbPath:     *dbPath,
		migrations: *migrations,
		transport:  *transport,
		i2cDevice:  *i2cDevice,
		serialPort: *serialPort,
		sensorAddr: *sensorAddr,
		fullScale:  *fullScale,
		interval:   *interval,
		backoff:    *backoff,
		units:      *unitsFlag,
	}
}

// resolve merges the configuration sources. Dev mode switches the default
// transport to sim but never overrides an explicit choice.
func resolve(cfg *config.Config, o overrides) (settings, error) {
	s := settings{
		Listen:        cfg.GetListenAddr(),
		DBPath:        cfg.GetDBPath(),
		MigrationsDir: cfg.GetMigrationsDir(),
		Transport:     cfg.GetTransport(),
		I2CDevice:     cfg.GetI2CDevice(),
		SerialPort:    cfg.GetSerialPort(),
		SensorAddr:    byte(cfg.GetSensorAddress()),
		FullScalePSI:  cfg.GetFullScalePSI(),
		Interval:      cfg.GetSampleInterval(),
		Backoff:       cfg.GetErrorBackoff(),
		Units:         cfg.GetUnits(),
	}

	if o.dev && o.transport == "" && cfg.Transport == nil {
		s.Transport = config.TransportSim
	}

	if o.listen != "" {
		s.Listen = o.listen
	}
	if o.dbPath != "" {
		s.DBPath = o.dbPath
	}
	if o.migrations != "" {
		s.MigrationsDir = o.migrations
	}
	if o.transport != "" {
		s.Transport = o.transport
	}
	if o.i2cDevice != "" {
		s.I2CDevice = o.i2cDevice
	}
	if o.serialPort != "" {
		s.SerialPort = o.serialPort
	}
	if o.units != "" {
		s.Units = o.units
	}
	if o.sensorAddr != 0 {
		if o.sensorAddr < 0x08 || o.sensorAddr > 0x77 {
			return settings{}, fmt.Errorf("sensor address %#02x outside the valid 7-bit range 0x08-0x77", o.sensorAddr)
		}
		s.SensorAddr = byte(o.sensorAddr)
	}
	if o.fullScale != 0 {
		if o.fullScale < 0 {
			return settings{}, fmt.Errorf("full scale must be positive, got %v", o.fullScale)
		}
		s.FullScalePSI = o.fullScale
	}
	if o.interval != 0 {
		if o.interval < 0 {
			return settings{}, fmt.Errorf("interval must be positive, got %v", o.interval)
		}
		s.Interval = o.interval
	}
	if o.backoff != 0 {
		if o.backoff < 0 {
			return settings{}, fmt.Errorf("backoff must be positive, got %v", o.backoff)
		}
		s.Backoff = o.backoff
	}

	switch s.Transport {
	case config.TransportDevfs, config.TransportUSBISS, config.TransportSim:
	default:
		return settings{}, fmt.Errorf("unknown transport %q (valid: devfs, usbiss, sim)", s.Transport)
	}
	if !units.IsValid(s.Units) {
		return settings{}, fmt.Errorf("invalid units %q; valid units are: %s", s.Units, units.GetValidUnitsString())
	}

	return s, nil
}

// openDevice binds the configured bus transport.
func openDevice(s settings) (i2cmux.Device, error) {
	switch s.Transport {
	case config.TransportSim:
		return i2cmux.NewSimDevice(), nil
	case config.TransportUSBISS:
		return i2cmux.OpenUSBISS(s.SerialPort)
	default:
		return i2cmux.OpenDevfs(s.I2CDevice)
	}
}

// loadConfig returns the config from -config, or from the default config
// file when it exists, or an empty config.
func loadConfig() (*config.Config, error) {
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded config from %s", path)
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s, err := resolve(cfg, flagOverrides())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// `pitotd migrate <up|down|status|version|force>` manages the schema
	// without starting the daemon.
	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			log.Fatalf("unknown command %q", flag.Arg(0))
		}
		db.RunMigrateCommand(flag.Args()[1:], s.DBPath, s.MigrationsDir)
		return
	}

	device, err := openDevice(s)
	if err != nil {
		log.Fatalf("Failed to open %s transport: %v", s.Transport, err)
	}
	bus := i2cmux.NewMux(device)
	defer bus.Close()

	sensor := ms4525do.New(bus,
		ms4525do.WithAddress(s.SensorAddr),
		ms4525do.WithFullScale(float32(s.FullScalePSI)),
		ms4525do.WithLogf(monitoring.Logf),
	)

	database, err := db.Open(s.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Bring the schema up to date before recording anything.
	if err := database.MigrateUp(s.MigrationsDir); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	run := db.Run{
		ID:               uuid.New().String(),
		StartedAt:        time.Now().UTC(),
		Transport:        s.Transport,
		SensorAddress:    int(s.SensorAddr),
		FullScalePSI:     s.FullScalePSI,
		SampleIntervalMs: s.Interval.Milliseconds(),
		Notes:            *notes,
	}
	if err := database.RecordRun(run); err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}
	log.Printf("Started %s", run.String())

	smplr := sampler.New(sensor, timeutil.RealClock{}, s.Interval, s.Backoff)
	smplr.OnError = func(readErr error) {
		fault := db.Fault{
			RunID:      run.ID,
			OccurredAt: time.Now().UTC(),
			Kind:       sampler.ErrorKind(readErr),
			Detail:     readErr.Error(),
		}
		if err := database.RecordFault(fault); err != nil {
			log.Printf("failed to record fault: %v", err)
		}
	}

	monitoring.RegisterReadingGauges(func() (float64, float64, float64, bool) {
		sample, ok := smplr.Latest()
		return sample.PressurePa, sample.TemperatureC, sample.AirspeedMps, ok
	})

	// Create a wait group for the HTTP server, sampling loop, and recorder routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the sampling loop against the sensor
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := smplr.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to run sampler: %v", err)
		}
		log.Print("sampler routine terminated")
	}()

	// subscribe to the sample stream and persist it under this run
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := smplr.Subscribe()
		defer smplr.Unsubscribe(id)
		for {
			select {
			case sample, ok := <-c:
				if !ok {
					log.Printf("recorder routine terminated")
					return
				}
				reading := db.Reading{
					RunID:        run.ID,
					SampledAt:    sample.Time,
					PressurePa:   sample.PressurePa,
					TemperatureC: sample.TemperatureC,
					AirspeedMps:  sample.AirspeedMps,
				}
				if err := database.RecordReading(reading); err != nil {
					log.Printf("failed to record reading: %v", err)
				}
			case <-ctx.Done():
				log.Printf("recorder routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		bus.AttachAdminRoutes(mux)

		// create a new API server instance using the sampler and database
		// and mount the API handlers
		apiServer := api.NewServer(smplr, database, s.Units)
		mux.Handle("/api/", http.StripPrefix("/api", apiServer.ServeMux()))
		mux.HandleFunc("/healthz", apiServer.Healthz)
		mux.Handle("/metrics", promhttp.Handler())

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			sub, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to mount embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(sub))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    s.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP server listening on %s", s.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
