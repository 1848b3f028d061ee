// Package api serves sensor data over HTTP: the latest sample, stored
// readings and runs, airspeed statistics, and a live SSE stream.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cojmeister/ms4525do/internal/db"
	"github.com/cojmeister/ms4525do/internal/sampler"
	"github.com/cojmeister/ms4525do/internal/units"
)

// ANSI escape codes for terminal colors
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// SampleSource is the live side of the API: the most recent sample and a
// fan-out subscription for streaming. *sampler.Sampler satisfies it.
type SampleSource interface {
	Latest() (sampler.Sample, bool)
	Subscribe() (string, chan sampler.Sample)
	Unsubscribe(id string)
}

// Server exposes the HTTP API over a sample source and the readings
// database. The units field is the default display unit for airspeeds;
// requests may override it with a ?units= query parameter.
type Server struct {
	source SampleSource
	db     *db.DB
	units  string
}

func NewServer(source SampleSource, database *db.DB, units string) *Server {
	return &Server{
		source: source,
		db:     database,
		units:  units,
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher so SSE streaming works through the wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusCodeColor returns the colored string representation of the HTTP status code
func statusCodeColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return fmt.Sprintf("%s%d%s", colorBoldGreen, code, colorReset)
	case code >= 400:
		return fmt.Sprintf("%s%d%s", colorBoldRed, code, colorReset)
	default:
		return fmt.Sprintf("%s%d%s", colorYellow, code, colorReset)
	}
}

// LoggingMiddleware logs each request with method, path, status and latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode),
			r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

// ServeMux returns the API routes. Callers mount it under a prefix of
// their choosing, typically /api/ with http.StripPrefix.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/reading", s.showReading)
	mux.HandleFunc("/readings", s.listReadings)
	mux.HandleFunc("/stats", s.showStats)
	mux.HandleFunc("/runs", s.listRuns)
	mux.HandleFunc("/faults", s.listFaults)
	mux.HandleFunc("/config", s.showConfig)
	mux.HandleFunc("/live", s.streamLive)
	mux.HandleFunc("/charts/airspeed", s.chartAirspeed)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

// SampleAPI is the wire form of a live sample: airspeed converted to the
// requested units, which are echoed in the payload.
type SampleAPI struct {
	Time         time.Time `json:"time"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	Airspeed     float64   `json:"airspeed"`
	Units        string    `json:"units"`
}

func (s *Server) sampleToAPI(sample sampler.Sample, target string) SampleAPI {
	return SampleAPI{
		Time:         sample.Time,
		PressurePa:   sample.PressurePa,
		TemperatureC: sample.TemperatureC,
		Airspeed:     units.ConvertSpeed(sample.AirspeedMps, target),
		Units:        target,
	}
}

// ReadingAPI is the wire form of a stored reading with airspeed converted
// to the requested units.
type ReadingAPI struct {
	RunID        string    `json:"run_id"`
	SampledAt    time.Time `json:"sampled_at"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	Airspeed     float64   `json:"airspeed"`
}

func readingToAPI(r db.Reading, target string) ReadingAPI {
	return ReadingAPI{
		RunID:        r.RunID,
		SampledAt:    r.SampledAt,
		PressurePa:   r.PressurePa,
		TemperatureC: r.TemperatureC,
		Airspeed:     units.ConvertSpeed(r.AirspeedMps, target),
	}
}

// StatsAPI mirrors db.Stats with every speed converted to the requested units.
type StatsAPI struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P85   float64 `json:"p85"`
	P98   float64 `json:"p98"`
	Units string  `json:"units"`
}

// unitsFor resolves the display units for a request: the ?units= query
// parameter when present and valid, otherwise the server default.
func (s *Server) unitsFor(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid 'units' parameter; valid units are: %s", units.GetValidUnitsString())
	}
	return u, nil
}

// minutesFor parses the ?minutes= query parameter, defaulting to 60.
func minutesFor(r *http.Request) (int, error) {
	m := r.URL.Query().Get("minutes")
	if m == "" {
		return 60, nil
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 1 {
		return 0, fmt.Errorf("invalid 'minutes' parameter")
	}
	return minutes, nil
}

// showReading returns the most recent sample, or 503 until the sampler has
// produced one.
func (s *Server) showReading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target, err := s.unitsFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, ok := s.source.Latest()
	if !ok {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No sample available yet")
		return
	}

	if err := json.NewEncoder(w).Encode(s.sampleToAPI(sample, target)); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode reading")
		return
	}
}

// listReadings returns stored readings, newest first. ?run= scopes to a
// single run; otherwise ?minutes= bounds the window (default 60).
func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target, err := s.unitsFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	minutes, err := minutesFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
	}

	var readings []db.Reading
	if runID := r.URL.Query().Get("run"); runID != "" {
		readings, err = s.db.ReadingsForRun(runID, limit)
	} else {
		since := time.Now().Add(-time.Duration(minutes) * time.Minute)
		readings, err = s.db.ReadingsSince(since, limit)
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}

	apiReadings := make([]ReadingAPI, len(readings))
	for i, rd := range readings {
		apiReadings[i] = readingToAPI(rd, target)
	}

	if err := json.NewEncoder(w).Encode(apiReadings); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode readings")
		return
	}
}

// showStats returns airspeed statistics over the requested window.
func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target, err := s.unitsFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	minutes, err := minutesFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	stats, err := s.db.AirspeedStats(since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}

	api := StatsAPI{
		Count: stats.Count,
		Mean:  units.ConvertSpeed(stats.MeanMps, target),
		Max:   units.ConvertSpeed(stats.MaxMps, target),
		P50:   units.ConvertSpeed(stats.P50Mps, target),
		P85:   units.ConvertSpeed(stats.P85Mps, target),
		P98:   units.ConvertSpeed(stats.P98Mps, target),
		Units: target,
	}

	if err := json.NewEncoder(w).Encode(api); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode stats")
		return
	}
}

// listRuns returns recent sampling runs, newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
	}

	runs, err := s.db.Runs(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode runs")
		return
	}
}

// listFaults returns the read faults recorded for a run.
func (s *Server) listFaults(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runID := r.URL.Query().Get("run")
	if runID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'run' parameter")
		return
	}

	faults, err := s.db.FaultsForRun(runID, 0)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve faults: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(faults); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode faults")
		return
	}
}

// showConfig tells clients which units the server reports by default, so
// UIs can label values and build a unit selector.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response := map[string]string{
		"units":       s.units,
		"valid_units": units.GetValidUnitsString(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode config")
		return
	}
}

// streamLive streams samples as server-sent events until the client
// disconnects or the sampler shuts down.
func (s *Server) streamLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target, err := s.unitsFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.source.Subscribe()
	defer s.source.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	w.(http.Flusher).Flush()

	for {
		select {
		case sample, ok := <-c:
			if !ok {
				// Channel closed, exit gracefully
				return
			}
			payload, err := json.Marshal(s.sampleToAPI(sample, target))
			if err != nil {
				return
			}
			if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
				return
			}
			w.(http.Flusher).Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// chartAirspeed renders recent airspeeds as a self-contained HTML line chart.
func (s *Server) chartAirspeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target, err := s.unitsFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	minutes, err := minutesFor(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	readings, err := s.db.ReadingsSince(since, 0)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}

	// ReadingsSince returns newest first; plot oldest to newest.
	times := make([]string, 0, len(readings))
	speeds := make([]opts.LineData, 0, len(readings))
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		times = append(times, rd.SampledAt.Format("15:04:05"))
		speeds = append(speeds, opts.LineData{Value: units.ConvertSpeed(rd.AirspeedMps, target)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Airspeed",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Airspeed",
			Subtitle: fmt.Sprintf("Last %d minutes, %d samples", minutes, len(readings)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Airspeed (%s)", target)}),
	)
	line.SetXAxis(times).AddSeries("airspeed", speeds,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("Failed to write chart response: %v", err)
	}
}

// Healthz reports daemon liveness; last_sample appears once the sampler
// has produced data. Registered at the root mux, outside the /api prefix.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]any{"status": "ok"}
	if sample, ok := s.source.Latest(); ok {
		response["last_sample"] = sample.Time
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode health response")
		return
	}
}
