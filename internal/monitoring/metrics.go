package monitoring

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SampleReads counts sensor read attempts, successful or not.
	SampleReads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitot",
		Subsystem: "sensor",
		Name:      "reads_total",
		Help:      "Sensor read attempts.",
	})

	// ReadErrors counts failed sensor reads by error kind (transport,
	// invalid_status, fault, stale_mismatch, other).
	ReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitot",
		Subsystem: "sensor",
		Name:      "read_errors_total",
		Help:      "Failed sensor reads by error kind.",
	}, []string{"kind"})
)

// RegisterReadingGauges exposes the most recent sample as gauges. latest
// reports ok == false until the first successful read; the gauges return NaN
// until then so scrapes can tell "no data yet" from a real zero.
//
// Call this once per process: the gauges register into the default registry.
func RegisterReadingGauges(latest func() (pressurePa, temperatureC, airspeedMps float64, ok bool)) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pitot",
		Subsystem: "sensor",
		Name:      "differential_pressure_pascals",
		Help:      "Latest differential pressure reading.",
	}, func() float64 {
		p, _, _, ok := latest()
		if !ok {
			return math.NaN()
		}
		return p
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pitot",
		Subsystem: "sensor",
		Name:      "temperature_celsius",
		Help:      "Latest die temperature reading.",
	}, func() float64 {
		_, t, _, ok := latest()
		if !ok {
			return math.NaN()
		}
		return t
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pitot",
		Subsystem: "sensor",
		Name:      "airspeed_mps",
		Help:      "Airspeed derived from the latest sample, meters per second.",
	}, func() float64 {
		_, _, v, ok := latest()
		if !ok {
			return math.NaN()
		}
		return v
	})
}
