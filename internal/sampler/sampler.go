// Package sampler polls a differential pressure sensor on a fixed cadence
// and fans readings out to subscribers.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cojmeister/ms4525do"
	"github.com/cojmeister/ms4525do/internal/monitoring"
	"github.com/cojmeister/ms4525do/internal/timeutil"
)

const (
	// DefaultInterval samples at 50 Hz, comfortably above the airframe
	// dynamics an airspeed display needs to track.
	DefaultInterval = 20 * time.Millisecond

	// DefaultBackoff is the extra wait after a failed read before the
	// loop resumes, giving a wedged bus a moment to recover.
	DefaultBackoff = 100 * time.Millisecond
)

// Sample is one dated sensor reading with its derived airspeed.
type Sample struct {
	Time         time.Time `json:"time"`
	PressurePa   float64   `json:"pressure_pa"`
	TemperatureC float64   `json:"temperature_c"`
	AirspeedMps  float64   `json:"airspeed_mps"`
}

// Reader is the sensor surface the sampler drives. A *ms4525do.Sensor
// satisfies it.
type Reader interface {
	ReadDataContext(ctx context.Context) (ms4525do.Reading, error)
}

// Sampler drives one sensor and distributes its readings. Failed reads are
// counted, logged, and reported through OnError; the loop itself keeps
// going until its context is cancelled.
type Sampler struct {
	sensor   Reader
	clock    timeutil.Clock
	interval time.Duration
	backoff  time.Duration

	// OnError, if set, is called from the sampling goroutine for every
	// failed read. It runs before the backoff sleep, so it should return
	// promptly.
	OnError func(error)

	mu          sync.Mutex
	subscribers map[string]chan Sample
	latest      *Sample
}

// New creates a Sampler for the given sensor. Zero interval or backoff
// select the defaults.
func New(sensor Reader, clock timeutil.Clock, interval, backoff time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Sampler{
		sensor:      sensor,
		clock:       clock,
		interval:    interval,
		backoff:     backoff,
		subscribers: make(map[string]chan Sample),
	}
}

// Subscribe creates a new channel for receiving samples. The channel ID is
// used to identify the unique channel when unsubscribing. Sends are
// non-blocking: a subscriber that falls behind misses samples rather than
// stalling the loop.
func (s *Sampler) Subscribe() (string, chan Sample) {
	id := uuid.New().String()
	ch := make(chan Sample)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a channel from the list of subscribers.
func (s *Sampler) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Latest returns the most recent good sample, or false before the first
// successful read.
func (s *Sampler) Latest() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Sample{}, false
	}
	return *s.latest, true
}

// Run samples until ctx is cancelled, closing all subscriber channels on
// the way out.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.sampleOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.clock.Sleep(s.backoff)
			}
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) error {
	monitoring.SampleReads.Inc()
	reading, err := s.sensor.ReadDataContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a sensor failure.
			return err
		}
		monitoring.ReadErrors.WithLabelValues(ErrorKind(err)).Inc()
		monitoring.Logf("sampler: read failed: %v", err)
		if s.OnError != nil {
			s.OnError(err)
		}
		return err
	}

	sample := Sample{
		Time:         s.clock.Now().UTC(),
		PressurePa:   float64(reading.PressurePa),
		TemperatureC: float64(reading.TemperatureC),
		AirspeedMps:  float64(ms4525do.Airspeed(reading.PressurePa, reading.TemperatureC)),
	}
	s.publish(sample)
	return nil
}

func (s *Sampler) publish(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &sample
	for _, ch := range s.subscribers {
		select {
		case ch <- sample:
		default:
			// skip subscribers that are not ready so the loop never blocks
		}
	}
}

func (s *Sampler) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// ErrorKind buckets driver errors into the labels used by the read error
// metric and the fault log: transport, invalid_status, fault,
// stale_mismatch or other.
func ErrorKind(err error) string {
	var transportErr *ms4525do.TransportError
	var statusErr *ms4525do.InvalidStatusError
	switch {
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &statusErr):
		return "invalid_status"
	case errors.Is(err, ms4525do.ErrFaultDetected):
		return "fault"
	case errors.Is(err, ms4525do.ErrStaleDataMismatch):
		return "stale_mismatch"
	default:
		return "other"
	}
}
