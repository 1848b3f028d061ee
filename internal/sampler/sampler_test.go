package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cojmeister/ms4525do"
	"github.com/cojmeister/ms4525do/internal/testutil"
	"github.com/cojmeister/ms4525do/internal/timeutil"
)

type result struct {
	reading ms4525do.Reading
	err     error
}

// fakeSensor serves scripted results in order; the last one repeats.
type fakeSensor struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (f *fakeSensor) ReadDataContext(ctx context.Context) (ms4525do.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.reading, r.err
}

func (f *fakeSensor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSamplerPublishesSamples(t *testing.T) {
	sensor := &fakeSensor{results: []result{
		{reading: ms4525do.Reading{PressurePa: 50, TemperatureC: 20}},
	}}
	s := New(sensor, timeutil.RealClock{}, time.Millisecond, time.Millisecond)

	_, ch := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var samples []Sample
	timeout := time.After(2 * time.Second)
	for len(samples) < 3 {
		select {
		case sample, ok := <-ch:
			if !ok {
				t.Fatal("subscriber channel closed early")
			}
			samples = append(samples, sample)
		case <-timeout:
			t.Fatalf("timed out with %d samples", len(samples))
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	wantAirspeed := float64(ms4525do.Airspeed(50, 20))
	for i, sample := range samples {
		if sample.PressurePa != 50 || sample.TemperatureC != 20 {
			t.Errorf("sample %d = %+v, want 50 Pa / 20 C", i, sample)
		}
		if sample.AirspeedMps != wantAirspeed {
			t.Errorf("sample %d airspeed = %v, want %v", i, sample.AirspeedMps, wantAirspeed)
		}
		if sample.Time.IsZero() {
			t.Errorf("sample %d has no timestamp", i)
		}
	}

	// Run closes subscriber channels on the way out.
	testutil.WaitFor(t, time.Second, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, "subscriber channel closed after Run exits")
}

func TestSamplerLatest(t *testing.T) {
	sensor := &fakeSensor{results: []result{
		{reading: ms4525do.Reading{PressurePa: 120, TemperatureC: 15}},
	}}
	s := New(sensor, timeutil.RealClock{}, time.Millisecond, time.Millisecond)

	if _, ok := s.Latest(); ok {
		t.Fatal("Latest reported a sample before any read")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	testutil.WaitFor(t, time.Second, func() bool {
		_, ok := s.Latest()
		return ok
	}, "first sample cached")

	sample, _ := s.Latest()
	if sample.PressurePa != 120 || sample.TemperatureC != 15 {
		t.Errorf("Latest = %+v, want 120 Pa / 15 C", sample)
	}
}

func TestSamplerErrorBackoff(t *testing.T) {
	sensor := &fakeSensor{results: []result{
		{err: ms4525do.ErrFaultDetected},
	}}
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	s := New(sensor, clock, 0, 0)

	var errCount atomic.Int64
	var lastErr atomic.Value
	s.OnError = func(err error) {
		lastErr.Store(err)
		errCount.Add(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Run arms its ticker from the goroutine; wait for it before driving
	// the clock so no tick is lost.
	testutil.WaitFor(t, time.Second, func() bool {
		return clock.Waiters() > 0
	}, "sampler ticker armed")

	// OnError runs before the backoff sleep, so the recorded sleep count
	// is the stable signal that a failure was fully handled.
	clock.Advance(DefaultInterval)
	testutil.WaitFor(t, time.Second, func() bool {
		return len(clock.Sleeps()) == 1
	}, "first backoff recorded")

	clock.Advance(DefaultInterval)
	testutil.WaitFor(t, time.Second, func() bool {
		return len(clock.Sleeps()) == 2
	}, "second backoff recorded")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	if got := errCount.Load(); got != 2 {
		t.Errorf("OnError fired %d times, want 2", got)
	}
	if err, _ := lastErr.Load().(error); !errors.Is(err, ms4525do.ErrFaultDetected) {
		t.Errorf("OnError got %v, want ErrFaultDetected", err)
	}
	for _, d := range clock.Sleeps() {
		if d != DefaultBackoff {
			t.Errorf("backoff slept %v, want %v", d, DefaultBackoff)
		}
	}
}

func TestSamplerRecoversAfterError(t *testing.T) {
	sensor := &fakeSensor{results: []result{
		{err: ms4525do.ErrStaleDataMismatch},
		{reading: ms4525do.Reading{PressurePa: 30, TemperatureC: 25}},
	}}
	s := New(sensor, timeutil.RealClock{}, time.Millisecond, time.Millisecond)

	var errCount atomic.Int64
	s.OnError = func(error) { errCount.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	testutil.WaitFor(t, time.Second, func() bool {
		_, ok := s.Latest()
		return ok
	}, "sampler recovered after a failed read")

	if errCount.Load() != 1 {
		t.Errorf("OnError fired %d times, want 1", errCount.Load())
	}
	sample, _ := s.Latest()
	if sample.PressurePa != 30 {
		t.Errorf("Latest pressure = %v, want 30", sample.PressurePa)
	}
}

func TestSamplerUnsubscribe(t *testing.T) {
	sensor := &fakeSensor{results: []result{
		{reading: ms4525do.Reading{PressurePa: 1, TemperatureC: 1}},
	}}
	s := New(sensor, timeutil.RealClock{}, time.Millisecond, time.Millisecond)

	id, ch := s.Subscribe()
	s.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after an unsubscribe must not panic on the closed channel.
	s.publish(Sample{})

	// Unsubscribing twice is a no-op.
	s.Unsubscribe(id)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", &ms4525do.TransportError{Op: "read first frame", Err: errors.New("EREMOTEIO")}, "transport"},
		{"invalid status", &ms4525do.InvalidStatusError{Status: ms4525do.StatusStale}, "invalid_status"},
		{"fault", ms4525do.ErrFaultDetected, "fault"},
		{"stale mismatch", ms4525do.ErrStaleDataMismatch, "stale_mismatch"},
		{"anything else", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
