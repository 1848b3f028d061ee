// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations the sampling and transport layers
// depend on, so tests can drive time by hand.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// Sleep pauses for the specified duration.
	Sleep(d time.Duration)

	// NewTimer creates a Timer that delivers one tick after at least d.
	NewTimer(d time.Duration) Timer

	// NewTicker creates a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single event timer.
type Timer interface {
	// Chan returns the channel on which the time is delivered.
	Chan() <-chan time.Time

	// Stop prevents the Timer from firing. It reports whether the
	// timer was still active.
	Stop() bool
}

// Ticker delivers ticks of a clock at intervals.
type Ticker interface {
	// Chan returns the channel on which the ticks are delivered.
	Chan() <-chan time.Time

	// Stop turns off the ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTimer struct{ t *time.Timer }

func (t realTimer) Chan() <-chan time.Time { return t.t.C }
func (t realTimer) Stop() bool             { return t.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (t realTicker) Chan() <-chan time.Time { return t.t.C }
func (t realTicker) Stop()                  { t.t.Stop() }

// MockClock is a manually advanced clock for tests. Sleep returns
// immediately and records the requested duration; timers and tickers
// fire from Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	waiters []*mockWaiter
}

// NewMockClock creates a MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t against the mocked time.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the duration and returns immediately.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

// Sleeps returns a copy of all recorded sleep durations.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Waiters reports how many timers and tickers have been created. Tests use
// it to wait for a loop to arm its ticker before advancing the clock.
func (c *MockClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Advance moves the clock forward and fires every timer or ticker whose
// deadline has passed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	waiters := append([]*mockWaiter(nil), c.waiters...)
	c.mu.Unlock()

	for _, w := range waiters {
		w.fire(now)
	}
}

// NewTimer creates a one-shot waiter fired by Advance.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	return c.addWaiter(d, 0)
}

// NewTicker creates a repeating waiter fired by Advance.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return mockTicker{c.addWaiter(d, d)}
}

// mockTicker narrows a waiter to the Ticker signature (Stop without the
// active-report return).
type mockTicker struct{ *mockWaiter }

func (t mockTicker) Stop() { t.mockWaiter.Stop() }

func (c *MockClock) addWaiter(d, interval time.Duration) *mockWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &mockWaiter{
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
		interval: interval,
	}
	c.waiters = append(c.waiters, w)
	return w
}

// mockWaiter backs both MockClock timers (interval == 0, fires once) and
// tickers (interval > 0, re-arms after each fire). Sends never block; a
// full channel drops the tick, matching time.Ticker.
type mockWaiter struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	interval time.Duration
	stopped  bool
	fired    bool
}

func (w *mockWaiter) Chan() <-chan time.Time { return w.ch }

func (w *mockWaiter) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	active := !w.stopped && !w.fired
	w.stopped = true
	return active
}

func (w *mockWaiter) fire(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || (w.interval == 0 && w.fired) {
		return
	}
	if now.Before(w.deadline) {
		return
	}
	w.fired = true
	select {
	case w.ch <- now:
	default:
	}
	if w.interval > 0 {
		w.deadline = now.Add(w.interval)
	}
}
