// Package clock provides the time source used by every time-driven component
// of the streamer. Production code uses [Real]; tests inject a [Manual] clock
// to drive heartbeats, command due-times and replay pacing deterministically.
package clock

import (
	"sync"
	"time"
)

// TimeProvider is an interface for getting the current time and creating tickers.
// This allows injecting a mock time provider for deterministic testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker creates a new ticker that fires at the given interval.
	NewTicker(d time.Duration) *time.Ticker
}

// Real implements TimeProvider using the actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// NewTicker creates a new ticker using the standard library.
func (Real) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// Or returns tp if non-nil, otherwise the real clock.
func Or(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return Real{}
}

// Manual is a TimeProvider whose time only moves when told to.
// Tickers it creates are real tickers; components that need deterministic
// behaviour expose their per-tick work so tests can call it directly.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTicker creates a real ticker.
func (m *Manual) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
