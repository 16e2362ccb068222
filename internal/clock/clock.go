// Package clock abstracts wall-clock time so the timer and ledger stay
// deterministic in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current wall-clock instant.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. t may be earlier than the current value, which
// is how tests simulate the system clock being wound backwards.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Millis converts t to epoch milliseconds, the unit used in persisted state.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds back to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
