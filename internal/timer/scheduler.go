package timer

import (
	"sync"
	"time"
)

// Scheduler drives a timer's periodic refresh. Cancel must stop further
// calls to fn; a call already in flight when cancel returns is tolerated
// because Timer ignores refreshes from a superseded arming.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
}

// TickerScheduler runs fn on its own goroutine off a time.Ticker.
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler only calls its functions when Fire is called. Tests use it
// to control exactly how many refreshes happen.
type ManualScheduler struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

// NewManualScheduler returns an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{fns: make(map[int]func())}
}

func (m *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	m.fns[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.fns, id)
		m.mu.Unlock()
	}
}

// Fire calls every armed function once.
func (m *ManualScheduler) Fire() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.fns))
	for i := 1; i <= m.next; i++ {
		if fn, ok := m.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Armed returns the number of functions currently scheduled.
func (m *ManualScheduler) Armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}
