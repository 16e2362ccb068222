// Package timer implements a countdown anchored to the wall clock.
//
// A running timer stores the instant it started and the seconds it started
// with; the remaining time is always recomputed from the clock on read.
// Nothing decrements a counter, so a process that was suspended, throttled or
// restarted shows the correct remaining time immediately. The periodic
// refresh only re-persists state and detects expiry.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start on a running timer.
	ErrAlreadyRunning = errors.New("timer already running")
	// ErrNotRunning is returned by Pause on a timer that is not running.
	ErrNotRunning = errors.New("timer not running")
	// ErrExpired is returned by Start when no time is left.
	ErrExpired = errors.New("timer has expired; end or reset it")
)

// Phase is the externally visible state of a timer.
type Phase string

const (
	Stopped Phase = "stopped"
	Running Phase = "running"
	Paused  Phase = "paused"
	Expired Phase = "expired"
)

// Status is a point-in-time view of a timer.
type Status struct {
	Phase            Phase
	RemainingSeconds int
	InitialSeconds   int
}

// Options configures New. Store and Clock are required.
type Options struct {
	// Key is the store key holding the timer state.
	Key string
	// DefaultMinutes configures a timer with no saved state.
	DefaultMinutes int
	Store          store.Store
	Clock          clock.Clock
	// Bus receives TimerTick and TimerExpired notifications. May be nil.
	Bus *event.Bus
	// Scheduler drives the refresh while running. Nil means the caller
	// drives refreshes by calling Tick.
	Scheduler       Scheduler
	RefreshInterval time.Duration
	Logger          *logging.Logger
}

// Timer is a single persisted countdown. It is safe for concurrent use.
type Timer struct {
	key       string
	defMins   int
	store     store.Store
	clock     clock.Clock
	bus       *event.Bus
	scheduler Scheduler
	interval  time.Duration
	log       *logging.Logger

	mu         sync.Mutex
	state      State
	lastSaved  string
	generation uint64
	cancel     func()
	nextCB     int
	onExpire   map[int]func()
}

// New restores the timer saved under opts.Key, or configures a fresh one for
// opts.DefaultMinutes when nothing usable is stored. A restored running timer
// resumes its scheduled refresh.
func New(opts Options) *Timer {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	t := &Timer{
		key:       opts.Key,
		defMins:   clampMinutes(opts.DefaultMinutes),
		store:     opts.Store,
		clock:     opts.Clock,
		bus:       opts.Bus,
		scheduler: opts.Scheduler,
		interval:  opts.RefreshInterval,
		log:       opts.Logger.WithComponent("timer").With("key", opts.Key),
		onExpire:  make(map[int]func()),
	}
	t.state = t.load()
	if t.state.IsRunning {
		t.armLocked()
	}
	return t
}

// load reads the persisted state, falling back to a fresh state on absence,
// corruption or an unknown schema version.
func (t *Timer) load() State {
	raw, ok, err := t.store.Get(t.key)
	if err != nil {
		t.log.Warn("failed to read timer state, starting fresh", "error", err.Error())
		return Fresh(t.defMins)
	}
	if !ok {
		return Fresh(t.defMins)
	}
	s, err := Migrate([]byte(raw))
	if err != nil {
		t.log.Warn("discarding unreadable timer state", "error", err.Error())
		return Fresh(t.defMins)
	}
	t.lastSaved = raw
	return s
}

func (t *Timer) nowMs() int64 {
	return clock.Millis(t.clock.Now())
}

// Key returns the store key of the timer.
func (t *Timer) Key() string { return t.key }

// Start anchors a run at the current instant with whatever time remains,
// which resumes a paused timer.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsRunning {
		return ErrAlreadyRunning
	}
	if t.state.RemainingSeconds <= 0 {
		return ErrExpired
	}

	next := t.state
	now := t.nowMs()
	starting := next.RemainingSeconds
	next.IsRunning = true
	next.StartTimestamp = &now
	next.StartingSeconds = &starting

	if err := t.commitLocked(next); err != nil {
		return err
	}
	t.armLocked()
	t.log.Debug("timer started", "remaining", starting)
	return nil
}

// Pause freezes the derived remaining time. A run that has already reached
// zero expires instead, firing the expiry callbacks.
func (t *Timer) Pause() error {
	t.mu.Lock()
	if !t.state.IsRunning {
		t.mu.Unlock()
		return ErrNotRunning
	}

	remaining := t.state.RemainingAt(t.nowMs())
	if remaining == 0 {
		callbacks := t.expireLocked()
		t.mu.Unlock()
		t.fireExpiry(callbacks)
		return nil
	}
	defer t.mu.Unlock()
	t.disarmLocked()

	next := t.state
	next.RemainingSeconds = remaining
	next.IsRunning = false
	next.StartTimestamp = nil
	next.StartingSeconds = nil

	if err := t.commitLocked(next); err != nil {
		return err
	}
	t.log.Debug("timer paused", "remaining", next.RemainingSeconds)
	return nil
}

// Reset stops the timer and configures it for minutes. It is used both for
// fresh configuration and for pomodoro stage transitions.
func (t *Timer) Reset(minutes int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarmLocked()
	return t.commitLocked(Fresh(minutes))
}

// End stops the timer, removes its persisted state and returns the whole
// minutes elapsed since it was configured. Calling End on an expired timer
// returns the full duration.
func (t *Timer) End() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarmLocked()
	remaining := t.state.RemainingAt(t.nowMs())
	minutes := (t.state.InitialDurationSeconds - remaining) / 60
	if minutes < 0 {
		minutes = 0
	}

	if err := t.store.Remove(t.key); err != nil {
		return 0, fmt.Errorf("failed to clear timer state: %w", err)
	}
	t.state = Fresh(t.state.InitialDurationSeconds / 60)
	t.lastSaved = ""
	t.log.Debug("timer ended", "minutes", minutes)
	return minutes, nil
}

// Abandon discards the timer without reporting elapsed time.
func (t *Timer) Abandon() error {
	_, err := t.End()
	return err
}

// Remaining returns the derived remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.RemainingAt(t.nowMs())
}

// IsRunning reports whether a run is in progress.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.IsRunning
}

// Status returns the current phase and remaining time.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Timer) statusLocked() Status {
	remaining := t.state.RemainingAt(t.nowMs())
	st := Status{RemainingSeconds: remaining, InitialSeconds: t.state.InitialDurationSeconds}
	switch {
	case t.state.IsRunning:
		st.Phase = Running
	case remaining == 0:
		st.Phase = Expired
	case remaining < t.state.InitialDurationSeconds:
		st.Phase = Paused
	default:
		st.Phase = Stopped
	}
	return st
}

// Snapshot returns a copy of the in-memory state.
func (t *Timer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnExpire registers fn to run once each time a run reaches zero.
func (t *Timer) OnExpire(fn func()) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextCB++
	id := t.nextCB
	t.onExpire[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.onExpire, id)
		t.mu.Unlock()
	}
}

// Tick is the scheduled refresh. It re-persists a running timer, publishes a
// TimerTick and, when the derived remaining time has reached zero, stops the
// timer and fires the expiry callbacks exactly once.
func (t *Timer) Tick() {
	t.tick(0, false)
}

func (t *Timer) tick(gen uint64, fromScheduler bool) {
	t.mu.Lock()
	if fromScheduler && gen != t.generation {
		// Armed by a run that has since been paused, reset or ended.
		t.mu.Unlock()
		return
	}
	if !t.state.IsRunning {
		t.mu.Unlock()
		return
	}

	remaining := t.state.RemainingAt(t.nowMs())
	if remaining > 0 {
		if err := t.commitLocked(t.state); err != nil {
			t.log.Warn("failed to persist timer state", "error", err.Error())
		}
		t.mu.Unlock()
		t.publish(event.TimerTick, remaining)
		return
	}

	callbacks := t.expireLocked()
	t.mu.Unlock()
	t.fireExpiry(callbacks)
}

// expireLocked stops a running timer that has reached zero and returns the
// expiry callbacks to run once the lock is released.
func (t *Timer) expireLocked() []func() {
	t.disarmLocked()
	next := t.state
	next.RemainingSeconds = 0
	next.IsRunning = false
	next.StartTimestamp = nil
	next.StartingSeconds = nil
	if err := t.commitLocked(next); err != nil {
		t.log.Warn("failed to persist expired timer", "error", err.Error())
		t.state = next
	}
	callbacks := make([]func(), 0, len(t.onExpire))
	for i := 1; i <= t.nextCB; i++ {
		if fn, ok := t.onExpire[i]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	return callbacks
}

func (t *Timer) fireExpiry(callbacks []func()) {
	t.log.Info("timer expired")
	t.publish(event.TimerExpired, 0)
	for _, fn := range callbacks {
		fn()
	}
}

// Reload replaces the in-memory state with whatever is persisted, after a
// change written by another process.
func (t *Timer) Reload() {
	t.mu.Lock()
	t.disarmLocked()
	t.lastSaved = ""
	t.state = t.load()
	if t.state.IsRunning {
		t.armLocked()
	}
	remaining := t.state.RemainingAt(t.nowMs())
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(event.Notification{
			Kind:      event.TimerChanged,
			Timestamp: t.clock.Now(),
			Key:       t.key,
			Remaining: remaining,
			External:  true,
		})
	}
}

// Close cancels the scheduled refresh.
func (t *Timer) Close() {
	t.mu.Lock()
	t.disarmLocked()
	t.mu.Unlock()
}

// commitLocked persists next and makes it the in-memory state. An identical
// document is not rewritten.
func (t *Timer) commitLocked(next State) error {
	next.Version = SchemaVersion
	data, err := encodeState(next)
	if err != nil {
		return err
	}
	if data != t.lastSaved {
		if err := t.store.Set(t.key, data); err != nil {
			return err
		}
		t.lastSaved = data
	}
	t.state = next
	return nil
}

func (t *Timer) armLocked() {
	t.disarmLocked()
	if t.scheduler == nil {
		return
	}
	gen := t.generation
	t.cancel = t.scheduler.Every(t.interval, func() { t.tick(gen, true) })
}

// disarmLocked cancels the scheduled refresh synchronously and invalidates
// any callback already in flight.
func (t *Timer) disarmLocked() {
	t.generation++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Timer) publish(kind event.Kind, remaining int) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(event.Notification{
		Kind:      kind,
		Timestamp: t.clock.Now(),
		Key:       t.key,
		Remaining: remaining,
	})
}
