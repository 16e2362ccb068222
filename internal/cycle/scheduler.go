// Package cycle runs the pomodoro sequence of focus and break stages on top of
// a single timer.
package cycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
	"github.com/fakeyudi/focusgate/internal/timer"
)

// ErrNoCycle is returned when closing out a pomodoro run that was never
// started.
var ErrNoCycle = errors.New("no pomodoro in progress")

// Completion summarises a closed pomodoro run.
type Completion struct {
	Minutes    int
	Bonus      bool
	Mode       Mode
	CycleIndex int
}

// Options configures New. Timer and Store are required.
type Options struct {
	// Key is the store key holding the cycle state.
	Key       string
	Timer     *timer.Timer
	Store     store.Store
	Clock     clock.Clock
	Bus       *event.Bus
	Durations Durations
	Logger    *logging.Logger
}

// Scheduler advances a pomodoro run each time its timer expires.
type Scheduler struct {
	key       string
	timer     *timer.Timer
	store     store.Store
	clock     clock.Clock
	bus       *event.Bus
	durations Durations
	log       *logging.Logger

	mu     sync.Mutex
	state  State
	active bool
	unsub  func()
}

// New restores the cycle saved under opts.Key and subscribes to the timer's
// expiry.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	s := &Scheduler{
		key:       opts.Key,
		timer:     opts.Timer,
		store:     opts.Store,
		clock:     opts.Clock,
		bus:       opts.Bus,
		durations: opts.Durations.withDefaults(),
		log:       opts.Logger.WithComponent("cycle"),
	}
	s.state, s.active = s.load()
	s.unsub = s.timer.OnExpire(s.handleExpiry)
	return s
}

func (s *Scheduler) load() (State, bool) {
	raw, ok, err := s.store.Get(s.key)
	if err != nil {
		s.log.Warn("failed to read cycle state, starting fresh", "error", err.Error())
		return Initial(s.durations), false
	}
	if !ok {
		return Initial(s.durations), false
	}
	st, err := Migrate([]byte(raw), s.durations)
	if err != nil {
		s.log.Warn("discarding unreadable cycle state", "error", err.Error())
		return Initial(s.durations), false
	}
	return st, true
}

// Timer returns the timer the scheduler drives.
func (s *Scheduler) Timer() *timer.Timer { return s.timer }

// Active reports whether a pomodoro run is in progress.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot returns the current cycle position.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a new run at the first focus stage, or resumes the current
// stage of a run in progress.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		st := Initial(s.durations)
		if err := s.persistLocked(st); err != nil {
			return err
		}
		if err := s.timer.Reset(st.Durations.Focus); err != nil {
			return err
		}
		s.log.Info("pomodoro started", "focus_minutes", st.Durations.Focus)
	}
	return s.timer.Start()
}

// Pause pauses the current stage.
func (s *Scheduler) Pause() error {
	return s.timer.Pause()
}

// End closes out the run. Completed focus stages plus the elapsed part of a
// focus stage in progress count; a run that finished at least one focus
// stage earns the bonus.
func (s *Scheduler) End() (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return Completion{}, ErrNoCycle
	}

	st := s.state
	current, err := s.timer.End()
	if err != nil {
		return Completion{}, err
	}
	c := Completion{
		Minutes:    st.CompletedMinutes,
		Bonus:      st.CycleIndex > 0,
		Mode:       st.Mode,
		CycleIndex: st.CycleIndex,
	}
	if st.Mode == Focus {
		c.Minutes += current
	}

	if err := s.clearLocked(); err != nil {
		return c, err
	}
	s.log.Info("pomodoro ended", "minutes", c.Minutes, "bonus", c.Bonus)
	return c, nil
}

// Abandon discards the run and its timer.
func (s *Scheduler) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.timer.Abandon(); err != nil {
		return err
	}
	return s.clearLocked()
}

// Reload replaces the in-memory position with the persisted one.
func (s *Scheduler) Reload() {
	s.mu.Lock()
	s.state, s.active = s.load()
	st := s.state
	s.mu.Unlock()

	s.publish(st, true)
}

// Close detaches the scheduler from its timer.
func (s *Scheduler) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Scheduler) handleExpiry() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	next := Advance(s.state)
	if err := s.persistLocked(next); err != nil {
		s.log.Warn("failed to persist cycle state", "error", err.Error())
		s.state = next
	}
	if err := s.timer.Reset(next.Durations.For(next.Mode)); err != nil {
		s.log.Warn("failed to reset timer for next stage", "error", err.Error())
	}
	s.mu.Unlock()

	s.log.Info("pomodoro stage advanced", "mode", string(next.Mode), "cycle", next.CycleIndex)
	s.publish(next, false)
}

func (s *Scheduler) persistLocked(st State) error {
	st.Version = SchemaVersion
	if err := store.SaveJSON(s.store, s.key, st); err != nil {
		return fmt.Errorf("failed to save cycle state: %w", err)
	}
	s.state = st
	s.active = true
	return nil
}

func (s *Scheduler) clearLocked() error {
	if err := s.store.Remove(s.key); err != nil {
		return fmt.Errorf("failed to clear cycle state: %w", err)
	}
	s.state = Initial(s.durations)
	s.active = false
	return nil
}

func (s *Scheduler) publish(st State, external bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Notification{
		Kind:       event.CycleAdvanced,
		Timestamp:  s.clock.Now(),
		Key:        s.key,
		Mode:       string(st.Mode),
		CycleIndex: st.CycleIndex,
		External:   external,
	})
}
