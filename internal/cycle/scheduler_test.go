package cycle_test

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/cycle"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/store"
	"github.com/fakeyudi/focusgate/internal/timer"
)

const (
	cycleKey = "pomodoro_state"
	timerKey = "pomodoro_timer_state"
)

var shortDurations = cycle.Durations{Focus: 2, Break: 1, LongBreak: 3}

type fixture struct {
	clock *clock.Manual
	store *store.Memory
	bus   *event.Bus
}

func newFixture() *fixture {
	return &fixture{
		clock: clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		store: store.NewMemory(),
		bus:   event.NewBus(nil),
	}
}

func (f *fixture) scheduler() *cycle.Scheduler {
	tm := timer.New(timer.Options{
		Key:            timerKey,
		DefaultMinutes: shortDurations.Focus,
		Store:          f.store,
		Clock:          f.clock,
		Bus:            f.bus,
	})
	return cycle.New(cycle.Options{
		Key:       cycleKey,
		Timer:     tm,
		Store:     f.store,
		Clock:     f.clock,
		Bus:       f.bus,
		Durations: shortDurations,
	})
}

// runStage lets the current stage run out and delivers the expiry.
func (f *fixture) runStage(t *testing.T, s *cycle.Scheduler) {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.clock.Advance(time.Duration(s.Timer().Remaining()+1) * time.Second)
	s.Timer().Tick()
}

func TestLongBreakAfterFourthFocus(t *testing.T) {
	f := newFixture()
	raw := `{"version":1,"mode":"focus","cycle_index":3,"completed_minutes":6,"durations":{"focus":2,"break":1,"long_break":3}}`
	if err := f.store.Set(cycleKey, raw); err != nil {
		t.Fatal(err)
	}
	s := f.scheduler()

	f.runStage(t, s)
	st := s.Snapshot()
	if st.Mode != cycle.LongBreak {
		t.Fatalf("after fourth focus: mode %s, want %s", st.Mode, cycle.LongBreak)
	}
	if st.CompletedMinutes != 8 {
		t.Errorf("completed minutes: got %d, want 8", st.CompletedMinutes)
	}
	if got := s.Timer().Status().InitialSeconds; got != 180 {
		t.Errorf("long break duration: got %ds, want 180s", got)
	}

	f.runStage(t, s)
	st = s.Snapshot()
	if st.Mode != cycle.Focus || st.CycleIndex != 0 {
		t.Errorf("after long break: %+v, want focus at index 0", st)
	}
}

func TestFullSetPublishesEachStage(t *testing.T) {
	f := newFixture()
	s := f.scheduler()

	var modes []string
	f.bus.Subscribe(event.CycleAdvanced, func(n event.Notification) { modes = append(modes, n.Mode) })

	for i := 0; i < 2*cycle.CyclesPerSet; i++ {
		f.runStage(t, s)
	}

	want := []string{"break", "focus", "break", "focus", "break", "focus", "longBreak", "focus"}
	if len(modes) != len(want) {
		t.Fatalf("stages: got %v, want %v", modes, want)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("stage %d: got %s, want %s (all: %v)", i, modes[i], want[i], modes)
		}
	}
	if st := s.Snapshot(); st.CompletedMinutes != 4*shortDurations.Focus {
		t.Errorf("completed minutes: got %d", st.CompletedMinutes)
	}
}

// Feature: focusgate, Property 7: Cycle index stays within one set
func TestAdvanceKeepsIndexInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		st := cycle.Initial(cycle.DefaultDurations)
		steps := rapid.IntRange(0, 100).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			prev := st
			st = cycle.Advance(st)
			if st.CycleIndex < 0 || st.CycleIndex >= cycle.CyclesPerSet {
				rt.Fatalf("index %d out of range after %d steps", st.CycleIndex, i+1)
			}
			if st.CompletedMinutes < prev.CompletedMinutes {
				rt.Fatalf("completed minutes decreased")
			}
			if prev.Mode != cycle.Focus && st.Mode != cycle.Focus {
				rt.Fatalf("two break stages in a row")
			}
		}
	})
}

func TestEndCountsCompletedAndCurrentFocus(t *testing.T) {
	f := newFixture()
	s := f.scheduler()

	f.runStage(t, s) // focus done: 2 minutes banked
	f.runStage(t, s) // break done, focus index 1

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(70 * time.Second)

	c, err := s.End()
	if err != nil {
		t.Fatal(err)
	}
	if c.Minutes != 3 {
		t.Errorf("minutes: got %d, want 3", c.Minutes)
	}
	if !c.Bonus {
		t.Error("a run past the first focus stage earns the bonus")
	}
	if s.Active() {
		t.Error("run should be closed")
	}
	if _, ok, _ := f.store.Get(cycleKey); ok {
		t.Error("cycle state should be removed")
	}
}

func TestEndDuringBreakIgnoresBreakTime(t *testing.T) {
	f := newFixture()
	s := f.scheduler()

	f.runStage(t, s)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(50 * time.Second)

	c, err := s.End()
	if err != nil {
		t.Fatal(err)
	}
	if c.Minutes != shortDurations.Focus || c.Bonus {
		t.Errorf("got %+v, want %d minutes without bonus", c, shortDurations.Focus)
	}
}

func TestEndWithoutRun(t *testing.T) {
	s := newFixture().scheduler()
	if _, err := s.End(); !errors.Is(err, cycle.ErrNoCycle) {
		t.Errorf("expected ErrNoCycle, got %v", err)
	}
}

func TestRestoreMidCycle(t *testing.T) {
	f := newFixture()
	s := f.scheduler()
	f.runStage(t, s)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(20 * time.Second)

	restored := f.scheduler()
	st := restored.Snapshot()
	if !restored.Active() || st.Mode != cycle.Break {
		t.Fatalf("restored state: active=%v %+v", restored.Active(), st)
	}
	if got := restored.Timer().Remaining(); got != 40 {
		t.Errorf("restored remaining: got %d, want 40", got)
	}
}

func TestMigrateLegacyCycle(t *testing.T) {
	st, err := cycle.Migrate([]byte(`{"mode":"break","cycle":2,"completedMinutes":50}`), cycle.DefaultDurations)
	if err != nil {
		t.Fatal(err)
	}
	if st.Version != cycle.SchemaVersion || st.Mode != cycle.Break || st.CycleIndex != 2 || st.CompletedMinutes != 50 {
		t.Errorf("migrated: %+v", st)
	}
	if st.Durations != cycle.DefaultDurations {
		t.Errorf("durations: %+v", st.Durations)
	}

	for _, raw := range []string{
		`{"version":7,"mode":"focus"}`,
		`{"version":1,"mode":"nap","cycle_index":0}`,
		`{"version":1,"mode":"focus","cycle_index":4}`,
	} {
		if _, err := cycle.Migrate([]byte(raw), cycle.DefaultDurations); err == nil {
			t.Errorf("Migrate(%s): expected error", raw)
		}
	}
}

func TestReloadSeesExternalEnd(t *testing.T) {
	f := newFixture()
	here := f.scheduler()
	if err := here.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Sibling().Remove(cycleKey); err != nil {
		t.Fatal(err)
	}

	here.Reload()
	if here.Active() {
		t.Error("reload should observe that the run was ended elsewhere")
	}
}
