// Package engine wires the clock, store, notification bus, progression ledger
// and both timers into the single context object a process works with.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/config"
	"github.com/fakeyudi/focusgate/internal/cycle"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/ledger"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
	"github.com/fakeyudi/focusgate/internal/timer"
)

// Store keys.
const (
	FocusTimerKey    = "focus_timer_state"
	FocusRunKey      = "focus_run"
	PomodoroTimerKey = "pomodoro_timer_state"
	PomodoroKey      = "pomodoro_state"
	ProgressKey      = ledger.DefaultKey
)

var (
	// ErrNoActiveRun is returned when there is nothing to pause, resume or end.
	ErrNoActiveRun = errors.New("no focus session or pomodoro in progress")
	// ErrRunInProgress is returned when starting while another run is active.
	ErrRunInProgress = errors.New("a session is already in progress")
)

// Mode identifies which timer a run uses.
type Mode string

const (
	ModeNone     Mode = ""
	ModeFocus    Mode = "focus"
	ModePomodoro Mode = "pomodoro"
)

// Options configures New. Store is required.
type Options struct {
	Config config.Config
	Store  store.Store
	Clock  clock.Clock
	Logger *logging.Logger
	// Scheduler drives both timers' refresh. Nil means the caller calls
	// Refresh.
	Scheduler timer.Scheduler
	// Intn picks message indexes. Defaults to math/rand.
	Intn func(n int) int
}

// Engine is the per-process context. Build one with New and pass it to
// whatever needs the timers or the ledger.
type Engine struct {
	cfg   config.Config
	store store.Store
	clock clock.Clock
	bus   *event.Bus
	log   *logging.Logger
	intn  func(int) int

	Ledger   *ledger.Ledger
	Focus    *timer.Timer
	Pomodoro *cycle.Scheduler

	unsub func()
}

// New restores all state from opts.Store and subscribes to changes written
// by other processes.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Intn == nil {
		opts.Intn = rand.Intn
	}

	log := opts.Logger
	bus := event.NewBus(func(kind event.Kind, recovered any, stack []byte) {
		log.Error("notification handler panicked",
			"kind", string(kind),
			"panic", fmt.Sprint(recovered),
			"stack", string(stack),
		)
	})

	tc := opts.Config.Timer
	e := &Engine{
		cfg:   opts.Config,
		store: opts.Store,
		clock: opts.Clock,
		bus:   bus,
		log:   log.WithComponent("engine"),
		intn:  opts.Intn,
	}
	e.Ledger = ledger.New(ledger.Options{
		Store:  opts.Store,
		Clock:  opts.Clock,
		Bus:    bus,
		Logger: log,
	})
	e.Focus = timer.New(timer.Options{
		Key:             FocusTimerKey,
		DefaultMinutes:  tc.FocusMinutes,
		Store:           opts.Store,
		Clock:           opts.Clock,
		Bus:             bus,
		Scheduler:       opts.Scheduler,
		RefreshInterval: tc.RefreshInterval,
		Logger:          log,
	})
	pomodoroTimer := timer.New(timer.Options{
		Key:             PomodoroTimerKey,
		DefaultMinutes:  tc.FocusMinutes,
		Store:           opts.Store,
		Clock:           opts.Clock,
		Bus:             bus,
		Scheduler:       opts.Scheduler,
		RefreshInterval: tc.RefreshInterval,
		Logger:          log,
	})
	e.Pomodoro = cycle.New(cycle.Options{
		Key:   PomodoroKey,
		Timer: pomodoroTimer,
		Store: opts.Store,
		Clock: opts.Clock,
		Bus:   bus,
		Durations: cycle.Durations{
			Focus:     tc.FocusMinutes,
			Break:     tc.BreakMinutes,
			LongBreak: tc.LongBreakMinutes,
		},
		Logger: log,
	})
	e.unsub = opts.Store.Subscribe(e.handleChange)
	return e
}

// Bus returns the notification bus shared by every component.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Clock returns the engine's time source.
func (e *Engine) Clock() clock.Clock { return e.clock }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// handleChange reloads whichever component owns the changed key. Another
// process wrote it, so the whole object is replaced.
func (e *Engine) handleChange(c store.Change) {
	e.log.Debug("external change", "key", c.Key, "removed", c.Removed)
	switch c.Key {
	case ProgressKey:
		e.Ledger.Reload()
	case FocusTimerKey:
		e.Focus.Reload()
	case PomodoroTimerKey:
		e.Pomodoro.Timer().Reload()
	case PomodoroKey:
		e.Pomodoro.Reload()
	}
}

// Watch delivers changes from other processes until ctx is done. Stores
// without a watcher only notify in-process siblings, so Watch just waits.
func (e *Engine) Watch(ctx context.Context) error {
	w, ok := e.store.(store.Watcher)
	if !ok {
		<-ctx.Done()
		return nil
	}
	return w.Watch(ctx)
}

// Refresh runs one refresh of both timers. It detects expiry, which also
// advances a pomodoro run.
func (e *Engine) Refresh() {
	e.Focus.Tick()
	e.Pomodoro.Timer().Tick()
}

// Close cancels timer refreshes and stops listening to the store.
func (e *Engine) Close() {
	if e.unsub != nil {
		e.unsub()
	}
	e.Focus.Close()
	e.Pomodoro.Timer().Close()
	e.Pomodoro.Close()
}

// ActiveMode reports which kind of run is in progress, if any.
func (e *Engine) ActiveMode() Mode {
	if e.Pomodoro.Active() {
		return ModePomodoro
	}
	_, ok, err := e.store.Get(FocusTimerKey)
	if err != nil {
		// Assume a run exists so start cannot overwrite one we failed to read.
		e.log.Warn("failed to read focus timer state", "error", err.Error())
		return ModeFocus
	}
	if ok {
		return ModeFocus
	}
	return ModeNone
}

// ActiveTimer returns the timer of the run in progress.
func (e *Engine) ActiveTimer() (*timer.Timer, Mode, error) {
	switch mode := e.ActiveMode(); mode {
	case ModeFocus:
		return e.Focus, mode, nil
	case ModePomodoro:
		return e.Pomodoro.Timer(), mode, nil
	default:
		return nil, ModeNone, ErrNoActiveRun
	}
}

// focusRun is persisted beside the focus timer for the options of a run.
type focusRun struct {
	Version int  `json:"version"`
	Strict  bool `json:"strict"`
}

// StartFocus configures a focus run of minutes (the configured default when
// zero) and starts it.
func (e *Engine) StartFocus(minutes int, strict bool) error {
	if e.ActiveMode() != ModeNone {
		return ErrRunInProgress
	}
	if minutes <= 0 {
		minutes = e.cfg.Timer.FocusMinutes
	}
	if err := e.Focus.Reset(minutes); err != nil {
		return err
	}
	if err := store.SaveJSON(e.store, FocusRunKey, focusRun{Version: 1, Strict: strict}); err != nil {
		return fmt.Errorf("failed to save run options: %w", err)
	}
	if err := e.Focus.Start(); err != nil {
		return err
	}
	e.log.Info("focus session started", "minutes", minutes, "strict", strict)
	return nil
}

// StartPomodoro begins a pomodoro run.
func (e *Engine) StartPomodoro() error {
	if e.ActiveMode() != ModeNone {
		return ErrRunInProgress
	}
	return e.Pomodoro.Start()
}

// Pause pauses the run in progress.
func (e *Engine) Pause() error {
	t, _, err := e.ActiveTimer()
	if err != nil {
		return err
	}
	return t.Pause()
}

// Resume continues the run in progress, including the next pomodoro stage.
func (e *Engine) Resume() error {
	switch e.ActiveMode() {
	case ModeFocus:
		return e.Focus.Start()
	case ModePomodoro:
		return e.Pomodoro.Start()
	default:
		return ErrNoActiveRun
	}
}

// Strict reports whether the focus run in progress forfeits its minutes when
// ended early.
func (e *Engine) Strict() bool {
	var run focusRun
	found, err := store.LoadJSON(e.store, FocusRunKey, &run)
	if err != nil {
		e.log.Warn("ignoring unreadable run options", "error", err.Error())
		return e.cfg.Timer.Strict
	}
	if !found {
		return e.cfg.Timer.Strict
	}
	return run.Strict
}

// Outcome describes how a run was closed out.
type Outcome struct {
	Mode    Mode
	Minutes int
	// Result is set when a session was recorded.
	Result *ledger.Result
	// Forfeited is set when a strict run was ended early; XPLost says how
	// much XP it cost.
	Forfeited bool
	XPLost    int
	Message   string
	// LevelUpMessage is set when the session raised the level.
	LevelUpMessage string
}

// End closes out the run in progress and credits it to the ledger.
func (e *Engine) End() (Outcome, error) {
	switch e.ActiveMode() {
	case ModeFocus:
		return e.EndFocus()
	case ModePomodoro:
		return e.EndPomodoro()
	default:
		return Outcome{}, ErrNoActiveRun
	}
}

// EndFocus ends the focus run. Whole elapsed minutes are recorded as a focus
// session; a strict run ended before expiry records nothing.
func (e *Engine) EndFocus() (Outcome, error) {
	e.Focus.Tick()
	strict := e.Strict()
	expired := e.Focus.Status().Phase == timer.Expired

	minutes, err := e.Focus.End()
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.Remove(FocusRunKey); err != nil {
		e.log.Warn("failed to clear run options", "error", err.Error())
	}

	out := Outcome{Mode: ModeFocus, Minutes: minutes}
	if strict && !expired {
		// XP is granted only when a run is credited, so the run itself holds
		// none to take back; earlier sessions keep theirs.
		lost, err := e.Ledger.PenalizeIncomplete(0)
		if err != nil {
			return out, err
		}
		out.Forfeited = true
		out.XPLost = lost
		out.Message = ForfeitMessage
		return out, nil
	}
	return e.credit(out, ledger.FocusSession, false)
}

// EndPomodoro closes the pomodoro run and records its focus minutes.
func (e *Engine) EndPomodoro() (Outcome, error) {
	e.Pomodoro.Timer().Tick()
	c, err := e.Pomodoro.End()
	if err != nil {
		if errors.Is(err, cycle.ErrNoCycle) {
			return Outcome{}, ErrNoActiveRun
		}
		return Outcome{}, err
	}
	return e.credit(Outcome{Mode: ModePomodoro, Minutes: c.Minutes}, ledger.PomodoroSession, c.Bonus)
}

func (e *Engine) credit(out Outcome, typ ledger.SessionType, bonus bool) (Outcome, error) {
	res, err := e.Ledger.RecordSession(out.Minutes, typ, bonus)
	if errors.Is(err, ledger.ErrEmptySession) {
		out.Message = TooShortMessage
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Result = &res
	out.Message = e.Pick(SessionCompleteMessages)
	if res.LeveledUp {
		out.LevelUpMessage = e.Pick(LevelUpMessages)
	}
	return out, nil
}

// Abandon discards the run in progress without crediting it.
func (e *Engine) Abandon() error {
	switch e.ActiveMode() {
	case ModeFocus:
		if err := e.Focus.Abandon(); err != nil {
			return err
		}
		return e.store.Remove(FocusRunKey)
	case ModePomodoro:
		return e.Pomodoro.Abandon()
	default:
		return ErrNoActiveRun
	}
}
