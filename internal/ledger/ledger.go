// Package ledger keeps the user's progression: total minutes, XP and level,
// the daily streak, unlocked achievements and the session history.
//
// Every mutation writes the whole record to the store before it returns.
// Several processes may share one store; each reloads wholesale when another
// one writes, so the last writer wins.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/focusgate/internal/achievement"
	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
)

// DefaultKey is the store key holding the progress record.
const DefaultKey = "progress"

// StreakWindow is the rolling window that keeps a streak alive.
const StreakWindow = 24 * time.Hour

var (
	// ErrEmptySession is returned when recording a session of zero minutes.
	ErrEmptySession = errors.New("session too short to record")
	// ErrUnknownSessionType is returned for a session type other than focus
	// or pomodoro.
	ErrUnknownSessionType = errors.New("unknown session type")
)

// Result describes the effect of RecordSession.
type Result struct {
	SessionID         string
	XPGained          int
	LeveledUp         bool
	NewLevel          int
	NewAchievementIDs []string
}

// DayTotal is the minutes focused on one calendar day.
type DayTotal struct {
	Date    time.Time
	Label   string
	Minutes int
}

// Stats is the read model shown by the stats views.
type Stats struct {
	DailyMinutes       int
	Weekly             []DayTotal
	TotalMinutes       int
	TotalSessions      int
	StreakDays         int
	Level              int
	XP                 int
	CurrentLevelXP     int
	XPForNextLevel     int
	PomodorosCompleted int
	Achievements       []string
}

// Achievement returns the evaluator input matching s.
func (s Stats) Achievement() achievement.Stats {
	return achievement.Stats{
		TotalMinutes:       s.TotalMinutes,
		TotalSessions:      s.TotalSessions,
		StreakDays:         s.StreakDays,
		PomodorosCompleted: s.PomodorosCompleted,
		DailyMinutes:       s.DailyMinutes,
	}
}

// Options configures New. Store is required.
type Options struct {
	Key    string
	Store  store.Store
	Clock  clock.Clock
	Bus    *event.Bus
	Logger *logging.Logger
	// Location decides calendar days for daily and weekly totals. Defaults to
	// time.Local.
	Location *time.Location
}

// Ledger is the in-process copy of the progress record.
type Ledger struct {
	key   string
	store store.Store
	clock clock.Clock
	bus   *event.Bus
	log   *logging.Logger
	loc   *time.Location

	mu sync.Mutex
	p  Progress
}

// New loads the progress record, starting from Default when it is absent or
// unreadable.
func New(opts Options) *Ledger {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	l := &Ledger{
		key:   opts.Key,
		store: opts.Store,
		clock: opts.Clock,
		bus:   opts.Bus,
		log:   opts.Logger.WithComponent("ledger"),
		loc:   opts.Location,
	}
	l.p = l.load()
	return l
}

func (l *Ledger) load() Progress {
	raw, ok, err := l.store.Get(l.key)
	if err != nil {
		l.log.Warn("failed to read progress, starting fresh", "error", err.Error())
		return Default()
	}
	if !ok {
		return Default()
	}
	p, err := Migrate([]byte(raw), l.loc)
	if err != nil {
		l.log.Warn("discarding unreadable progress", "error", err.Error())
		return Default()
	}
	return p
}

// NextStreak applies the rolling streak rules for a session at now and
// returns the new streak with the instant it last grew.
func NextStreak(p Progress, now time.Time) (int, *int64) {
	nowMs := clock.Millis(now)
	reset := func() (int, *int64) { return 1, &nowMs }

	if p.StreakDays <= 0 || p.LastSessionTimestamp == nil {
		return reset()
	}
	if now.Sub(clock.FromMillis(*p.LastSessionTimestamp)) > StreakWindow {
		return reset()
	}
	if p.LastStreakIncrementTimestamp == nil {
		return p.StreakDays + 1, &nowMs
	}
	if now.Sub(clock.FromMillis(*p.LastStreakIncrementTimestamp)) >= StreakWindow {
		return p.StreakDays + 1, &nowMs
	}
	return p.StreakDays, p.LastStreakIncrementTimestamp
}

// RecordSession credits minutes of focused work. The pomodoro bonus adds
// PomodoroBonusXP and counts a completed pomodoro.
func (l *Ledger) RecordSession(minutes int, typ SessionType, bonus bool) (Result, error) {
	if minutes <= 0 {
		return Result{}, ErrEmptySession
	}
	if !typ.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSessionType, typ)
	}

	l.mu.Lock()
	now := l.clock.Now()
	prev := l.p
	next := prev.Clone()

	xp := minutes
	if bonus {
		xp += PomodoroBonusXP
		next.PomodorosCompleted++
	}
	next.XP += xp
	next.TotalMinutes += minutes

	nowMs := clock.Millis(now)
	next.StreakDays, next.LastStreakIncrementTimestamp = NextStreak(prev, now)
	next.LastSessionTimestamp = &nowMs

	session := Session{ID: uuid.NewString(), Timestamp: nowMs, Minutes: minutes, Type: typ}
	next.Sessions = append(next.Sessions, session)

	fresh := achievement.Evaluate(next.AchievementStats(next.MinutesOn(now, l.loc)), next.Achievements)
	next.Achievements = achievement.Merge(next.Achievements, fresh)

	if err := l.saveLocked(next); err != nil {
		l.mu.Unlock()
		return Result{}, err
	}
	l.mu.Unlock()

	res := Result{
		SessionID:         session.ID,
		XPGained:          xp,
		LeveledUp:         next.Level() > prev.Level(),
		NewLevel:          next.Level(),
		NewAchievementIDs: fresh,
	}
	l.log.WithSession(session.ID).Info("session recorded",
		"type", string(typ),
		"minutes", minutes,
		"xp_gained", xp,
		"level", res.NewLevel,
	)
	l.publish(false)
	return res, nil
}

// PenalizeIncomplete removes up to minutes XP for a run abandoned early in
// strict mode. No session is recorded and the streak is untouched. It returns
// the XP actually lost.
func (l *Ledger) PenalizeIncomplete(minutes int) (int, error) {
	if minutes < 0 {
		minutes = 0
	}

	l.mu.Lock()
	next := l.p.Clone()
	lost := minutes
	if lost > next.XP {
		lost = next.XP
	}
	next.XP -= lost
	if err := l.saveLocked(next); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	l.mu.Unlock()

	l.log.Info("incomplete run penalized", "minutes", minutes, "xp_lost", lost)
	l.publish(false)
	return lost, nil
}

// Snapshot returns a copy of the current record.
func (l *Ledger) Snapshot() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Clone()
}

// Stats summarises the record as seen at now. A streak whose last session is
// older than StreakWindow is reported as lapsed.
func (l *Ledger) Stats(now time.Time) Stats {
	l.mu.Lock()
	p := l.p.Clone()
	l.mu.Unlock()

	streak := p.StreakDays
	if p.LastSessionTimestamp == nil || now.Sub(clock.FromMillis(*p.LastSessionTimestamp)) > StreakWindow {
		streak = 0
	}

	weekly := make([]DayTotal, 7)
	local := now.In(l.loc)
	for i := range weekly {
		day := local.AddDate(0, 0, i-6)
		y, m, d := day.Date()
		weekly[i] = DayTotal{
			Date:    time.Date(y, m, d, 0, 0, 0, 0, l.loc),
			Label:   day.Format("Mon"),
			Minutes: p.MinutesOn(day, l.loc),
		}
	}

	return Stats{
		DailyMinutes:       p.MinutesOn(now, l.loc),
		Weekly:             weekly,
		TotalMinutes:       p.TotalMinutes,
		TotalSessions:      len(p.Sessions),
		StreakDays:         streak,
		Level:              p.Level(),
		XP:                 p.XP,
		CurrentLevelXP:     CurrentLevelXP(p.XP),
		XPForNextLevel:     XPForNextLevel(p.Level()),
		PomodorosCompleted: p.PomodorosCompleted,
		Achievements:       p.Achievements,
	}
}

// Reload replaces the in-memory record with the persisted one.
func (l *Ledger) Reload() {
	l.mu.Lock()
	l.p = l.load()
	l.mu.Unlock()
	l.publish(true)
}

func (l *Ledger) saveLocked(next Progress) error {
	next.Version = SchemaVersion
	if err := store.SaveJSON(l.store, l.key, next); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	l.p = next
	return nil
}

func (l *Ledger) publish(external bool) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(event.Notification{
		Kind:      event.ProgressionChanged,
		Timestamp: l.clock.Now(),
		Key:       l.key,
		External:  external,
	})
}
