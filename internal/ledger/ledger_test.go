package ledger_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/ledger"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
)

var epoch = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock *clock.Manual
	store *store.Memory
	bus   *event.Bus
}

func newFixture() *fixture {
	return &fixture{
		clock: clock.NewManual(epoch),
		store: store.NewMemory(),
		bus:   event.NewBus(nil),
	}
}

func (f *fixture) ledger() *ledger.Ledger {
	return ledger.New(ledger.Options{
		Store:    f.store,
		Clock:    f.clock,
		Bus:      f.bus,
		Location: time.UTC,
	})
}

func (f *fixture) seed(t *testing.T, raw string) {
	t.Helper()
	if err := f.store.Set(ledger.DefaultKey, raw); err != nil {
		t.Fatal(err)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestScenarioFirstSession(t *testing.T) {
	f := newFixture()
	l := f.ledger()

	res, err := l.RecordSession(25, ledger.FocusSession, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.XPGained != 25 || res.LeveledUp || res.NewLevel != 1 {
		t.Errorf("result: %+v", res)
	}
	p := l.Snapshot()
	if p.XP != 25 || p.StreakDays != 1 {
		t.Errorf("progress: xp=%d streak=%d", p.XP, p.StreakDays)
	}
	if !contains(p.Achievements, "first_session") {
		t.Errorf("achievements %v missing first_session", p.Achievements)
	}
	if len(p.Sessions) != 1 || p.Sessions[0].ID == "" || p.Sessions[0].Type != ledger.FocusSession {
		t.Errorf("sessions: %+v", p.Sessions)
	}
}

func TestScenarioLevelUp(t *testing.T) {
	f := newFixture()
	f.seed(t, `{"version":1,"xp":90,"total_minutes":90,"achievements":[],"sessions":[]}`)
	l := f.ledger()

	res, err := l.RecordSession(15, ledger.FocusSession, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.LeveledUp || res.NewLevel != 2 {
		t.Errorf("result: %+v", res)
	}
	if p := l.Snapshot(); p.XP != 105 || p.Level() != 2 {
		t.Errorf("xp=%d level=%d", p.XP, p.Level())
	}
}

func TestRecordedSessionIsLoggedWithID(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	l := ledger.New(ledger.Options{
		Store:    f.store,
		Clock:    f.clock,
		Bus:      f.bus,
		Location: time.UTC,
		Logger:   logging.NewWriterLogger(&buf, "info"),
	})

	res, err := l.RecordSession(15, ledger.FocusSession, false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"session_id":"`+res.SessionID+`"`) {
		t.Errorf("log should carry the session id %s:\n%s", res.SessionID, buf.String())
	}
}

func TestPomodoroBonus(t *testing.T) {
	l := newFixture().ledger()
	res, err := l.RecordSession(50, ledger.PomodoroSession, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.XPGained != 60 {
		t.Errorf("XPGained: got %d, want 60", res.XPGained)
	}
	if p := l.Snapshot(); p.PomodorosCompleted != 1 || p.TotalMinutes != 50 {
		t.Errorf("progress: %+v", p)
	}
}

func TestRejectedInput(t *testing.T) {
	f := newFixture()
	l := f.ledger()

	if _, err := l.RecordSession(0, ledger.FocusSession, true); !errors.Is(err, ledger.ErrEmptySession) {
		t.Errorf("zero minutes: got %v", err)
	}
	if _, err := l.RecordSession(-5, ledger.FocusSession, false); !errors.Is(err, ledger.ErrEmptySession) {
		t.Errorf("negative minutes: got %v", err)
	}
	if _, err := l.RecordSession(5, "nap", false); !errors.Is(err, ledger.ErrUnknownSessionType) {
		t.Errorf("unknown type: got %v", err)
	}
	if _, ok, _ := f.store.Get(ledger.DefaultKey); ok {
		t.Error("rejected input must not write")
	}
}

func TestStreakRules(t *testing.T) {
	f := newFixture()
	l := f.ledger()
	record := func() {
		t.Helper()
		if _, err := l.RecordSession(10, ledger.FocusSession, false); err != nil {
			t.Fatal(err)
		}
	}

	record()
	f.clock.Advance(5 * time.Minute)
	record()
	if got := l.Snapshot().StreakDays; got != 1 {
		t.Fatalf("5 minutes later: streak %d, want 1", got)
	}

	f.clock.Advance(23*time.Hour + 55*time.Minute)
	record()
	if got := l.Snapshot().StreakDays; got != 2 {
		t.Fatalf("24h after the first increment: streak %d, want 2", got)
	}

	f.clock.Advance(25 * time.Hour)
	if got := l.Stats(f.clock.Now()).StreakDays; got != 0 {
		t.Errorf("stats should report a lapsed streak, got %d", got)
	}
	record()
	if got := l.Snapshot().StreakDays; got != 1 {
		t.Errorf("after a 25h gap: streak %d, want 1", got)
	}
}

// Feature: focusgate, Property 4: Streak never changes by more than one
func TestStreakStepsByAtMostOne(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture()
		l := f.ledger()
		gaps := rapid.SliceOfN(rapid.Int64Range(0, 60*60), 1, 30).Draw(rt, "gaps_minutes")

		prev := 0
		for _, gap := range gaps {
			f.clock.Advance(time.Duration(gap) * time.Minute)
			if _, err := l.RecordSession(1, ledger.FocusSession, false); err != nil {
				rt.Fatal(err)
			}
			got := l.Snapshot().StreakDays
			if got != 1 && got != prev && got != prev+1 {
				rt.Fatalf("streak jumped from %d to %d", prev, got)
			}
			if time.Duration(gap)*time.Minute > ledger.StreakWindow && got != 1 {
				rt.Fatalf("gap of %d minutes should reset the streak, got %d", gap, got)
			}
			prev = got
		}
	})
}

// Feature: focusgate, Property 8: Level always follows from XP
func TestLevelDerivedAfterPenalty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := newFixture().ledger()
		for _, m := range rapid.SliceOfN(rapid.IntRange(1, 150), 1, 10).Draw(rt, "sessions") {
			if _, err := l.RecordSession(m, ledger.FocusSession, false); err != nil {
				rt.Fatal(err)
			}
		}
		if _, err := l.PenalizeIncomplete(rapid.IntRange(-10, 2000).Draw(rt, "penalty")); err != nil {
			rt.Fatal(err)
		}
		res, err := l.RecordSession(rapid.IntRange(1, 150).Draw(rt, "after"), ledger.FocusSession, false)
		if err != nil {
			rt.Fatal(err)
		}

		p := l.Snapshot()
		if p.XP < 0 {
			rt.Fatalf("negative xp %d", p.XP)
		}
		if want := p.XP/100 + 1; res.NewLevel != want || p.Level() != want {
			rt.Fatalf("level %d / %d, want %d for xp %d", res.NewLevel, p.Level(), want, p.XP)
		}
	})
}

func TestPenalizeFloorsAtZero(t *testing.T) {
	f := newFixture()
	f.seed(t, `{"version":1,"xp":30,"streak_days":4,"achievements":[],"sessions":[]}`)
	l := f.ledger()

	lost, err := l.PenalizeIncomplete(45)
	if err != nil {
		t.Fatal(err)
	}
	p := l.Snapshot()
	if lost != 30 || p.XP != 0 {
		t.Errorf("lost=%d xp=%d", lost, p.XP)
	}
	if p.StreakDays != 4 || len(p.Sessions) != 0 {
		t.Errorf("penalty must not touch streak or sessions: %+v", p)
	}
}

// Feature: focusgate, Property 9: Unlocked achievements are permanent
func TestAchievementsPermanent(t *testing.T) {
	f := newFixture()
	l := f.ledger()
	if _, err := l.RecordSession(120, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}
	before := l.Snapshot().Achievements
	if !contains(before, "100_minutes") {
		t.Fatalf("expected 100_minutes, got %v", before)
	}

	if _, err := l.PenalizeIncomplete(500); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(72 * time.Hour)
	if _, err := l.RecordSession(1, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}

	after := l.Snapshot().Achievements
	for i, id := range before {
		if after[i] != id {
			t.Fatalf("achievement list changed: %v -> %v", before, after)
		}
	}
}

func TestDailyAchievementUsesCalendarDay(t *testing.T) {
	f := newFixture()
	l := f.ledger()
	if _, err := l.RecordSession(100, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(20 * time.Hour) // next day, 05:00
	res, err := l.RecordSession(100, ledger.FocusSession, false)
	if err != nil {
		t.Fatal(err)
	}
	if contains(res.NewAchievementIDs, "3_hours_day") {
		t.Error("minutes from yesterday must not count toward today")
	}

	res, err = l.RecordSession(80, ledger.FocusSession, false)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(res.NewAchievementIDs, "3_hours_day") {
		t.Errorf("180 minutes today should unlock 3_hours_day, got %v", res.NewAchievementIDs)
	}
}

func TestStatsWeekly(t *testing.T) {
	f := newFixture()
	l := f.ledger()
	if _, err := l.RecordSession(30, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(48 * time.Hour)
	if _, err := l.RecordSession(20, ledger.PomodoroSession, true); err != nil {
		t.Fatal(err)
	}

	s := l.Stats(f.clock.Now())
	if len(s.Weekly) != 7 {
		t.Fatalf("weekly entries: %d", len(s.Weekly))
	}
	if s.Weekly[6].Minutes != 20 || s.Weekly[4].Minutes != 30 || s.Weekly[5].Minutes != 0 {
		t.Errorf("weekly: %+v", s.Weekly)
	}
	if s.Weekly[6].Label != f.clock.Now().Format("Mon") {
		t.Errorf("today label: %s", s.Weekly[6].Label)
	}
	if s.DailyMinutes != 20 || s.TotalMinutes != 50 || s.TotalSessions != 2 {
		t.Errorf("totals: %+v", s)
	}
	if s.XP != 60 || s.CurrentLevelXP != 60 || s.XPForNextLevel != 100 {
		t.Errorf("xp fields: %+v", s)
	}
}

func TestCorruptProgressStartsFresh(t *testing.T) {
	f := newFixture()
	f.seed(t, "not json at all")
	l := f.ledger()
	if p := l.Snapshot(); p.XP != 0 || len(p.Sessions) != 0 {
		t.Errorf("expected default progress, got %+v", p)
	}
}

func TestMigrateLegacyProgress(t *testing.T) {
	raw := `{"totalMinutes":240,"xp":260,"level":9,"streakDays":3,
		"achievements":["first_session","100_minutes","first_session"],
		"lastActiveDate":"Sun Mar 02 2025",
		"sessions":[{"id":"1740800000000","timestamp":1740800000000,"minutes":240,"type":"focus"}],
		"pomodorosCompleted":2}`

	p, err := ledger.Migrate([]byte(raw), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != ledger.SchemaVersion || p.XP != 260 || p.Level() != 3 {
		t.Errorf("xp/level: %+v level=%d", p, p.Level())
	}
	if len(p.Achievements) != 2 {
		t.Errorf("achievements should be deduplicated: %v", p.Achievements)
	}
	wantDay := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	if p.LastStreakIncrementTimestamp == nil || *p.LastStreakIncrementTimestamp != wantDay {
		t.Errorf("streak increment: %v", p.LastStreakIncrementTimestamp)
	}
	if p.LastSessionTimestamp == nil || *p.LastSessionTimestamp != wantDay {
		t.Errorf("last session should be the later of the date and the newest session: %v", p.LastSessionTimestamp)
	}

	if _, err := ledger.Migrate([]byte(`{"version":3}`), time.UTC); !errors.Is(err, ledger.ErrUnsupportedVersion) {
		t.Errorf("future version: got %v", err)
	}
}

func TestReloadPicksUpOtherWriter(t *testing.T) {
	f := newFixture()
	here := f.ledger()
	other := ledger.New(ledger.Options{Store: f.store.Sibling(), Clock: f.clock, Location: time.UTC})

	if _, err := other.RecordSession(40, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}

	var got []event.Notification
	f.bus.Subscribe(event.ProgressionChanged, func(n event.Notification) { got = append(got, n) })
	here.Reload()

	if p := here.Snapshot(); p.XP != 40 {
		t.Errorf("reloaded xp: %d", p.XP)
	}
	if len(got) != 1 || !got[0].External {
		t.Errorf("notifications: %+v", got)
	}
}

func TestRecordPublishesAfterPersisting(t *testing.T) {
	f := newFixture()
	l := f.ledger()

	var persisted bool
	f.bus.Subscribe(event.ProgressionChanged, func(event.Notification) {
		_, persisted, _ = f.store.Get(ledger.DefaultKey)
	})
	if _, err := l.RecordSession(5, ledger.FocusSession, false); err != nil {
		t.Fatal(err)
	}
	if !persisted {
		t.Error("ProgressionChanged must be published after the write")
	}
}
