package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fakeyudi/focusgate/internal/achievement"
)

// SchemaVersion is written with every persisted Progress.
const SchemaVersion = 1

// XPPerLevel is the XP span of one level.
const XPPerLevel = 100

// PomodoroBonusXP is added to a session that earned the pomodoro bonus.
const PomodoroBonusXP = 10

// ErrUnsupportedVersion is returned by Migrate for documents written by a
// newer build.
var ErrUnsupportedVersion = errors.New("unsupported progress version")

// SessionType says which timer produced a session.
type SessionType string

const (
	FocusSession    SessionType = "focus"
	PomodoroSession SessionType = "pomodoro"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	return t == FocusSession || t == PomodoroSession
}

// Session is one recorded stretch of focused work.
type Session struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"` // epoch ms
	Minutes   int         `json:"minutes"`
	Type      SessionType `json:"type"`
}

// Progress is the persisted progression record. Level is not stored; it is
// always derived from XP.
type Progress struct {
	Version                      int       `json:"version"`
	TotalMinutes                 int       `json:"total_minutes"`
	XP                           int       `json:"xp"`
	StreakDays                   int       `json:"streak_days"`
	LastSessionTimestamp         *int64    `json:"last_session_timestamp"`
	LastStreakIncrementTimestamp *int64    `json:"last_streak_increment_timestamp"`
	Achievements                 []string  `json:"achievements"`
	Sessions                     []Session `json:"sessions"`
	PomodorosCompleted           int       `json:"pomodoros_completed"`
}

// Default is the progress of a user with no history.
func Default() Progress {
	return Progress{
		Version:      SchemaVersion,
		Achievements: []string{},
		Sessions:     []Session{},
	}
}

// Level derives the level from xp.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// XPForNextLevel is the XP threshold shown for reaching the level after
// level.
func XPForNextLevel(level int) int {
	return level * XPPerLevel
}

// CurrentLevelXP is the XP earned inside the current level.
func CurrentLevelXP(xp int) int {
	return xp - (Level(xp)-1)*XPPerLevel
}

// Level returns the level derived from p.XP.
func (p Progress) Level() int { return Level(p.XP) }

// Clone returns a deep copy of p.
func (p Progress) Clone() Progress {
	out := p
	out.Achievements = append([]string{}, p.Achievements...)
	out.Sessions = append([]Session{}, p.Sessions...)
	if p.LastSessionTimestamp != nil {
		v := *p.LastSessionTimestamp
		out.LastSessionTimestamp = &v
	}
	if p.LastStreakIncrementTimestamp != nil {
		v := *p.LastStreakIncrementTimestamp
		out.LastStreakIncrementTimestamp = &v
	}
	return out
}

// MinutesOn sums the minutes of sessions whose timestamp falls on the
// calendar day of day in loc.
func (p Progress) MinutesOn(day time.Time, loc *time.Location) int {
	y, m, d := day.In(loc).Date()
	total := 0
	for _, s := range p.Sessions {
		sy, sm, sd := time.UnixMilli(s.Timestamp).In(loc).Date()
		if sy == y && sm == m && sd == d {
			total += s.Minutes
		}
	}
	return total
}

// AchievementStats builds the evaluator input for p with the given daily
// minutes.
func (p Progress) AchievementStats(dailyMinutes int) achievement.Stats {
	return achievement.Stats{
		TotalMinutes:       p.TotalMinutes,
		TotalSessions:      len(p.Sessions),
		StreakDays:         p.StreakDays,
		PomodorosCompleted: p.PomodorosCompleted,
		DailyMinutes:       dailyMinutes,
	}
}

// legacyProgress is the unversioned camelCase record. It tracked the streak
// by calendar date string and stored the level alongside the XP.
type legacyProgress struct {
	TotalMinutes       int       `json:"totalMinutes"`
	XP                 int       `json:"xp"`
	Level              int       `json:"level"`
	StreakDays         int       `json:"streakDays"`
	Achievements       []string  `json:"achievements"`
	LastActiveDate     string    `json:"lastActiveDate"`
	Sessions           []Session `json:"sessions"`
	PomodorosCompleted int       `json:"pomodorosCompleted"`
}

// legacyDateLayout matches JavaScript's Date.prototype.toDateString.
const legacyDateLayout = "Mon Jan 02 2006"

// Migrate decodes a persisted progress document of any known version. Legacy
// calendar dates are interpreted in loc.
func Migrate(raw []byte, loc *time.Location) (Progress, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Progress{}, err
	}

	switch probe.Version {
	case 0:
		var old legacyProgress
		if err := json.Unmarshal(raw, &old); err != nil {
			return Progress{}, err
		}
		return normalize(fromLegacy(old, loc)), nil
	case SchemaVersion:
		var p Progress
		if err := json.Unmarshal(raw, &p); err != nil {
			return Progress{}, err
		}
		return normalize(p), nil
	default:
		return Progress{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Version)
	}
}

func fromLegacy(old legacyProgress, loc *time.Location) Progress {
	p := Progress{
		TotalMinutes:       old.TotalMinutes,
		XP:                 old.XP,
		StreakDays:         old.StreakDays,
		Achievements:       old.Achievements,
		Sessions:           old.Sessions,
		PomodorosCompleted: old.PomodorosCompleted,
	}

	var last int64
	for _, s := range old.Sessions {
		if s.Timestamp > last {
			last = s.Timestamp
		}
	}
	if day, err := time.ParseInLocation(legacyDateLayout, old.LastActiveDate, loc); err == nil {
		ms := day.UnixMilli()
		p.LastStreakIncrementTimestamp = &ms
		if last < ms {
			last = ms
		}
	}
	if last > 0 {
		p.LastSessionTimestamp = &last
	}
	return p
}

func normalize(p Progress) Progress {
	p.Version = SchemaVersion
	if p.TotalMinutes < 0 {
		p.TotalMinutes = 0
	}
	if p.XP < 0 {
		p.XP = 0
	}
	if p.StreakDays < 0 {
		p.StreakDays = 0
	}
	if p.PomodorosCompleted < 0 {
		p.PomodorosCompleted = 0
	}
	p.Achievements = achievement.Merge(p.Achievements, nil)
	if p.Sessions == nil {
		p.Sessions = []Session{}
	}
	return p
}
