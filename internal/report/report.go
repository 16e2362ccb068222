// Package report renders a progression snapshot as Markdown or JSON and parses
// it back.
package report

import (
	"time"

	"github.com/fakeyudi/focusgate/internal/achievement"
	"github.com/fakeyudi/focusgate/internal/ledger"
)

// Report is the complete, renderable snapshot of a user's progress.
type Report struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	Summary      Summary            `json:"summary"`
	Weekly       []Day              `json:"weekly"`
	Achievements []AchievementEntry `json:"achievements"`
	Sessions     []ledger.Session   `json:"sessions"`
}

// Summary holds the headline numbers.
type Summary struct {
	Level              int `json:"level"`
	XP                 int `json:"xp"`
	CurrentLevelXP     int `json:"current_level_xp"`
	XPForNextLevel     int `json:"xp_for_next_level"`
	TotalMinutes       int `json:"total_minutes"`
	TotalSessions      int `json:"total_sessions"`
	StreakDays         int `json:"streak_days"`
	DailyMinutes       int `json:"daily_minutes"`
	PomodorosCompleted int `json:"pomodoros_completed"`
}

// Day is one entry of the last-seven-days series.
type Day struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
}

// AchievementEntry is a catalog achievement with the user's standing.
type AchievementEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Unlocked    bool    `json:"unlocked"`
	Progress    float64 `json:"progress"`
}

// Build assembles a Report from the ledger as seen at now.
func Build(l *ledger.Ledger, now time.Time) *Report {
	st := l.Stats(now)
	p := l.Snapshot()

	r := &Report{
		GeneratedAt: now.Truncate(time.Second),
		Summary: Summary{
			Level:              st.Level,
			XP:                 st.XP,
			CurrentLevelXP:     st.CurrentLevelXP,
			XPForNextLevel:     st.XPForNextLevel,
			TotalMinutes:       st.TotalMinutes,
			TotalSessions:      st.TotalSessions,
			StreakDays:         st.StreakDays,
			DailyMinutes:       st.DailyMinutes,
			PomodorosCompleted: st.PomodorosCompleted,
		},
		Sessions: p.Sessions,
	}
	for _, d := range st.Weekly {
		r.Weekly = append(r.Weekly, Day{Date: d.Date.Format("2006-01-02"), Label: d.Label, Minutes: d.Minutes})
	}

	unlocked := make(map[string]bool, len(st.Achievements))
	for _, id := range st.Achievements {
		unlocked[id] = true
	}
	as := st.Achievement()
	for _, a := range achievement.Catalog() {
		progress := a.Progress(as)
		if unlocked[a.ID] {
			progress = 100
		}
		r.Achievements = append(r.Achievements, AchievementEntry{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Unlocked:    unlocked[a.ID],
			Progress:    progress,
		})
	}
	return r
}

// UnlockedCount returns how many achievements are unlocked.
func (r *Report) UnlockedCount() int {
	n := 0
	for _, a := range r.Achievements {
		if a.Unlocked {
			n++
		}
	}
	return n
}
