// Package achievement holds the static achievement catalog and the pure
// functions that decide which achievements a set of stats unlocks.
package achievement

// Stats is the snapshot achievement conditions are evaluated against.
type Stats struct {
	TotalMinutes       int
	TotalSessions      int
	StreakDays         int
	PomodorosCompleted int
	DailyMinutes       int
}

// Metric selects the Stats field an achievement measures.
type Metric int

const (
	TotalMinutes Metric = iota
	TotalSessions
	StreakDays
	PomodorosCompleted
	DailyMinutes
)

func (m Metric) value(s Stats) int {
	switch m {
	case TotalMinutes:
		return s.TotalMinutes
	case TotalSessions:
		return s.TotalSessions
	case StreakDays:
		return s.StreakDays
	case PomodorosCompleted:
		return s.PomodorosCompleted
	case DailyMinutes:
		return s.DailyMinutes
	}
	return 0
}

// Achievement is one catalog entry. It unlocks once Metric reaches Target.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Metric      Metric
	Target      int
}

// Condition reports whether s satisfies the achievement.
func (a Achievement) Condition(s Stats) bool {
	return a.Metric.value(s) >= a.Target
}

// Progress returns how close s is to unlocking a, as a percentage in
// [0, 100].
func (a Achievement) Progress(s Stats) float64 {
	if a.Target <= 0 {
		return 100
	}
	p := float64(a.Metric.value(s)) / float64(a.Target) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

var catalog = []Achievement{
	{ID: "first_session", Name: "First Session", Description: "completed your first focus session", Metric: TotalSessions, Target: 1},
	{ID: "100_minutes", Name: "100 Minutes", Description: "focused for 100 total minutes", Metric: TotalMinutes, Target: 100},
	{ID: "3_hours_day", Name: "Big Brain Day", Description: "focused for 3 hours in one day", Metric: DailyMinutes, Target: 180},
	{ID: "7_day_streak", Name: "Week Warrior", Description: "maintained a 7-day streak", Metric: StreakDays, Target: 7},
	{ID: "25_pomodoros", Name: "Pomodoro Pro", Description: "completed 25 pomodoro cycles", Metric: PomodorosCompleted, Target: 25},
	{ID: "500_minutes", Name: "Grind Mode", Description: "focused for 500 total minutes", Metric: TotalMinutes, Target: 500},
	{ID: "30_day_streak", Name: "Consistency King", Description: "maintained a 30-day streak", Metric: StreakDays, Target: 30},
	{ID: "1000_minutes", Name: "Locked In", Description: "focused for 1000 total minutes", Metric: TotalMinutes, Target: 1000},
	{ID: "50_sessions", Name: "Session Master", Description: "completed 50 focus sessions", Metric: TotalSessions, Target: 50},
}

// Catalog returns a copy of every achievement in display order.
func Catalog() []Achievement {
	out := make([]Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds an achievement by ID.
func Lookup(id string) (Achievement, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Evaluate returns, in catalog order, the IDs whose condition s satisfies and
// that are not already in unlocked. The result does not depend on the order
// of unlocked.
func Evaluate(s Stats, unlocked []string) []string {
	have := make(map[string]bool, len(unlocked))
	for _, id := range unlocked {
		have[id] = true
	}
	var out []string
	for _, a := range catalog {
		if !have[a.ID] && a.Condition(s) {
			out = append(out, a.ID)
		}
	}
	return out
}

// Merge appends the IDs of fresh missing from unlocked, keeping existing
// entries and their order untouched.
func Merge(unlocked, fresh []string) []string {
	have := make(map[string]bool, len(unlocked))
	out := make([]string, 0, len(unlocked)+len(fresh))
	for _, id := range unlocked {
		if !have[id] {
			have[id] = true
			out = append(out, id)
		}
	}
	for _, id := range fresh {
		if !have[id] {
			have[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Progress returns the percentage towards id, or 0 for an unknown ID.
func Progress(id string, s Stats) float64 {
	a, ok := Lookup(id)
	if !ok {
		return 0
	}
	return a.Progress(s)
}
