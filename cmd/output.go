package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fakeyudi/focusgate/internal/cycle"
	"github.com/fakeyudi/focusgate/internal/engine"
	"github.com/fakeyudi/focusgate/internal/report"
	"github.com/fakeyudi/focusgate/internal/timer"
)

// printStatus writes the state of the run in progress, or the headline
// progression numbers when nothing is running.
func printStatus(w io.Writer, e *engine.Engine) error {
	t, mode, err := e.ActiveTimer()
	if errors.Is(err, engine.ErrNoActiveRun) {
		st := e.Ledger.Stats(e.Clock().Now())
		fmt.Fprintln(w, "no active session")
		fmt.Fprintf(w, "Level %d  (%d/%d XP)  streak %d days\n", st.Level, st.CurrentLevelXP, st.XPForNextLevel, st.StreakDays)
		return nil
	}
	if err != nil {
		return err
	}

	st := t.Status()
	switch mode {
	case engine.ModePomodoro:
		c := e.Pomodoro.Snapshot()
		fmt.Fprintf(w, "Mode:      pomodoro (%s, cycle %d/%d)\n", c.Mode.Label(), c.CycleIndex+1, cycle.CyclesPerSet)
		fmt.Fprintf(w, "Completed: %d focus minutes\n", c.CompletedMinutes)
	default:
		strict := ""
		if e.Strict() {
			strict = " (strict)"
		}
		fmt.Fprintf(w, "Mode:      focus%s\n", strict)
	}
	fmt.Fprintf(w, "State:     %s\n", st.Phase)
	fmt.Fprintf(w, "Remaining: %s of %s\n", timer.FormatClock(st.RemainingSeconds), timer.FormatClock(st.InitialSeconds))
	return nil
}

// printOutcome writes what closing a run earned or cost.
func printOutcome(w io.Writer, o engine.Outcome) {
	switch {
	case o.Forfeited:
		fmt.Fprintf(w, "%d minutes not recorded.\n", o.Minutes)
		if o.XPLost > 0 {
			fmt.Fprintf(w, "-%d XP\n", o.XPLost)
		}
		fmt.Fprintln(w, o.Message)
	case o.Result == nil:
		fmt.Fprintln(w, o.Message)
	default:
		r := o.Result
		fmt.Fprintf(w, "Recorded %d minutes (%s). +%d XP\n", o.Minutes, o.Mode, r.XPGained)
		fmt.Fprintln(w, o.Message)
		if r.LeveledUp {
			fmt.Fprintf(w, "%s  Level %d\n", o.LevelUpMessage, r.NewLevel)
		}
		for _, id := range r.NewAchievementIDs {
			fmt.Fprintf(w, "Achievement unlocked: %s\n", achievementName(id))
		}
	}
}

// printReport writes a plain-text rendition of r.
func printReport(w io.Writer, r *report.Report) {
	s := r.Summary
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  Level:        %d (%d/%d XP)\n", s.Level, s.CurrentLevelXP, s.XPForNextLevel)
	fmt.Fprintf(w, "  Total XP:     %d\n", s.XP)
	fmt.Fprintf(w, "  Today:        %s\n", report.FormatMinutes(s.DailyMinutes))
	fmt.Fprintf(w, "  All time:     %s over %d sessions\n", report.FormatMinutes(s.TotalMinutes), s.TotalSessions)
	fmt.Fprintf(w, "  Streak:       %d days\n", s.StreakDays)
	fmt.Fprintf(w, "  Pomodoros:    %d\n", s.PomodorosCompleted)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## This Week")
	for _, d := range r.Weekly {
		fmt.Fprintf(w, "  %s %s  %s\n", d.Label, d.Date, report.FormatMinutes(d.Minutes))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "## Achievements (%d/%d)\n", r.UnlockedCount(), len(r.Achievements))
	printAchievements(w, r.Achievements)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Sessions")
	if len(r.Sessions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ss := range r.Sessions {
		fmt.Fprintf(w, "  [%s] %-8s %s\n", time.UnixMilli(ss.Timestamp).Format("2006-01-02 15:04"), ss.Type, report.FormatMinutes(ss.Minutes))
	}
}

func printAchievements(w io.Writer, entries []report.AchievementEntry) {
	for _, a := range entries {
		mark := " "
		if a.Unlocked {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %-16s %s (%d%%)\n", mark, a.Name, a.Description, int(a.Progress))
	}
}
