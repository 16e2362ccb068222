package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/focusgate/internal/cycle"
	"github.com/fakeyudi/focusgate/internal/engine"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/timer"
)

// midMessageEvery is how often the encouragement line rotates.
const midMessageEvery = 5 * time.Minute

type tickMsg time.Time

type notifyMsg event.Notification

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// TimerModel is the live countdown screen. Every tick it refreshes the
// engine, so expiry and stage transitions happen while it is open.
type TimerModel struct {
	eng      *engine.Engine
	interval time.Duration
	bar      progress.Model
	width    int

	midMessage string
	midAt      time.Time

	// confirmEnd is set while a strict-mode warning waits for y/n.
	confirmEnd bool
	warning    string

	outcome *engine.Outcome
	notice  string
	err     error
}

// NewTimer creates the timer screen for e, refreshing every interval.
func NewTimer(e *engine.Engine, interval time.Duration) TimerModel {
	if interval <= 0 {
		interval = time.Second
	}
	return TimerModel{
		eng:      e,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:    60,
	}
}

func (m TimerModel) Init() tea.Cmd { return tickCmd(m.interval) }

func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(min(msg.Width-8, 60), 10)
		return m, nil

	case tickMsg:
		m.eng.Refresh()
		m.rotateMessage()
		return m, tickCmd(m.interval)

	case notifyMsg:
		switch msg.Kind {
		case event.TimerExpired:
			m.notice = "time's up"
		case event.CycleAdvanced:
			m.notice = "next up: " + cycle.Mode(msg.Mode).Label() + " (space to start)"
		case event.TimerChanged:
			if msg.External {
				m.notice = "updated from another window"
			}
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m TimerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.confirmEnd {
		switch key {
		case "y", "Y":
			m.confirmEnd = false
			m.end()
		case "ctrl+c":
			return m, tea.Quit
		default:
			m.confirmEnd = false
			m.warning = ""
		}
		return m, nil
	}

	m.err = nil
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ":
		t, _, err := m.eng.ActiveTimer()
		if err != nil {
			m.err = err
			break
		}
		if t.Status().Phase == timer.Running {
			m.err = m.eng.Pause()
		} else {
			m.err = m.eng.Resume()
		}
	case "e":
		if m.eng.ActiveMode() == engine.ModeFocus && m.eng.Strict() && m.eng.Focus.Status().Phase != timer.Expired {
			m.confirmEnd = true
			m.warning = m.eng.Pick(engine.PrematureExitWarnings)
			return m, nil
		}
		m.end()
	case "a":
		if m.err = m.eng.Abandon(); m.err == nil {
			m.notice = "session discarded"
		}
	case "f":
		m.start(func() error { return m.eng.StartFocus(0, m.eng.Config().Timer.Strict) })
	case "s":
		m.start(func() error { return m.eng.StartFocus(0, true) })
	case "p":
		m.start(m.eng.StartPomodoro)
	}
	return m, nil
}

func (m *TimerModel) start(fn func() error) {
	if m.err = fn(); m.err != nil {
		return
	}
	m.outcome = nil
	m.notice = ""
	m.midMessage = m.eng.Pick(engine.MidSessionMessages)
	m.midAt = m.eng.Clock().Now()
}

func (m *TimerModel) end() {
	out, err := m.eng.End()
	if err != nil {
		m.err = err
		return
	}
	m.outcome = &out
	m.notice = ""
	m.warning = ""
}

func (m *TimerModel) rotateMessage() {
	now := m.eng.Clock().Now()
	if m.midMessage == "" || now.Sub(m.midAt) >= midMessageEvery {
		m.midMessage = m.eng.Pick(engine.MidSessionMessages)
		m.midAt = now
	}
}

func (m TimerModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Width(m.width).Render("  focusgate") + "\n\n")

	t, mode, err := m.eng.ActiveTimer()
	switch {
	case errors.Is(err, engine.ErrNoActiveRun):
		sb.WriteString(m.idleView())
	default:
		sb.WriteString(m.runView(t, mode))
	}

	if m.notice != "" {
		sb.WriteString("\n  " + timeStyle.Render(m.notice) + "\n")
	}
	if m.err != nil {
		sb.WriteString("\n  " + warnStyle.Render("error: "+m.err.Error()) + "\n")
	}
	sb.WriteString("\n" + statusBarStyle.Width(m.width).Render(m.hint(mode)))
	return sb.String()
}

func (m TimerModel) idleView() string {
	var sb strings.Builder
	if o := m.outcome; o != nil {
		sb.WriteString(outcomeText(o))
		sb.WriteString("\n")
	}
	st := m.eng.Ledger.Stats(m.eng.Clock().Now())
	sb.WriteString(fmt.Sprintf("  %s %d   %s %d/%d   %s %d days\n",
		labelStyle.Render("Level"), st.Level,
		labelStyle.Render("XP"), st.CurrentLevelXP, st.XPForNextLevel,
		labelStyle.Render("Streak"), st.StreakDays,
	))
	sb.WriteString("\n" + dimStyle.Render("  No session running.") + "\n")
	return sb.String()
}

func (m TimerModel) runView(t *timer.Timer, mode engine.Mode) string {
	st := t.Status()
	var sb strings.Builder

	label := "Focus"
	if mode == engine.ModePomodoro {
		c := m.eng.Pomodoro.Snapshot()
		label = fmt.Sprintf("Pomodoro · %s · cycle %d/%d", c.Mode.Label(), c.CycleIndex+1, cycle.CyclesPerSet)
	} else if m.eng.Strict() {
		label = "Focus · strict"
	}
	sb.WriteString("  " + sectionHeader.Render(label) + "  " + dimStyle.Render(string(st.Phase)) + "\n\n")

	clockBox := clockStyle.Render(timer.FormatClock(st.RemainingSeconds))
	sb.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(clockBox) + "\n\n")

	pct := 0.0
	if st.InitialSeconds > 0 {
		pct = 1 - float64(st.RemainingSeconds)/float64(st.InitialSeconds)
	}
	sb.WriteString("  " + m.bar.ViewAs(pct) + "\n")

	if st.Phase == timer.Running && m.midMessage != "" {
		sb.WriteString("\n  " + dimStyle.Render(m.midMessage) + "\n")
	}
	if m.confirmEnd {
		focused := (st.InitialSeconds - st.RemainingSeconds) / 60
		sb.WriteString("\n  " + warnStyle.Render(m.warning) + "\n")
		sb.WriteString("  " + dimStyle.Render(fmt.Sprintf("%d minutes focused so far. End and lose them? y/n", focused)) + "\n")
	}
	return sb.String()
}

func outcomeText(o *engine.Outcome) string {
	var sb strings.Builder
	switch {
	case o.Forfeited:
		sb.WriteString("  " + warnStyle.Render(o.Message) + "  " + dimStyle.Render(fmt.Sprintf("%d minutes not recorded", o.Minutes)) + "\n")
	case o.Result == nil:
		sb.WriteString("  " + dimStyle.Render(o.Message) + "\n")
	default:
		sb.WriteString("  " + rewardStyle.Render(fmt.Sprintf("+%d XP", o.Result.XPGained)) +
			fmt.Sprintf("  %d minutes  ", o.Minutes) + o.Message + "\n")
		if o.LevelUpMessage != "" {
			sb.WriteString("  " + rewardStyle.Render(fmt.Sprintf("%s  Level %d", o.LevelUpMessage, o.Result.NewLevel)) + "\n")
		}
		if n := len(o.Result.NewAchievementIDs); n > 0 {
			sb.WriteString("  " + unlockedStyle.Render(fmt.Sprintf("%d achievement(s) unlocked", n)) + "\n")
		}
	}
	return sb.String()
}

func (m TimerModel) hint(mode engine.Mode) string {
	if mode == engine.ModeNone {
		return "  f focus  s strict focus  p pomodoro  q quit"
	}
	return "  space pause/resume  e end  a abandon  q quit (keeps running)"
}

// RunTimer opens the timer screen. Changes made by other processes are
// delivered to the screen while it runs.
func RunTimer(e *engine.Engine) error {
	p := tea.NewProgram(NewTimer(e, e.Config().Timer.RefreshInterval), tea.WithAltScreen())

	// Publish is synchronous and may run inside Update, so sends are async.
	unsub := e.Bus().SubscribeAll(func(n event.Notification) {
		if n.Kind == event.TimerTick {
			return
		}
		go p.Send(notifyMsg(n))
	})
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Watch(ctx) }()

	_, err := p.Run()
	return err
}
