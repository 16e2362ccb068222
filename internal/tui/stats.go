package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/focusgate/internal/report"
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabWeek
	tabAchievements
	tabSessions
	tabCount
)

var tabNames = [tabCount]string{"Summary", "This Week", "Achievements", "Sessions"}

// StatsModel is the tabbed viewer for a progress report.
type StatsModel struct {
	report    *report.Report
	title     string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	newest    bool
}

// NewStats creates a viewer for r. title is shown in the title bar.
func NewStats(r *report.Report, title string) StatsModel {
	return StatsModel{report: r, title: title, newest: true}
}

func (m StatsModel) Init() tea.Cmd { return nil }

func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabSessions && m.ready {
				m.newest = !m.newest
				m.viewports[tabSessions].SetContent(m.renderTab(tabSessions))
				m.viewports[tabSessions].GotoTop()
			}
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m StatsModel) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  focusgate  " + m.title)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	if m.activeTab == tabSessions {
		dir := "newest first"
		if !m.newest {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

func (m *StatsModel) initViewports() {
	// title + tab row + status bar
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *StatsModel) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabWeek:
		return m.renderWeek()
	case tabAchievements:
		return m.renderAchievements()
	case tabSessions:
		return m.renderSessions()
	}
	return ""
}

func (m *StatsModel) renderSummary() string {
	s := m.report.Summary
	var sb strings.Builder
	sb.WriteString(heading("Progress"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Level:", fmt.Sprintf("%d", s.Level))
	row("XP:", fmt.Sprintf("%d/%d  %s", s.CurrentLevelXP, s.XPForNextLevel, bar(s.CurrentLevelXP, 100, 20)))
	row("Total XP:", fmt.Sprintf("%d", s.XP))
	row("Streak:", fmt.Sprintf("%d days", s.StreakDays))

	sb.WriteString(heading("Focus"))
	row("Today:", report.FormatMinutes(s.DailyMinutes))
	row("All time:", report.FormatMinutes(s.TotalMinutes))
	row("Sessions:", fmt.Sprintf("%d", s.TotalSessions))
	row("Pomodoros:", fmt.Sprintf("%d", s.PomodorosCompleted))
	row("Achievements:", fmt.Sprintf("%d/%d", m.report.UnlockedCount(), len(m.report.Achievements)))
	sb.WriteString("\n" + dimStyle.Render("  generated "+m.report.GeneratedAt.Format("2006-01-02 15:04")) + "\n")
	return sb.String()
}

func (m *StatsModel) renderWeek() string {
	var sb strings.Builder
	sb.WriteString(heading("Last 7 Days"))
	max := 1
	for _, d := range m.report.Weekly {
		if d.Minutes > max {
			max = d.Minutes
		}
	}
	for _, d := range m.report.Weekly {
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			labelStyle.Render(fmt.Sprintf("%-3s", d.Label)),
			bar(d.Minutes, max, 30),
			report.FormatMinutes(d.Minutes),
		)
	}
	return sb.String()
}

func (m *StatsModel) renderAchievements() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Achievements (%d/%d)", m.report.UnlockedCount(), len(m.report.Achievements))))
	for _, a := range m.report.Achievements {
		if a.Unlocked {
			sb.WriteString(bullet(unlockedStyle.Render("✓ "+a.Name) + "  " + a.Description))
			continue
		}
		sb.WriteString(bullet(lockedStyle.Render("· "+a.Name) + "  " + dimStyle.Render(a.Description) +
			"  " + timeStyle.Render(fmt.Sprintf("%d%%", int(a.Progress)))))
	}
	return sb.String()
}

func (m *StatsModel) renderSessions() string {
	var sb strings.Builder
	sessions := m.report.Sessions
	sb.WriteString(heading(fmt.Sprintf("Sessions (%d)", len(sessions))))
	if len(sessions) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i := range sessions {
		s := sessions[i]
		if m.newest {
			s = sessions[len(sessions)-1-i]
		}
		fmt.Fprintf(&sb, "  %s  %-8s  %s\n",
			timeStyle.Render(time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04")),
			s.Type,
			report.FormatMinutes(s.Minutes),
		)
	}
	return sb.String()
}

// RunStats starts the stats viewer for r.
func RunStats(r *report.Report, title string) error {
	p := tea.NewProgram(NewStats(r, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
