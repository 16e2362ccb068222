package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	versionSentinel = "<!-- focusgate-report-version: 1 -->"
	dataPrefix      = "<!-- focusgate-data: "
	dataSuffix      = " -->"
)

// Format names a report encoding.
type Format string

const (
	Markdown Format = "markdown"
	JSON     Format = "json"
)

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// RendererFor returns the renderer for format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case Markdown:
		return &MarkdownRenderer{}, nil
	case JSON:
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want markdown or json)", format)
	}
}

// Extension returns the file extension for format.
func (f Format) Extension() string {
	if f == JSON {
		return ".json"
	}
	return ".md"
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// MarkdownRenderer renders a Report as Markdown with the JSON payload embedded
// in a comment so the file parses back losslessly.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(r *Report) ([]byte, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Focus Report, %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))

	s := r.Summary
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Level: %d (%d/%d XP)\n", s.Level, s.CurrentLevelXP, s.XPForNextLevel)
	fmt.Fprintf(&sb, "- Total XP: %d\n", s.XP)
	fmt.Fprintf(&sb, "- Total focus: %s over %d sessions\n", FormatMinutes(s.TotalMinutes), s.TotalSessions)
	fmt.Fprintf(&sb, "- Today: %s\n", FormatMinutes(s.DailyMinutes))
	fmt.Fprintf(&sb, "- Streak: %d days\n", s.StreakDays)
	fmt.Fprintf(&sb, "- Pomodoros completed: %d\n", s.PomodorosCompleted)
	sb.WriteString("\n")

	sb.WriteString("## This Week\n\n")
	if len(r.Weekly) == 0 {
		sb.WriteString("_No data._\n")
	} else {
		sb.WriteString("| Day | Date | Minutes |\n")
		sb.WriteString("|-----|------|---------|\n")
		for _, d := range r.Weekly {
			fmt.Fprintf(&sb, "| %s | %s | %d |\n", d.Label, d.Date, d.Minutes)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Achievements\n\n")
	if len(r.Achievements) == 0 {
		sb.WriteString("_No achievements._\n")
	} else {
		for _, a := range r.Achievements {
			mark := " "
			if a.Unlocked {
				mark = "x"
			}
			fmt.Fprintf(&sb, "- [%s] **%s**: %s (%d%%)\n", mark, a.Name, a.Description, int(a.Progress))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Sessions\n\n")
	if len(r.Sessions) == 0 {
		sb.WriteString("_No sessions recorded._\n")
	} else {
		sb.WriteString("| When | Type | Minutes |\n")
		sb.WriteString("|------|------|---------|\n")
		for _, ss := range r.Sessions {
			fmt.Fprintf(&sb, "| %s | %s | %d |\n",
				time.UnixMilli(ss.Timestamp).Format("2006-01-02 15:04"),
				ss.Type,
				ss.Minutes,
			)
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

// FormatMinutes renders minutes as "1h 05m" or "42m".
func FormatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}
