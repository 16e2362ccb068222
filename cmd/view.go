package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focusgate/internal/achievement"
	"github.com/fakeyudi/focusgate/internal/report"
	"github.com/fakeyudi/focusgate/internal/tui"
)

var (
	plainOutput  bool
	exportFormat string
	exportOutput string
)

var viewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View an exported progress report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}

		r, err := report.ParserFor(path).Parse(data)
		if err != nil {
			return err
		}

		if plainOutput || !interactive() {
			printReport(cmd.OutOrStdout(), r)
			return nil
		}
		return tui.RunStats(r, filepath.Base(path))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show level, XP, streak and focus history",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		r := report.Build(s.Ledger, s.Clock().Now())
		if plainOutput || !interactive() {
			printReport(cmd.OutOrStdout(), r)
			return nil
		}
		return tui.RunStats(r, "stats")
	},
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List achievements and progress toward each",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		r := report.Build(s.Ledger, s.Clock().Now())
		fmt.Fprintf(cmd.OutOrStdout(), "Achievements %d/%d\n", r.UnlockedCount(), len(r.Achievements))
		printAchievements(cmd.OutOrStdout(), r.Achievements)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a progress report to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := report.Format(exportFormat)
		renderer, err := report.RendererFor(format)
		if err != nil {
			return err
		}

		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		now := s.Clock().Now()
		data, err := renderer.Render(report.Build(s.Ledger, now))
		if err != nil {
			return err
		}

		if exportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		path := exportOutput
		if path == "" {
			path = "focusgate-report-" + now.Format("20060102-150405") + format.Extension()
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
		return nil
	},
}

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Open the live timer screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive() {
			return fmt.Errorf("the timer screen needs an interactive terminal; use status instead")
		}
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return tui.RunTimer(s.Engine)
	},
}

func achievementName(id string) string {
	if a, ok := achievement.Lookup(id); ok {
		return a.Name
	}
	return id
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	statsCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(report.Markdown), "report format: markdown or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", `output file ("-" for stdout)`)
	rootCmd.AddCommand(viewCmd, statsCmd, achievementsCmd, exportCmd, timerCmd)
}
