package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Pause(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Paused.")
		return printStatus(cmd.OutOrStdout(), s.Engine)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session or start the next pomodoro stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Resume(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Resumed.")
		return printStatus(cmd.OutOrStdout(), s.Engine)
	},
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the session and record the minutes focused",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		o, err := s.End()
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), o)
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon",
	Short: "Discard the session without recording it",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Abandon(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session discarded.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return printStatus(cmd.OutOrStdout(), s.Engine)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd, endCmd, abandonCmd, statusCmd)
}
