package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/focusgate/internal/engine"
	"github.com/fakeyudi/focusgate/internal/event"
	"github.com/fakeyudi/focusgate/internal/timer"
)

var (
	startPomodoro bool
	startMinutes  int
	startStrict   bool
	startWait     bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session or a pomodoro cycle",
	Long: `Start a focus session (default) or a pomodoro cycle.

The timer keeps running in the background: use "focusgate status" to check it
and "focusgate end" to record it. With --wait the command stays in the
foreground and counts down until the timer runs out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sched timer.Scheduler
		if startWait {
			sched = timer.TickerScheduler{}
		}
		s, err := openEngine(sched)
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		if startPomodoro {
			if err := s.StartPomodoro(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Pomodoro started: %d minute focus block.\n", s.Pomodoro.Snapshot().Durations.Focus)
		} else {
			strict := startStrict || cfg.Timer.Strict
			if err := s.StartFocus(startMinutes, strict); err != nil {
				return err
			}
			mode := ""
			if strict {
				mode = " in strict mode"
			}
			fmt.Fprintf(out, "Focus session started%s: %s on the clock.\n", mode, timer.FormatClock(s.Focus.Status().InitialSeconds))
		}
		fmt.Fprintln(out, s.Pick(engine.MidSessionMessages))

		if !startWait {
			return nil
		}
		return waitForExpiry(cmd, s)
	},
}

// waitForExpiry counts down in the foreground until the running timer expires
// or the user interrupts. A focus run that expires is recorded.
func waitForExpiry(cmd *cobra.Command, s *session) error {
	out := cmd.OutOrStdout()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	expired := make(chan struct{}, 1)
	unsubTick := s.Bus().Subscribe(event.TimerTick, func(n event.Notification) {
		fmt.Fprintf(out, "\r%s ", timer.FormatClock(n.Remaining))
	})
	defer unsubTick()
	unsubExp := s.Bus().Subscribe(event.TimerExpired, func(event.Notification) {
		select {
		case expired <- struct{}{}:
		default:
		}
	})
	defer unsubExp()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = s.Watch(watchCtx) }()

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "\nStill running in the background.")
		return nil
	case <-expired:
	}
	fmt.Fprintln(out, "\rTime's up!")

	if startPomodoro {
		fmt.Fprintln(out, `Run "focusgate resume" to start the next stage or "focusgate end" to record the cycle.`)
		return nil
	}
	o, err := s.End()
	if err != nil {
		return err
	}
	printOutcome(out, o)
	return nil
}

func init() {
	startCmd.Flags().BoolVarP(&startPomodoro, "pomodoro", "p", false, "start a pomodoro cycle instead of a focus session")
	startCmd.Flags().IntVarP(&startMinutes, "minutes", "m", 0, "focus session length (default from config)")
	startCmd.Flags().BoolVar(&startStrict, "strict", false, "forfeit the session's minutes if ended early")
	startCmd.Flags().BoolVarP(&startWait, "wait", "w", false, "stay in the foreground until the timer runs out")
	rootCmd.AddCommand(startCmd)
}
