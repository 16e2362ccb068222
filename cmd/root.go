package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/focusgate/internal/clock"
	"github.com/fakeyudi/focusgate/internal/config"
	"github.com/fakeyudi/focusgate/internal/engine"
	"github.com/fakeyudi/focusgate/internal/logging"
	"github.com/fakeyudi/focusgate/internal/store"
	"github.com/fakeyudi/focusgate/internal/timer"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// configPath replaces the global config file when set.
var configPath string

// appClock is the time source for every command. Tests swap it.
var appClock clock.Clock = clock.System{}

var rootCmd = &cobra.Command{
	Use:           "focusgate",
	Short:         "Focus timer and pomodoro cycles with XP, levels, streaks and achievements",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// config init must work even when the existing file is broken.
		if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			cfg = config.Defaults()
			return nil
		}

		src := config.DefaultSources()
		if configPath != "" {
			src.Global = configPath
		}
		loaded, err := config.Load(src)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/focusgate/config.yaml)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is one opened engine plus what must be closed after it.
type session struct {
	*engine.Engine
	store store.Store
	log   *logging.Logger
}

func (s *session) Close() {
	s.Engine.Close()
	if err := s.store.Close(); err != nil {
		s.log.Warn("failed to close store", "error", err.Error())
	}
	s.log.Close()
}

// openEngine opens the configured store and builds an engine on it. Expiry
// that happened while no process was running is caught up before returning.
// sched may be nil for one-shot commands.
func openEngine(sched timer.Scheduler) (*session, error) {
	dir := cfg.Store.Dir
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dir = d
	}

	log, err := logging.NewLogger(dir, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Backend: cfg.Store.Backend,
		Dir:     dir,
		SQLite:  store.SQLiteOptions{PollInterval: cfg.Store.PollInterval},
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	e := engine.New(engine.Options{
		Config:    cfg,
		Store:     st,
		Clock:     appClock,
		Logger:    log,
		Scheduler: sched,
	})
	e.Refresh()
	return &session{Engine: e, store: st, log: log}, nil
}

// interactive reports whether stdout is a terminal a Bubble Tea program can
// take over.
func interactive() bool {
	return term.IsTerminal(os.Stdout.Fd()) && term.IsTerminal(os.Stdin.Fd())
}
