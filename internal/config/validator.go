package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fakeyudi/focusgate/internal/logging"
)

// MaxMinutes caps any configured stage length.
const MaxMinutes = 24 * 60

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // e.g. "timer.focus_minutes"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidBackends returns the accepted store.backend values.
func ValidBackends() []string {
	return []string{"file", "sqlite", "memory"}
}

// ValidLogLevels returns the accepted log.level values.
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	for i, l := range levels {
		levels[i] = strings.ToLower(l)
	}
	return levels
}

// Validate checks c and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	minutes := []struct {
		field string
		value int
	}{
		{"timer.focus_minutes", c.Timer.FocusMinutes},
		{"timer.break_minutes", c.Timer.BreakMinutes},
		{"timer.long_break_minutes", c.Timer.LongBreakMinutes},
	}
	for _, m := range minutes {
		if m.value < 1 || m.value > MaxMinutes {
			errs = append(errs, ValidationError{
				Field:   m.field,
				Value:   m.value,
				Message: fmt.Sprintf("must be between 1 and %d", MaxMinutes),
			})
		}
	}

	if c.Timer.RefreshInterval < 10*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "timer.refresh_interval",
			Value:   c.Timer.RefreshInterval,
			Message: "must be at least 10ms",
		})
	}
	if !slices.Contains(ValidBackends(), c.Store.Backend) {
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: "must be one of " + strings.Join(ValidBackends(), ", "),
		})
	}
	if c.Store.PollInterval < 10*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "store.poll_interval",
			Value:   c.Store.PollInterval,
			Message: "must be at least 10ms",
		})
	}
	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: "must be one of " + strings.Join(ValidLogLevels(), ", "),
		})
	}

	return errs
}
