package cycle

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is written with every persisted State.
const SchemaVersion = 1

// CyclesPerSet is the number of focus blocks before a long break.
const CyclesPerSet = 4

// ErrUnsupportedVersion is returned by Migrate for documents written by a
// newer build.
var ErrUnsupportedVersion = errors.New("unsupported cycle state version")

// Mode is the stage a pomodoro run is in.
type Mode string

const (
	Focus     Mode = "focus"
	Break     Mode = "break"
	LongBreak Mode = "longBreak"
)

// Label returns the human form of m.
func (m Mode) Label() string {
	switch m {
	case Break:
		return "Break Time"
	case LongBreak:
		return "Long Break"
	default:
		return "Focus Time"
	}
}

// Durations holds the length of each stage in minutes.
type Durations struct {
	Focus     int `json:"focus"`
	Break     int `json:"break"`
	LongBreak int `json:"long_break"`
}

// DefaultDurations are the classic 25/5/15 pomodoro lengths.
var DefaultDurations = Durations{Focus: 25, Break: 5, LongBreak: 15}

// For returns the configured minutes for mode.
func (d Durations) For(mode Mode) int {
	switch mode {
	case Break:
		return d.Break
	case LongBreak:
		return d.LongBreak
	default:
		return d.Focus
	}
}

func (d Durations) withDefaults() Durations {
	if d.Focus < 1 {
		d.Focus = DefaultDurations.Focus
	}
	if d.Break < 1 {
		d.Break = DefaultDurations.Break
	}
	if d.LongBreak < 1 {
		d.LongBreak = DefaultDurations.LongBreak
	}
	return d
}

// State is the persisted position within a pomodoro run.
type State struct {
	Version          int       `json:"version"`
	Mode             Mode      `json:"mode"`
	CycleIndex       int       `json:"cycle_index"`
	CompletedMinutes int       `json:"completed_minutes"`
	Durations        Durations `json:"durations"`
}

// Initial returns the state of a run that has not completed any stage.
func Initial(d Durations) State {
	return State{Version: SchemaVersion, Mode: Focus, Durations: d.withDefaults()}
}

// Advance returns the state after the current stage runs to completion.
// Focus stages bank their full duration; breaks lead back to focus, and the
// long break closes the set.
func Advance(s State) State {
	next := s
	switch s.Mode {
	case Focus:
		next.CompletedMinutes += s.Durations.Focus
		if s.CycleIndex >= CyclesPerSet-1 {
			next.Mode = LongBreak
		} else {
			next.Mode = Break
		}
	case Break:
		next.Mode = Focus
		next.CycleIndex = s.CycleIndex + 1
	case LongBreak:
		next.Mode = Focus
		next.CycleIndex = 0
	}
	return next
}

type legacyState struct {
	Mode             Mode `json:"mode"`
	Cycle            int  `json:"cycle"`
	CompletedMinutes int  `json:"completedMinutes"`
}

// Migrate decodes a persisted cycle document of any known version. Version 0
// documents carry no durations, so fallback fills them in.
func Migrate(raw []byte, fallback Durations) (State, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return State{}, err
	}

	var s State
	switch probe.Version {
	case 0:
		var old legacyState
		if err := json.Unmarshal(raw, &old); err != nil {
			return State{}, err
		}
		s = State{
			Mode:             old.Mode,
			CycleIndex:       old.Cycle,
			CompletedMinutes: old.CompletedMinutes,
			Durations:        fallback,
		}
	case SchemaVersion:
		if err := json.Unmarshal(raw, &s); err != nil {
			return State{}, err
		}
	default:
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Version)
	}
	return normalize(s)
}

func normalize(s State) (State, error) {
	switch s.Mode {
	case Focus, Break, LongBreak:
	default:
		return State{}, fmt.Errorf("unknown cycle mode %q", s.Mode)
	}
	if s.CycleIndex < 0 || s.CycleIndex >= CyclesPerSet {
		return State{}, fmt.Errorf("cycle index %d out of range", s.CycleIndex)
	}
	if s.CompletedMinutes < 0 {
		s.CompletedMinutes = 0
	}
	s.Version = SchemaVersion
	s.Durations = s.Durations.withDefaults()
	return s, nil
}
