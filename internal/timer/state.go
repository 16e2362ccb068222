package timer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is the version written with every persisted State.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned by Migrate for documents written by a
// newer build.
var ErrUnsupportedVersion = errors.New("unsupported timer state version")

// State is the persisted mirror of a timer.
//
// While IsRunning, StartTimestamp and StartingSeconds are set and the
// remaining time is derived from the wall clock. Otherwise RemainingSeconds
// is authoritative.
type State struct {
	Version                int    `json:"version"`
	RemainingSeconds       int    `json:"remaining_seconds"`
	IsRunning              bool   `json:"is_running"`
	StartTimestamp         *int64 `json:"start_timestamp"` // epoch ms
	StartingSeconds        *int   `json:"starting_seconds"`
	InitialDurationSeconds int    `json:"initial_duration_seconds"`
}

// Fresh returns a stopped state configured for minutes.
func Fresh(minutes int) State {
	secs := clampMinutes(minutes) * 60
	return State{
		Version:                SchemaVersion,
		RemainingSeconds:       secs,
		InitialDurationSeconds: secs,
	}
}

// DeriveRemaining computes the seconds left for a run that began at startMs
// with startingSeconds on the clock. It is a pure function of its inputs. A
// clock that moved backwards (nowMs < startMs) counts as zero elapsed time.
func DeriveRemaining(startingSeconds int, startMs, nowMs int64) int {
	elapsedMs := nowMs - startMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	remaining := int64(startingSeconds) - elapsedMs/1000
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// FormatClock renders seconds as MM:SS. Negative values render as 00:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// RemainingAt returns the remaining seconds displayed at nowMs.
func (s State) RemainingAt(nowMs int64) int {
	if s.IsRunning && s.StartTimestamp != nil && s.StartingSeconds != nil {
		return DeriveRemaining(*s.StartingSeconds, *s.StartTimestamp, nowMs)
	}
	if s.RemainingSeconds < 0 {
		return 0
	}
	return s.RemainingSeconds
}

// valid reports whether s satisfies the running/start-field invariant.
func (s State) valid() bool {
	if s.InitialDurationSeconds <= 0 {
		return false
	}
	if s.IsRunning {
		return s.StartTimestamp != nil && s.StartingSeconds != nil
	}
	return s.RemainingSeconds >= 0
}

// legacyState is the unversioned camelCase document used before schema
// versioning was introduced.
type legacyState struct {
	RemainingSeconds       int    `json:"remainingSeconds"`
	IsRunning              bool   `json:"isRunning"`
	StartTimestamp         *int64 `json:"startTimestamp"`
	StartingSeconds        *int   `json:"startingSeconds"`
	InitialDurationSeconds int    `json:"initialDurationSeconds"`
}

// Migrate decodes a persisted timer document of any known version and
// returns it as a current State.
func Migrate(raw []byte) (State, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return State{}, err
	}

	switch {
	case probe.Version == 0:
		var old legacyState
		if err := json.Unmarshal(raw, &old); err != nil {
			return State{}, err
		}
		return normalize(State{
			Version:                SchemaVersion,
			RemainingSeconds:       old.RemainingSeconds,
			IsRunning:              old.IsRunning,
			StartTimestamp:         old.StartTimestamp,
			StartingSeconds:        old.StartingSeconds,
			InitialDurationSeconds: old.InitialDurationSeconds,
		})
	case probe.Version == SchemaVersion:
		var s State
		if err := json.Unmarshal(raw, &s); err != nil {
			return State{}, err
		}
		return normalize(s)
	default:
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Version)
	}
}

func normalize(s State) (State, error) {
	if !s.valid() {
		return State{}, errors.New("timer state violates running invariant")
	}
	if !s.IsRunning {
		s.StartTimestamp = nil
		s.StartingSeconds = nil
	}
	return s, nil
}

func clampMinutes(m int) int {
	if m < 1 {
		return 1
	}
	return m
}

func encodeState(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode timer state: %w", err)
	}
	return string(data), nil
}
