// Package event is the in-process notification channel between the timer,
// the ledger and whatever UI is listening. Delivery is synchronous: Publish
// returns only after every handler has run.
package event

import "time"

// Kind identifies a notification. Convention: "category.action".
type Kind string

const (
	// ProgressionChanged is published after the ledger has been persisted,
	// either by a local mutation or after reloading a change written by
	// another process.
	ProgressionChanged Kind = "progression.changed"
	// TimerTick is published by every scheduled refresh of a running timer.
	TimerTick Kind = "timer.tick"
	// TimerExpired is published once when a running timer reaches zero.
	TimerExpired Kind = "timer.expired"
	// CycleAdvanced is published after a pomodoro stage transition.
	CycleAdvanced Kind = "cycle.advanced"
	// TimerChanged is published after a timer's persisted state was replaced
	// by a write from another process.
	TimerChanged Kind = "timer.changed"
)

// Notification is the single message type carried by the Bus. Only the
// fields relevant to Kind are set.
type Notification struct {
	Kind      Kind
	Timestamp time.Time

	// Key is the store key of the timer or ledger that changed.
	Key string
	// Remaining is the derived remaining seconds for timer notifications.
	Remaining int
	// Mode is the pomodoro mode after a CycleAdvanced notification.
	Mode string
	// CycleIndex is the pomodoro cycle index after a CycleAdvanced notification.
	CycleIndex int
	// External is true when the change originated in another process.
	External bool
}
