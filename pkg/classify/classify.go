// Package classify derives risk flags, completion rollups and filtered views
// from snapshots of tasks. Every function is pure: callers pass a Clock
// computed once per evaluation pass.
package classify

import (
	"time"

	"agency-tracker/pkg/model"
)

// StaleWindow is how long an open task may go without an update before it is stale.
const StaleWindow = 3 * 24 * time.Hour

// Clock holds the reference instants for one evaluation pass.
type Clock struct {
	Now         time.Time
	Today       model.Date // calendar-day granularity, UTC
	StaleCutoff time.Time  // Now - StaleWindow, full precision
}

// NewClock derives Today and StaleCutoff from now.
func NewClock(now time.Time) Clock {
	return Clock{
		Now:         now,
		Today:       model.DateOf(now),
		StaleCutoff: now.Add(-StaleWindow),
	}
}

func IsDone(t model.Task) bool    { return t.Status == model.StatusDone }
func IsBlocked(t model.Task) bool { return t.Status == model.StatusBlocked }

// IsOpen reports whether the task still needs work (anything but DONE).
func IsOpen(t model.Task) bool { return t.Status != model.StatusDone }

// active tasks are the only ones eligible for passive risk flags.
func active(t model.Task) bool {
	return t.Status != model.StatusDone && t.Status != model.StatusBlocked
}

// IsOverdue reports whether an active task's due date is before today.
// Comparison is by calendar day only.
func IsOverdue(t model.Task, c Clock) bool {
	return active(t) && !t.DueDate.IsZero() && t.DueDate.Before(c.Today)
}

// IsStale reports whether an active task was last updated at or before the stale cutoff.
func IsStale(t model.Task, c Clock) bool {
	return active(t) && !t.LastUpdateAt.IsZero() && !t.LastUpdateAt.After(c.StaleCutoff)
}

// Flags is the full classification of one task.
type Flags struct {
	Done    bool `json:"done"`
	Blocked bool `json:"blocked"`
	Overdue bool `json:"overdue"`
	Stale   bool `json:"stale"`
}

// ClassifyTask evaluates every predicate for t.
func ClassifyTask(t model.Task, c Clock) Flags {
	return Flags{
		Done:    IsDone(t),
		Blocked: IsBlocked(t),
		Overdue: IsOverdue(t, c),
		Stale:   IsStale(t, c),
	}
}

// ReminderCooldown is the minimum gap between two follow-up reminders for a task.
const ReminderCooldown = 24 * time.Hour

// CanRemind reports whether a reminder may be sent. It gates the reminder
// action only; marking a task as reminded is always allowed.
func CanRemind(lastRemindedAt *time.Time, now time.Time) bool {
	if lastRemindedAt == nil {
		return true
	}
	return now.Sub(*lastRemindedAt) >= ReminderCooldown
}
