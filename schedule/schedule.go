package schedule

import (
	"strings"
	"time"

	"github.com/hashicorp/cronexpr"
)

// Recurrence computes the next fire instant strictly after last, in the
// given location. Implementations must be pure: same (last, loc) always
// yields the same result, since the Scheduler relies on this to derive a
// deterministic materialized-task id from (group, key, nextFire).
type Recurrence func(last time.Time, loc *time.Location) time.Time

// Every returns a Recurrence that fires every d after the last fire.
func Every(d time.Duration) Recurrence {
	return func(last time.Time, _ *time.Location) time.Time {
		return last.Add(d)
	}
}

// Cron returns a Recurrence backed by a standard cron expression (minute
// hour day-of-month month day-of-week, optionally with a leading seconds
// field), evaluated in the Recurrence's loc argument so that DST-observing
// rules behave as the process-local or override timezone dictates.
func Cron(expr string) (Recurrence, error) {
	if len(strings.Fields(expr)) == 6 {
		// cronexpr reads a sixth field as the year; append a wildcard year
		// so the first of six fields is read as seconds.
		expr += " *"
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	return func(last time.Time, loc *time.Location) time.Time {
		if loc == nil {
			loc = time.UTC
		}
		return parsed.Next(last.In(loc)).In(loc)
	}, nil
}

// MissedFirePolicy controls how an Entry catches up after a long pause.
type MissedFirePolicy uint8

const (
	// CoalesceMissed materializes a single task for the most recent
	// missed slot and discards the rest. Default.
	CoalesceMissed MissedFirePolicy = iota
	// FireAllMissed materializes one task per missed slot.
	FireAllMissed
)

// Entry is a recurrence rule registered with the Scheduler.
type Entry struct {
	// Key is unique within Group; used for idempotent materialization.
	Key string
	// Group and Name select the handler the materialized tasks target.
	Group string
	Name  string
	// Data is the template payload forwarded to every materialized task.
	Data []byte
	// TTL is forwarded to every materialized task.
	TTL time.Duration

	Recurrence Recurrence
	Missed     MissedFirePolicy

	// LastFiredTS is the cluster-wide monotonic checkpoint. Zero means
	// the entry has never fired; its first fire is computed from the
	// entry's registration time.
	LastFiredTS time.Time
}
