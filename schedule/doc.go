// Package schedule defines recurrence rules that the taskkit Scheduler
// materializes into concrete tasks at wall-clock instants.
//
// An Entry's Recurrence is a pure function (lastFire, loc) -> nextFire. The
// built-in rules are fixed-interval (Every) and wall-clock-cron-style
// (Cron, backed by github.com/hashicorp/cronexpr).
package schedule
