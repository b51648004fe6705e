// Package task defines the stateful representation of a unit of work
// managed by taskkit.
//
// A Task carries both the user-facing routing/payload fields (Group, Name,
// Data) and the delivery metadata a backend maintains on its behalf
// (Status, Attempts, lease information, scheduling timestamps). Unlike the
// lightweight value a producer submits to InitiateTask, a Task is what
// Backend.ClaimTasks returns: an authoritative storage snapshot.
//
// Task is not intended to be constructed manually by user code outside of
// a Backend implementation; callers receive Task values from ClaimTasks and
// pass them back for state transitions (CompleteTask, DiscardTask, ...).
package task
