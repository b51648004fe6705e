// Package result defines the eventual outcome of a task.
//
// A Result is a tagged union of exactly one of: success(value), error(kind,
// message), expired, discarded, pending. It is durably stored under the
// task's id and is what Backend.GetResult and the façade's InitiateTask
// return. How long a stored Result stays readable is up to the Backend:
// the reference sqlbackend keeps every terminal Result for a fixed seven
// days after it is written; the task's TTL does not affect that window.
package result
