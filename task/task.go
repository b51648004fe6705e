package task

import (
	"time"

	"github.com/google/uuid"
)

// Lease is the backend's implicit (task id, worker id, expiry) ownership
// triple. A Task carries only the expiry its owner currently holds; the
// owning worker identity is tracked by the Backend implementation and is
// not surfaced here.
type Lease struct {
	// LockedUntil is the lease expiry instant. Nil means the task is not
	// currently leased.
	LockedUntil *time.Time
}

// Held reports whether the lease is still valid as of now.
func (l Lease) Held(now time.Time) bool {
	return l.LockedUntil != nil && l.LockedUntil.After(now)
}

// Task is a single unit of work as tracked by a Backend.
//
// Group is the routing key selecting which worker pool may run the task.
// Name keys into the Handler registry within Group. Data is the opaque,
// Encoder-produced payload passed to the handler.
//
// Invariants: DueTS >= CreatedTS; TTL > 0; a Claimed task has at most one
// owning lease until released; a terminal Task is immutable.
type Task struct {
	ID    uuid.UUID
	Group string
	Name  string
	Data  []byte

	DueTS     time.Time
	TTL       time.Duration
	CreatedTS time.Time

	Status   Status
	Attempts uint32
	Lease
}

// Deadline returns the absolute instant beyond which this task is
// considered expired if still running: min(DueTS+TTL, leaseMax).
func (t *Task) Deadline(leaseMax time.Time) time.Time {
	ttlDeadline := t.DueTS.Add(t.TTL)
	if leaseMax.Before(ttlDeadline) {
		return leaseMax
	}
	return ttlDeadline
}

// New constructs a Pending Task ready for Backend.PutTasks. created is the
// assignment instant; due must not precede it.
func New(id uuid.UUID, group, name string, data []byte, created, due time.Time, ttl time.Duration) *Task {
	return &Task{
		ID:        id,
		Group:     group,
		Name:      name,
		Data:      data,
		DueTS:     due,
		TTL:       ttl,
		CreatedTS: created,
		Status:    Pending,
	}
}
