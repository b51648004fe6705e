package taskkit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saryou/taskkit/event"
	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

// Backend is the pluggable durable store and event bus every other
// component relies on. Implementations MUST provide the exact atomicity
// guarantees documented on each method; the kit's correctness depends on
// them.
//
// Transient I/O errors are returned to the caller, which retries with
// bounded exponential backoff; logical conflicts (lease lost, checkpoint
// CAS failure) are reported via the sentinel errors below and must be
// handled as control flow, not surfaced as failures.
type Backend interface {
	// PutTasks durably inserts tasks. If a task's id already exists, the
	// operation is a no-op for that id (idempotent retry, and the
	// mechanism by which concurrent Scheduler hosts converge on a single
	// materialized task per slot).
	PutTasks(ctx context.Context, tasks ...*task.Task) error

	// ClaimTasks atomically selects up to limit tasks in group whose
	// DueTS <= now and which are not currently leased, marks them leased
	// by the caller until now+leaseDuration, and returns them. The
	// operation is serializable per-group: no two concurrent callers may
	// observe overlapping result sets.
	ClaimTasks(ctx context.Context, group string, limit int, now time.Time, leaseDuration time.Duration) ([]*task.Task, error)

	// RenewLease extends the lease on id if the caller still holds it.
	// Returns ErrLeaseLost otherwise.
	RenewLease(ctx context.Context, id uuid.UUID, newExpiry time.Time) error

	// CompleteTask stores result under id, releases the lease, and
	// prevents re-claim. Returns ErrCompleteFailed if id is not currently
	// Claimed by the caller.
	CompleteTask(ctx context.Context, id uuid.UUID, res result.Result) error

	// DiscardTask terminally discards id (no retry). Returns ErrTaskLost
	// if id does not exist.
	DiscardTask(ctx context.Context, id uuid.UUID, reason string) error

	// GetResult performs a read-only lookup of id's Result. Returns
	// result.Pending() (not an error) if id has not reached a terminal
	// state, and ErrTaskLost if id does not exist at all.
	GetResult(ctx context.Context, id uuid.UUID) (result.Result, error)

	// PublishEvent fans e out to every live Subscribe stream,
	// cluster-wide, at-least-once. Events delivered after a subscriber
	// restart need not be replayed.
	PublishEvent(ctx context.Context, e event.Event) error

	// SubscribeEvents returns a channel of events and a function to stop
	// the subscription and release its resources. The returned channel
	// is closed once closeFn is called or ctx is done.
	SubscribeEvents(ctx context.Context) (events <-chan event.Event, closeFn func(), err error)

	// ScheduleCheckpoint compare-and-sets the (group, key) checkpoint to
	// lastFiredTS. It succeeds (true) only if the currently stored value
	// is strictly less than lastFiredTS; this is the sole serialization
	// point preventing double materialization of the same recurrence
	// slot across a cluster of Scheduler instances.
	ScheduleCheckpoint(ctx context.Context, group, key string, lastFiredTS time.Time) (bool, error)

	// Housekeeping reclaims leases that expired before now (returning
	// their tasks to Pending), deletes results past their retention
	// window, and removes expired-but-never-run tasks.
	Housekeeping(ctx context.Context, now time.Time) error
}
