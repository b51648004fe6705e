package taskkit

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saryou/taskkit/result"
)

var (
	// ErrTaskLost indicates the referenced task no longer exists in
	// storage, or cannot be found in its expected state.
	ErrTaskLost = errors.New("taskkit: task lost")

	// ErrLeaseLost indicates the caller no longer owns the task's lease.
	// This happens when the lease expired and the task was reclaimed by
	// another worker before the current one completed or renewed it.
	ErrLeaseLost = errors.New("taskkit: lease lost")

	// ErrCompleteFailed indicates a task could not be completed due to a
	// state mismatch or concurrent modification — it was not Claimed by
	// the caller at the time of the call.
	ErrCompleteFailed = errors.New("taskkit: complete failed")
)

// ErrTaskFailure is an errors.As-retrievable failure carrying the task
// identity and group/name, so a caller that only sees a logged or
// aggregated error can still recover which task produced it.
type ErrTaskFailure struct {
	Group string
	Name  string
	ID    uuid.UUID
	Kind  result.ErrorKind
	Err   error
}

func (e *ErrTaskFailure) Error() string {
	return fmt.Sprintf("taskkit: task %s/%s (%s) failed: %s", e.Group, e.Name, e.ID, e.Err)
}

func (e *ErrTaskFailure) Unwrap() error { return e.Err }

// NewTaskFailure builds an *ErrTaskFailure.
func NewTaskFailure(group, name string, id uuid.UUID, kind result.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ErrTaskFailure{Group: group, Name: name, ID: id, Kind: kind, Err: err}
}
