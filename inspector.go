package taskkit

import (
	"context"

	"github.com/google/uuid"

	"github.com/saryou/taskkit/task"
)

// Inspector is an optional, read-only diagnostic capability a Backend may
// implement alongside Backend: administrative tooling and tests can
// type-assert a Backend to Inspector to snapshot task state without
// participating in claim/lease/complete flow. Inspector methods never
// mutate storage and are not part of the dispatch hot path.
type Inspector interface {
	// GetTask returns a snapshot of id, or nil, nil if it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)

	// ListTasks returns up to limit tasks in group matching status. A zero
	// Status (task.Unknown) means no status filter; limit <= 0 means no
	// limit, subject to implementation-specific constraints.
	ListTasks(ctx context.Context, group string, status task.Status, limit int) ([]*task.Task, error)
}
