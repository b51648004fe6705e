package sqlbackend

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

type taskModel struct {
	bun.BaseModel `bun:"table:tasks"`

	ID    uuid.UUID `bun:"id,pk,type:uuid"`
	Group string    `bun:"group_name,notnull"`
	Name  string    `bun:"name,notnull"`
	Data  []byte    `bun:"data,type:blob"`

	DueTS     time.Time     `bun:"due_ts,notnull"`
	TTL       time.Duration `bun:"ttl,notnull"`
	CreatedTS time.Time     `bun:"created_ts,notnull"`

	Status      task.Status `bun:"status,notnull,default:0"`
	Attempts    uint32      `bun:"attempts,notnull,default:0"`
	LockedUntil *time.Time  `bun:"locked_until,nullzero,default:null"`
}

func (tm *taskModel) toTask() *task.Task {
	return &task.Task{
		ID:        tm.ID,
		Group:     tm.Group,
		Name:      tm.Name,
		Data:      tm.Data,
		DueTS:     tm.DueTS,
		TTL:       tm.TTL,
		CreatedTS: tm.CreatedTS,
		Status:    tm.Status,
		Attempts:  tm.Attempts,
		Lease:     task.Lease{LockedUntil: tm.LockedUntil},
	}
}

func fromTask(t *task.Task) *taskModel {
	return &taskModel{
		ID:          t.ID,
		Group:       t.Group,
		Name:        t.Name,
		Data:        t.Data,
		DueTS:       t.DueTS,
		TTL:         t.TTL,
		CreatedTS:   t.CreatedTS,
		Status:      t.Status,
		Attempts:    t.Attempts,
		LockedUntil: t.Lease.LockedUntil,
	}
}

type resultModel struct {
	bun.BaseModel `bun:"table:results"`

	ID        uuid.UUID       `bun:"id,pk,type:uuid"`
	Kind      result.Kind     `bun:"kind,notnull"`
	Encoded   []byte          `bun:"encoded,type:blob"`
	ErrorKind result.ErrorKind `bun:"error_kind,notnull,default:0"`
	Message   string          `bun:"message"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

func (rm *resultModel) toResult() result.Result {
	return result.Result{
		Kind:      rm.Kind,
		Encoded:   rm.Encoded,
		ErrorKind: rm.ErrorKind,
		Message:   rm.Message,
	}
}

type checkpointModel struct {
	bun.BaseModel `bun:"table:schedule_checkpoints"`

	Group       string    `bun:"group_name,pk"`
	Key         string    `bun:"key,pk"`
	LastFiredTS time.Time `bun:"last_fired_ts,notnull"`
}

type eventModel struct {
	bun.BaseModel `bun:"table:events"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Kind      uint8     `bun:"kind,notnull"`
	Groups    string    `bun:"groups_csv"` // comma-joined; empty means "all groups"
	CreatedAt time.Time `bun:"created_at,notnull"`
}
