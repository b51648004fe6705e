package sqlbackend_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/saryou/taskkit"
	"github.com/saryou/taskkit/backend/sqlbackend"
	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

func newTask(group, name string, due time.Time) *task.Task {
	now := time.Now()
	return task.New(uuid.New(), group, name, []byte("payload"), now, due, time.Hour)
}

func TestPutAndClaim(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	now := time.Now()
	tk := newTask("math", "add", now.Add(-time.Second))
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	claimed, err := b.ClaimTasks(ctx, "math", 1, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimTasks: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != tk.ID {
		t.Fatalf("expected to claim %s, got %+v", tk.ID, claimed)
	}
	if claimed[0].Status != task.Claimed {
		t.Fatalf("expected Claimed, got %v", claimed[0].Status)
	}

	again, err := b.ClaimTasks(ctx, "math", 1, now, time.Minute)
	if err != nil {
		t.Fatalf("ClaimTasks again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no further claimable tasks, got %d", len(again))
	}
}

func TestPutTasksIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	tk := newTask("g", "n", time.Now())
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("first PutTasks: %v", err)
	}
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("second PutTasks (same id): %v", err)
	}

	claimed, err := b.ClaimTasks(ctx, "g", 10, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("ClaimTasks: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected exactly one row to survive the duplicate insert, got %d", len(claimed))
	}
}

func TestRenewAndCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	now := time.Now()
	tk := newTask("g", "n", now.Add(-time.Second))
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}
	claimed, err := b.ClaimTasks(ctx, "g", 1, now, time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimTasks: %v %v", claimed, err)
	}

	if err := b.RenewLease(ctx, tk.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}

	if err := b.CompleteTask(ctx, tk.ID, result.Success([]byte("5"))); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	res, err := b.GetResult(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Kind != result.KindSuccess || string(res.Encoded) != "5" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if err := b.RenewLease(ctx, tk.ID, now.Add(time.Minute)); err != taskkit.ErrLeaseLost {
		t.Fatalf("expected ErrLeaseLost renewing a completed task, got %v", err)
	}
	if err := b.CompleteTask(ctx, tk.ID, result.Success(nil)); err != taskkit.ErrCompleteFailed {
		t.Fatalf("expected ErrCompleteFailed completing twice, got %v", err)
	}
}

func TestGetResultUnknownID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	_, err := b.GetResult(ctx, uuid.New())
	if err != taskkit.ErrTaskLost {
		t.Fatalf("expected ErrTaskLost, got %v", err)
	}
}

func TestGetResultPendingBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	tk := newTask("g", "n", time.Now())
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}
	res, err := b.GetResult(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Kind != result.KindPending {
		t.Fatalf("expected Pending, got %v", res.Kind)
	}
}

func TestScheduleCheckpointCAS(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	t0 := time.Now()
	ok, err := b.ScheduleCheckpoint(ctx, "g", "k", t0)
	if err != nil || !ok {
		t.Fatalf("first checkpoint should succeed: ok=%v err=%v", ok, err)
	}

	ok, err = b.ScheduleCheckpoint(ctx, "g", "k", t0)
	if err != nil {
		t.Fatalf("ScheduleCheckpoint: %v", err)
	}
	if ok {
		t.Fatal("re-firing the same instant should fail the CAS")
	}

	ok, err = b.ScheduleCheckpoint(ctx, "g", "k", t0.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("advancing the checkpoint should succeed: ok=%v err=%v", ok, err)
	}
}

func TestHousekeepingReclaimsExpiredLeases(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	now := time.Now()
	tk := newTask("g", "n", now.Add(-time.Minute))
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}
	if _, err := b.ClaimTasks(ctx, "g", 1, now, time.Second); err != nil {
		t.Fatalf("ClaimTasks: %v", err)
	}

	if err := b.Housekeeping(ctx, now.Add(time.Minute)); err != nil {
		t.Fatalf("Housekeeping: %v", err)
	}

	claimed, err := b.ClaimTasks(ctx, "g", 1, now.Add(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("ClaimTasks after housekeeping: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != tk.ID {
		t.Fatalf("expected the expired-lease task to be reclaimable, got %+v", claimed)
	}
}

func TestHousekeepingExpiresUnrunTasks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	b := sqlbackend.New(db)

	now := time.Now()
	tk := task.New(uuid.New(), "g", "n", nil, now, now, time.Millisecond)
	if err := b.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	if err := b.Housekeeping(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("Housekeeping: %v", err)
	}

	res, err := b.GetResult(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Kind != result.KindExpired {
		t.Fatalf("expected Expired, got %v", res.Kind)
	}
}
