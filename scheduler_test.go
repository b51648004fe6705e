package taskkit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	taskkit "github.com/saryou/taskkit"
	"github.com/saryou/taskkit/backend/sqlbackend"
	"github.com/saryou/taskkit/schedule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls check until it returns true or the deadline elapses.
func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if check() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerMaterializesEntryOnFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := newSchedulerTestDB(t)
	backend := sqlbackend.New(db)
	mock := clock.NewMock()
	c := taskkit.WrapClock(mock)

	s := taskkit.NewScheduler(backend, c, discardLogger(), time.UTC)
	s.AddEntry(&schedule.Entry{
		Key:        "tick",
		Group:      "math",
		Name:       "add",
		Recurrence: schedule.Every(time.Second),
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(time.Second)

	mock.Add(2 * time.Second)

	waitFor(t, 2*time.Second, func() bool {
		tasks, err := backend.ClaimTasks(ctx, "math", 10, mock.Now().Add(time.Hour), time.Minute)
		if err != nil {
			t.Fatalf("ClaimTasks: %v", err)
		}
		return len(tasks) > 0
	})
}

func TestSchedulerSkipsMaterializationWhilePaused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := newSchedulerTestDB(t)
	backend := sqlbackend.New(db)
	mock := clock.NewMock()
	c := taskkit.WrapClock(mock)

	s := taskkit.NewScheduler(backend, c, discardLogger(), time.UTC)
	s.AddEntry(&schedule.Entry{
		Key:        "tick",
		Group:      "math",
		Name:       "add",
		Recurrence: schedule.Every(time.Second),
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(time.Second)

	s.HandleEvent(pauseEvent("math"))
	// Give the command a chance to be applied before the timer fires.
	time.Sleep(50 * time.Millisecond)

	mock.Add(2 * time.Second)
	time.Sleep(100 * time.Millisecond)

	tasks, err := backend.ClaimTasks(ctx, "math", 10, mock.Now().Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("ClaimTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no materialized tasks while paused, got %d", len(tasks))
	}
}
