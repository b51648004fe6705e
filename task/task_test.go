package task_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/saryou/taskkit/task"
)

func TestDeadlineIsEarlierOfTTLAndLeaseMax(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := task.New(uuid.New(), "g", "n", nil, now, now, time.Minute)

	leaseMaxBefore := now.Add(30 * time.Second)
	if got := tk.Deadline(leaseMaxBefore); !got.Equal(leaseMaxBefore) {
		t.Fatalf("expected leaseMax to win, got %v", got)
	}

	leaseMaxAfter := now.Add(time.Hour)
	if got := tk.Deadline(leaseMaxAfter); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected due+ttl to win, got %v", got)
	}
}

func TestLeaseHeld(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	lease := task.Lease{LockedUntil: &future}
	if !lease.Held(now) {
		t.Fatal("expected lease to be held")
	}

	past := now.Add(-time.Minute)
	expired := task.Lease{LockedUntil: &past}
	if expired.Held(now) {
		t.Fatal("expected lease to not be held")
	}

	if (task.Lease{}).Held(now) {
		t.Fatal("nil LockedUntil should never be held")
	}
}

func TestStatusTextRoundTrip(t *testing.T) {
	for _, s := range []task.Status{task.Pending, task.Claimed, task.Done, task.Failed, task.Expired, task.Discarded} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var got task.Status
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %v, want %v", got, s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []task.Status{task.Done, task.Failed, task.Expired, task.Discarded}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%v should be terminal", s)
		}
	}
	nonTerminal := []task.Status{task.Unknown, task.Pending, task.Claimed}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("%v should not be terminal", s)
		}
	}
}
