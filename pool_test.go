package taskkit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	taskkit "github.com/saryou/taskkit"
	"github.com/saryou/taskkit/backend/sqlbackend"
	"github.com/saryou/taskkit/codec/msgpack"
	"github.com/saryou/taskkit/internal"
	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

// testIdleBackoff keeps idle-claim retries fast so pool tests driven by the
// real clock don't wait out the production default backoff ceiling.
func testIdleBackoff() internal.BackoffConfig {
	return internal.BackoffConfig{
		InitialInterval:     5 * time.Millisecond,
		MaxInterval:         20 * time.Millisecond,
		Multiplier:          1.5,
		RandomizationFactor: 0.1,
	}
}

type addPayload struct {
	A int
	B int
}

type addLogic struct {
	ran chan int
}

func (l *addLogic) Run(rc *taskkit.RunContext, decoded any) (any, error) {
	p := decoded.(*addPayload)
	sum := p.A + p.B
	if l.ran != nil {
		l.ran <- sum
	}
	return sum, nil
}

func (l *addLogic) New() any { return new(addPayload) }

type failLogic struct{}

func (failLogic) Run(rc *taskkit.RunContext, decoded any) (any, error) {
	return nil, errors.New("boom")
}
func (failLogic) New() any { return new(addPayload) }

type panicLogic struct{}

func (panicLogic) Run(rc *taskkit.RunContext, decoded any) (any, error) {
	panic("kaboom")
}
func (panicLogic) New() any { return new(addPayload) }

func newTestPool(t *testing.T, registry *taskkit.Registry, groups map[string]taskkit.GroupConfig) (*taskkit.Pool, *sqlbackend.Backend, taskkit.Clock) {
	t.Helper()
	db := newSchedulerTestDB(t)
	backend := sqlbackend.New(db)
	c := taskkit.NewRealClock()
	for g, cfg := range groups {
		cfg.IdleBackoff = testIdleBackoff()
		groups[g] = cfg
	}
	pool := taskkit.NewPool(backend, registry, msgpack.New(), c, discardLogger(), groups)
	return pool, backend, c
}

func TestPoolClaimsAndCompletesTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logic := &addLogic{ran: make(chan int, 1)}
	registry := taskkit.NewRegistry()
	registry.Register("math", "add", logic)

	pool, backend, c := newTestPool(t, registry, map[string]taskkit.GroupConfig{
		"math": {Threads: 1, LeaseDuration: time.Minute},
	})

	enc := msgpack.New()
	data, err := enc.Encode("math", "add", &addPayload{A: 2, B: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	id := uuid.New()
	now := c.Now()
	tk := task.New(id, "math", "add", data, now, now, time.Hour)
	if err := backend.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop(time.Second)

	select {
	case sum := <-logic.ran:
		if sum != 5 {
			t.Fatalf("got %d, want 5", sum)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never ran")
	}

	waitFor(t, 2*time.Second, func() bool {
		res, err := backend.GetResult(ctx, id)
		if err != nil {
			t.Fatalf("GetResult: %v", err)
		}
		return res.Kind == result.KindSuccess
	})
}

func TestPoolMarksHandlerErrorAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := taskkit.NewRegistry()
	registry.Register("math", "fail", failLogic{})

	pool, backend, c := newTestPool(t, registry, map[string]taskkit.GroupConfig{
		"math": {Threads: 1, LeaseDuration: time.Minute},
	})

	enc := msgpack.New()
	data, _ := enc.Encode("math", "fail", &addPayload{})
	id := uuid.New()
	now := c.Now()
	tk := task.New(id, "math", "fail", data, now, now, time.Hour)
	if err := backend.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop(time.Second)

	waitFor(t, 2*time.Second, func() bool {
		res, err := backend.GetResult(ctx, id)
		if err != nil {
			t.Fatalf("GetResult: %v", err)
		}
		return res.Kind == result.KindError
	})
}

func TestPoolRecoversFromHandlerPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := taskkit.NewRegistry()
	registry.Register("math", "panic", panicLogic{})

	pool, backend, c := newTestPool(t, registry, map[string]taskkit.GroupConfig{
		"math": {Threads: 1, LeaseDuration: time.Minute},
	})

	enc := msgpack.New()
	data, _ := enc.Encode("math", "panic", &addPayload{})
	id := uuid.New()
	now := c.Now()
	tk := task.New(id, "math", "panic", data, now, now, time.Hour)
	if err := backend.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop(time.Second)

	waitFor(t, 2*time.Second, func() bool {
		res, err := backend.GetResult(ctx, id)
		if err != nil {
			t.Fatalf("GetResult: %v", err)
		}
		return res.Kind == result.KindError
	})
}

func TestPoolPauseStopsClaimingNewTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logic := &addLogic{}
	registry := taskkit.NewRegistry()
	registry.Register("math", "add", logic)

	pool, backend, c := newTestPool(t, registry, map[string]taskkit.GroupConfig{
		"math": {Threads: 1, LeaseDuration: time.Minute},
	})

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop(time.Second)

	pool.HandleEvent(pauseEvent("math"))
	waitFor(t, time.Second, func() bool { return pool.IsPaused("math") })

	enc := msgpack.New()
	data, _ := enc.Encode("math", "add", &addPayload{A: 1, B: 1})
	id := uuid.New()
	now := c.Now()
	tk := task.New(id, "math", "add", data, now, now, time.Hour)
	if err := backend.PutTasks(ctx, tk); err != nil {
		t.Fatalf("PutTasks: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	res, err := backend.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Kind != result.KindPending {
		t.Fatalf("expected task to remain pending while group is paused, got %v", res.Kind)
	}

	pool.HandleEvent(resumeEvent("math"))
	waitFor(t, 2*time.Second, func() bool {
		res, err := backend.GetResult(ctx, id)
		if err != nil {
			t.Fatalf("GetResult: %v", err)
		}
		return res.Kind == result.KindSuccess
	})
}
