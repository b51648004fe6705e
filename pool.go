package taskkit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/saryou/taskkit/event"
	"github.com/saryou/taskkit/internal"
	"github.com/saryou/taskkit/result"
	"github.com/saryou/taskkit/task"
)

// GroupConfig configures one group's worker pool.
type GroupConfig struct {
	// Threads is the number of concurrent workers claiming and running
	// tasks for this group.
	Threads int

	// LeaseDuration is the visibility timeout assigned to each claimed
	// task; renewed at LeaseDuration/2 intervals while the handler runs.
	LeaseDuration time.Duration

	// LeaseMax bounds the total time a single task run may hold its
	// lease via renewal, independent of the task's own TTL: the run
	// deadline is min(due_ts+ttl, lease_max).
	LeaseMax time.Duration

	// IdleBackoff bounds the jittered sleep applied when a claim finds
	// no due tasks.
	IdleBackoff internal.BackoffConfig
}

func (c GroupConfig) withDefaults() GroupConfig {
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Second
	}
	if c.LeaseMax <= 0 {
		c.LeaseMax = 10 * time.Minute
	}
	if c.IdleBackoff.InitialInterval <= 0 {
		c.IdleBackoff.InitialInterval = 20 * time.Millisecond
	}
	if c.IdleBackoff.MaxInterval <= 0 {
		c.IdleBackoff.MaxInterval = time.Second
	}
	if c.IdleBackoff.Multiplier <= 0 {
		c.IdleBackoff.Multiplier = 1.5
	}
	if c.IdleBackoff.RandomizationFactor <= 0 {
		c.IdleBackoff.RandomizationFactor = 0.2
	}
	return c
}

// pauseGate gates worker goroutines on a per-group pause flag without the
// thundering-herd wakeup cost of sync.Cond: Resume closes (and replaces)
// a channel that every parked waiter selects on.
type pauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newPauseGate() *pauseGate {
	return &pauseGate{resume: make(chan struct{})}
}

// setPaused is idempotent: re-delivery of pause on an already-paused
// group is a no-op, and likewise for resume.
func (g *pauseGate) setPaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused == paused {
		return
	}
	g.paused = paused
	if !paused {
		close(g.resume)
	} else {
		g.resume = make(chan struct{})
	}
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait blocks while paused. Returns false if ctx is done first.
func (g *pauseGate) wait(ctx context.Context) bool {
	for {
		g.mu.Lock()
		paused := g.paused
		ch := g.resume
		g.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return false
		}
	}
}

// groupPool runs GroupConfig.Threads independent worker goroutines for one
// group, each executing the full idle/fetch/run state machine on its own:
// every worker claims its own task (limit=1) directly from the Backend
// rather than sharing a single puller's output channel.
type groupPool struct {
	group    string
	cfg      GroupConfig
	backend  Backend
	registry *Registry
	encoder  Encoder
	clock    Clock
	log      *slog.Logger
	gate     *pauseGate

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newGroupPool(group string, cfg GroupConfig, backend Backend, registry *Registry, encoder Encoder, clock Clock, log *slog.Logger) *groupPool {
	return &groupPool{
		group:    group,
		cfg:      cfg.withDefaults(),
		backend:  backend,
		registry: registry,
		encoder:  encoder,
		clock:    clock,
		log:      log,
		gate:     newPauseGate(),
	}
}

func (p *groupPool) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Threads; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// stop cancels every worker's context; in-flight handlers observe ctx.Done
// via RunContext.Cancelled and are expected to exit. Returns a channel
// closed once every worker goroutine has returned.
func (p *groupPool) stop() internal.DoneChan {
	p.cancel()
	done := make(internal.DoneChan)
	go func() {
		p.wg.Wait()
		close(done)
	}()
	return done
}

func (p *groupPool) setPaused(paused bool) {
	p.gate.setPaused(paused)
}

func (p *groupPool) worker(ctx context.Context) {
	defer p.wg.Done()
	backoff := internal.NewBackoff(p.cfg.IdleBackoff)
	var idleAttempts uint32
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !p.gate.wait(ctx) {
			return
		}
		tasks, err := p.backend.ClaimTasks(ctx, p.group, 1, p.clock.Now(), p.cfg.LeaseDuration)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("claim failed", "group", p.group, "err", err)
			idleAttempts++
			p.sleep(ctx, backoff, idleAttempts)
			continue
		}
		if len(tasks) == 0 {
			idleAttempts++
			p.sleep(ctx, backoff, idleAttempts)
			continue
		}
		idleAttempts = 0
		p.safeRun(ctx, tasks[0])
	}
}

func (p *groupPool) sleep(ctx context.Context, backoff *internal.Backoff, attempt uint32) {
	d, _ := backoff.Next(attempt) // IdleBackoff has no MaxRetries: always true
	select {
	case <-p.clock.After(d):
	case <-ctx.Done():
	}
}

func (p *groupPool) safeRun(ctx context.Context, t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler panic recovered", "group", p.group, "name", t.Name, "id", t.ID, "err", r)
			p.complete(ctx, t, result.Error(result.ErrorKindHandler, "panic in handler"))
		}
	}()
	p.run(ctx, t)
}

func (p *groupPool) run(ctx context.Context, t *task.Task) {
	logic, ok := p.registry.Lookup(t.Group, t.Name)
	if !ok {
		p.complete(ctx, t, result.Error(result.ErrorKindUnknownHandler, "no handler registered for "+t.Group+"/"+t.Name))
		return
	}

	decoded := logic.New()
	if err := p.encoder.Decode(t.Group, t.Name, t.Data, decoded); err != nil {
		p.complete(ctx, t, result.Error(result.ErrorKindDecode, err.Error()))
		return
	}

	leaseMaxDeadline := p.clock.Now().Add(p.cfg.LeaseMax)
	deadline := t.Deadline(leaseMaxDeadline)
	runCtx, cancel := p.clock.WithDeadline(ctx, deadline)
	defer cancel()

	rc := &RunContext{
		Context: runCtx,
		clock:   p.clock,
		renew: func(renewCtx context.Context) error {
			return p.backend.RenewLease(renewCtx, t.ID, p.clock.Now().Add(p.cfg.LeaseDuration))
		},
	}

	resCh := make(chan struct {
		value any
		err   error
	}, 1)
	go func() {
		value, err := logic.Run(rc, decoded)
		resCh <- struct {
			value any
			err   error
		}{value, err}
	}()

	ticker := p.clock.NewTicker(p.cfg.LeaseDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.backend.RenewLease(runCtx, t.ID, p.clock.Now().Add(p.cfg.LeaseDuration)); err != nil {
				cancel()
				p.log.Warn("lease lost mid-run, abandoning", "group", p.group, "id", t.ID, "err", err)
				<-resCh // let the handler goroutine observe cancellation and exit
				return
			}
		case r := <-resCh:
			if r.err != nil {
				p.complete(ctx, t, result.Error(result.ErrorKindHandler, r.err.Error()))
				return
			}
			encoded, err := p.encoder.EncodeResult(t.Group, t.Name, r.value)
			if err != nil {
				p.complete(ctx, t, result.Error(result.ErrorKindEncode, err.Error()))
				return
			}
			p.complete(ctx, t, result.Success(encoded))
			return
		case <-runCtx.Done():
			<-resCh // drain; handler is expected to observe Cancelled() and return promptly
			p.complete(ctx, t, result.Expired())
			return
		}
	}
}

func (p *groupPool) complete(ctx context.Context, t *task.Task, res result.Result) {
	if res.Kind == result.KindError {
		err := NewTaskFailure(t.Group, t.Name, t.ID, res.ErrorKind, errors.New(res.Message))
		p.log.Error("task failed", "group", p.group, "name", t.Name, "id", t.ID, "err", err)
	}
	if err := p.backend.CompleteTask(ctx, t.ID, res); err != nil {
		p.log.Error("cannot complete task", "group", p.group, "id", t.ID, "err", err)
	}
}

// Pool owns one groupPool per configured group. It is the worker-pool
// half of a ProcessHost.
type Pool struct {
	lcBase
	backend  Backend
	registry *Registry
	encoder  Encoder
	clock    Clock
	log      *slog.Logger

	mu     sync.Mutex
	groups map[string]*groupPool
}

// NewPool constructs a Pool for the given per-group configuration.
func NewPool(backend Backend, registry *Registry, encoder Encoder, clock Clock, log *slog.Logger, groups map[string]GroupConfig) *Pool {
	p := &Pool{
		backend:  backend,
		registry: registry,
		encoder:  encoder,
		clock:    clock,
		log:      log,
		groups:   make(map[string]*groupPool, len(groups)),
	}
	for group, cfg := range groups {
		p.groups[group] = newGroupPool(group, cfg, backend, registry, encoder, clock, log)
	}
	return p
}

// Start launches every group's worker goroutines. Start may only be
// called once.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.tryStart(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, gp := range p.groups {
		gp.start(ctx)
	}
	return nil
}

// Stop gracefully shuts down every group's workers, waiting up to timeout.
func (p *Pool) Stop(timeout time.Duration) error {
	return p.tryStop(timeout, p.doStop)
}

// StopGroup gracefully shuts down a single group's workers, leaving every
// other group running. Unlike Stop, it does not change the Pool's overall
// lifecycle state: a group-scoped shutdown event stops that group alone,
// not the whole host. Stopping an unknown group is a no-op.
func (p *Pool) StopGroup(group string, timeout time.Duration) error {
	p.mu.Lock()
	gp, ok := p.groups[group]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-gp.stop():
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (p *Pool) doStop() internal.DoneChan {
	p.mu.Lock()
	defer p.mu.Unlock()
	dones := make([]internal.DoneChan, 0, len(p.groups))
	for _, gp := range p.groups {
		dones = append(dones, gp.stop())
	}
	combined := internal.DoneChan(make(chan struct{}))
	go func() {
		for _, d := range dones {
			<-d
		}
		close(combined)
	}()
	return combined
}

// HandleEvent applies e to the relevant group pause gates, or triggers
// shutdown handling at the ProcessHost level for KindShutdown (Pool itself
// only understands pause/resume; ProcessHost routes shutdown events into
// its own Terminate call).
func (p *Pool) HandleEvent(e event.Event) {
	if e.Kind != event.KindPause && e.Kind != event.KindResume {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for group, gp := range p.groups {
		if e.AppliesTo(group) {
			gp.setPaused(e.Kind == event.KindPause)
		}
	}
}

// IsPaused reports whether group is currently paused. Exposed for tests
// and diagnostics.
func (p *Pool) IsPaused(group string) bool {
	p.mu.Lock()
	gp, ok := p.groups[group]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return gp.gate.isPaused()
}
